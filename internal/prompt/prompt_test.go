package prompt

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTerminal(t *testing.T, input string, policy RememberPolicy, env map[string]string) (*Terminal, *bytes.Buffer) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	_, err = w.WriteString(input)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var out bytes.Buffer
	return &Terminal{
		In:       r,
		Out:      &out,
		Remember: policy,
		Getenv:   func(k string) string { return env[k] },
	}, &out
}

func TestPassword_FromPipe(t *testing.T) {
	term, out := newTestTerminal(t, "hunter2\n", RememberNever, nil)
	secret, remember, err := term.Password(context.Background(), PasswordRequest{Label: "Docs"})
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(secret))
	assert.False(t, remember)
	assert.Equal(t, "Password for Docs: ", out.String())
}

func TestPassword_AskRemember(t *testing.T) {
	term, out := newTestTerminal(t, "hunter2\ny\n", RememberAsk, nil)
	secret, remember, err := term.Password(context.Background(), PasswordRequest{Label: "Docs", Incorrect: true})
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(secret))
	assert.True(t, remember)
	assert.Contains(t, out.String(), "Incorrect password. Password for Docs: ")
	assert.Contains(t, out.String(), "Remember password for this session?")
}

func TestPassword_RememberOnlyForUnlock(t *testing.T) {
	term, out := newTestTerminal(t, "newpass\n", RememberAlways, nil)
	_, remember, err := term.Password(context.Background(), PasswordRequest{Label: "Docs", Purpose: PurposeNew})
	require.NoError(t, err)
	assert.False(t, remember)
	assert.Equal(t, "New password for Docs: ", out.String())
}

func TestPassword_Empty(t *testing.T) {
	term, _ := newTestTerminal(t, "\n", RememberNever, nil)
	_, _, err := term.Password(context.Background(), PasswordRequest{Label: "Docs"})
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestPassword_EOF(t *testing.T) {
	term, _ := newTestTerminal(t, "", RememberNever, nil)
	_, _, err := term.Password(context.Background(), PasswordRequest{Label: "Docs"})
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestPassword_NoTrailingNewline(t *testing.T) {
	term, _ := newTestTerminal(t, "last", RememberNever, nil)
	secret, _, err := term.Password(context.Background(), PasswordRequest{Label: "Docs"})
	require.NoError(t, err)
	assert.Equal(t, "last", string(secret))
}

func TestPassword_FromEnv(t *testing.T) {
	env := map[string]string{EnvPassword: "fromenv"}
	term, out := newTestTerminal(t, "", RememberAlways, env)

	secret, remember, err := term.Password(context.Background(), PasswordRequest{Label: "Docs"})
	require.NoError(t, err)
	assert.Equal(t, "fromenv", string(secret))
	assert.True(t, remember)
	assert.Empty(t, out.String())

	secret, _, err = term.Password(context.Background(), PasswordRequest{Label: "Docs", Purpose: PurposeConfirm})
	require.NoError(t, err)
	assert.Equal(t, "fromenv", string(secret), "new passwords fall back to the unlock variable")

	_, _, err = term.Password(context.Background(), PasswordRequest{Label: "Docs", Incorrect: true})
	assert.ErrorIs(t, err, ErrEnvRejected)
}

func TestPassword_NewFromEnv(t *testing.T) {
	env := map[string]string{EnvPassword: "old", EnvNewPassword: "new"}
	term, _ := newTestTerminal(t, "", RememberNever, env)

	secret, _, err := term.Password(context.Background(), PasswordRequest{Purpose: PurposeCurrent})
	require.NoError(t, err)
	assert.Equal(t, "old", string(secret))

	secret, _, err = term.Password(context.Background(), PasswordRequest{Purpose: PurposeNew})
	require.NoError(t, err)
	assert.Equal(t, "new", string(secret))
}

func TestPassword_CancelledContext(t *testing.T) {
	term, _ := newTestTerminal(t, "x\n", RememberNever, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := term.Password(ctx, PasswordRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfirm(t *testing.T) {
	term, out := newTestTerminal(t, "yes\nn\n\n", RememberNever, nil)
	ctx := context.Background()

	ok, err := term.Confirm(ctx, "Create directories?")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "Create directories? [y/N]: ")

	ok, err = term.Confirm(ctx, "Again?")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = term.Confirm(ctx, "Default?")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = term.Confirm(ctx, "EOF?")
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestToken(t *testing.T) {
	term, out := newTestTerminal(t, "My Docs\r\n", RememberNever, nil)
	tok, err := term.Token(context.Background(), "Type the volume label: ")
	require.NoError(t, err)
	assert.Equal(t, "My Docs", tok)
	assert.Equal(t, "Type the volume label: ", out.String())
}
