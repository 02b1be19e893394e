package security

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath = errors.New("invalid path")
	ErrEmptyPath   = errors.New("empty path not allowed")
)

// ResolvedPath is the result of expanding and resolving a user-supplied path.
type ResolvedPath struct {
	// Original is the absolute, cleaned form of the supplied path with "~" expanded.
	// Symlinks are not evaluated.
	Original string
	// Path is Original with every symlink evaluated. For paths that do not exist
	// (or dangling links) it equals Original.
	Path string
	// IsSymlink reports whether Original itself is a symbolic link.
	IsSymlink bool
	// Exists reports whether anything (including a dangling link) is at Original.
	Exists bool
}

// Target returns the path a destructive operation acts on: the link itself for
// symlinks, the resolved location otherwise.
func (r ResolvedPath) Target() string {
	if r.IsSymlink {
		return r.Original
	}
	return r.Path
}

// Decision is the verdict of ValidateForDeletion.
type Decision int

const (
	Allowed Decision = iota
	RequiresConfirmation
	Rejected
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case RequiresConfirmation:
		return "requires-confirmation"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Outcome describes whether a path may be deleted.
type Outcome struct {
	Decision Decision
	Reason   string
	Resolved ResolvedPath
}

// ConfirmationToken is the exact string a caller must re-supply before a
// RequiresConfirmation outcome may proceed.
func (o Outcome) ConfirmationToken() string {
	return o.Resolved.Target()
}

// Confirm reports whether token matches the confirmation token exactly.
func (o Outcome) Confirm(token string) bool {
	return o.Decision == RequiresConfirmation && token == o.ConfirmationToken()
}

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: cannot expand %q: %v", ErrInvalidPath, path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Resolve expands, cleans and resolves a path. It only reads the filesystem.
func Resolve(path string) (ResolvedPath, error) {
	if strings.TrimSpace(path) == "" {
		return ResolvedPath{}, fmt.Errorf("%w: %w", ErrInvalidPath, ErrEmptyPath)
	}
	if strings.ContainsRune(path, 0) {
		return ResolvedPath{}, fmt.Errorf("%w: %q contains NUL", ErrInvalidPath, path)
	}

	expanded, err := ExpandHome(path)
	if err != nil {
		return ResolvedPath{}, err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return ResolvedPath{}, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	res := ResolvedPath{Original: abs, Path: abs}

	info, err := os.Lstat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Parent components may still be links.
			if parent, perr := filepath.EvalSymlinks(filepath.Dir(abs)); perr == nil {
				res.Path = filepath.Join(parent, filepath.Base(abs))
			}
			return res, nil
		}
		return ResolvedPath{}, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	res.Exists = true
	res.IsSymlink = info.Mode()&os.ModeSymlink != 0

	if evaluated, err := filepath.EvalSymlinks(abs); err == nil {
		res.Path = evaluated
	}
	return res, nil
}

// IsUnder reports whether resolvedPath lies strictly inside one of allowedRoots.
// Roots are resolved before comparison; roots that fail to resolve are ignored.
func IsUnder(resolvedPath string, allowedRoots []string) bool {
	p := filepath.Clean(resolvedPath)
	for _, root := range allowedRoots {
		r, err := Resolve(root)
		if err != nil {
			continue
		}
		if within(r.Path, p) {
			return true
		}
	}
	return false
}

// within reports whether p is strictly below root.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

// CountEntries counts directory entries of path, stopping once limit is
// exceeded, in which case limit+1 is returned. Any access error yields 0.
func CountEntries(path string, limit int) int {
	if limit < 0 {
		limit = 0
	}
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	count := 0
	for {
		entries, err := f.ReadDir(64)
		count += len(entries)
		if count > limit {
			return limit + 1
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count
			}
			return 0
		}
	}
}

// ValidateForDeletion decides whether path may be removed recursively.
//
// The filesystem root, the home directory and any ancestor of the home
// directory are rejected regardless of allowedRoots. Paths outside
// allowedRoots require the caller to re-supply Outcome.ConfirmationToken.
func ValidateForDeletion(path string, allowedRoots []string) Outcome {
	res, err := Resolve(path)
	if err != nil {
		return Outcome{Decision: Rejected, Reason: err.Error(), Resolved: res}
	}

	home := resolvedHome()
	for _, p := range []string{res.Original, res.Path} {
		if reason := protectedReason(p, home); reason != "" {
			return Outcome{Decision: Rejected, Reason: reason, Resolved: res}
		}
	}

	if !res.Exists {
		return Outcome{Decision: Allowed, Reason: "path does not exist", Resolved: res}
	}

	if !IsUnder(res.Target(), allowedRoots) {
		return Outcome{
			Decision: RequiresConfirmation,
			Reason:   fmt.Sprintf("%s is outside the allowed deletion roots", res.Target()),
			Resolved: res,
		}
	}

	return Outcome{Decision: Allowed, Resolved: res}
}

func protectedReason(p, home string) string {
	clean := filepath.Clean(p)
	if clean == string(filepath.Separator) {
		return "refusing to delete the filesystem root"
	}
	if home == "" {
		return ""
	}
	if clean == home {
		return "refusing to delete the home directory"
	}
	if within(clean, home) {
		return fmt.Sprintf("refusing to delete %s: it contains the home directory", clean)
	}
	return ""
}

func resolvedHome() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	if evaluated, err := filepath.EvalSymlinks(home); err == nil {
		return evaluated
	}
	return filepath.Clean(home)
}
