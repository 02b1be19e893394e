package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Session describes the context an echo surface is created for.
type Session struct {
	ID               string
	WorkingDirectory string
	Shell            string
	VolumeContext    string
}

// Surface receives echoed lines.
type Surface interface {
	Print(text string) error
	Close() error
}

// Provider is one echo backend. Write is best-effort: errors are dropped.
type Provider interface {
	Backend() Backend
	IsAvailable() bool
	CreateSurface(session Session) Surface
	Write(text string)
}

// SelectProvider picks the provider for detection. It has no side effects.
func SelectProvider(enabled bool, detection Detection) Provider {
	if !enabled {
		return &nullProvider{detection: detection, disabled: true}
	}
	switch detection.Backend {
	case BackendTerminal:
		if detection.Output != nil {
			return &terminalProvider{out: detection.Output}
		}
	case BackendTranscript:
		if detection.TranscriptPath != "" {
			return &transcriptProvider{path: detection.TranscriptPath}
		}
	}
	return &nullProvider{detection: detection}
}

// holder keeps the most recently created surface of a provider.
type holder struct {
	mu      sync.Mutex
	surface Surface
}

func (h *holder) set(s Surface) Surface {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.surface != nil && h.surface != s {
		_ = h.surface.Close()
	}
	h.surface = s
	return s
}

func (h *holder) Write(text string) {
	h.mu.Lock()
	s := h.surface
	h.mu.Unlock()
	if s == nil {
		return
	}
	_ = s.Print(text)
}

var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	commandStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	contextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
)

type terminalProvider struct {
	holder
	out io.Writer
}

func (p *terminalProvider) Backend() Backend  { return BackendTerminal }
func (p *terminalProvider) IsAvailable() bool { return p.out != nil }

func (p *terminalProvider) CreateSurface(session Session) Surface {
	return p.set(&terminalSurface{
		out:      p.out,
		renderer: lipgloss.NewRenderer(p.out),
		session:  session,
	})
}

type terminalSurface struct {
	mu       sync.Mutex
	out      io.Writer
	renderer *lipgloss.Renderer
	session  Session
}

func (s *terminalSurface) Print(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	if s.session.VolumeContext != "" {
		b.WriteString(contextStyle.Renderer(s.renderer).Render("[" + s.session.VolumeContext + "]"))
		b.WriteString(" ")
	}
	b.WriteString(promptStyle.Renderer(s.renderer).Render("$"))
	b.WriteString(" ")
	b.WriteString(commandStyle.Renderer(s.renderer).Render(text))
	b.WriteString("\n")
	_, err := io.WriteString(s.out, b.String())
	return err
}

func (s *terminalSurface) Close() error { return nil }

type transcriptProvider struct {
	holder
	path string
}

func (p *transcriptProvider) Backend() Backend  { return BackendTranscript }
func (p *transcriptProvider) IsAvailable() bool { return p.path != "" }

func (p *transcriptProvider) CreateSurface(session Session) Surface {
	s := &transcriptSurface{session: session}
	s.file, s.err = os.OpenFile(p.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	return p.set(s)
}

type transcriptSurface struct {
	mu      sync.Mutex
	file    *os.File
	err     error
	session Session
}

func (s *transcriptSurface) Print(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return s.err
	}
	prefix := "$ "
	if s.session.VolumeContext != "" {
		prefix = "[" + s.session.VolumeContext + "] $ "
	}
	_, err := fmt.Fprintf(s.file, "%s%s\n", prefix, text)
	return err
}

func (s *transcriptSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// nullProvider is used when echoing is disabled or no backend exists. Its
// surface explains how to get a working setup.
type nullProvider struct {
	detection Detection
	disabled  bool
}

func (p *nullProvider) Backend() Backend  { return BackendNone }
func (p *nullProvider) IsAvailable() bool { return false }
func (p *nullProvider) Write(string)      {}

func (p *nullProvider) CreateSurface(Session) Surface {
	return &GuidanceSurface{Lines: p.guidance()}
}

func (p *nullProvider) guidance() []string {
	var lines []string
	if p.disabled {
		lines = append(lines, "Command echo is disabled. Enable it with: mithril console enable")
	} else {
		lines = append(lines, "No echo backend is available. Run mithril from a terminal or set console.transcript.")
	}
	d := p.detection
	if d.InstallHint != "" {
		lines = append(lines, "Install hint: "+d.InstallHint)
	}
	if len(d.SuggestedPackages) > 0 {
		lines = append(lines, "Suggested packages: "+strings.Join(d.SuggestedPackages, ", "))
	}
	if len(d.Notes) > 0 {
		lines = append(lines, "Notes:")
		for _, n := range d.Notes {
			lines = append(lines, "- "+n)
		}
	}
	if len(d.Errors) > 0 {
		lines = append(lines, "Errors:")
		for _, e := range d.Errors {
			lines = append(lines, "- "+e)
		}
	}
	return lines
}

// GuidanceSurface is the surface of the null provider. It never echoes;
// it only carries the guidance text for the caller to render.
type GuidanceSurface struct {
	Lines []string
}

func (s *GuidanceSurface) Print(string) error { return nil }
func (s *GuidanceSurface) Close() error       { return nil }

func (s *GuidanceSurface) String() string {
	return strings.Join(s.Lines, "\n")
}
