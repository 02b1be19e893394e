package console

import (
	"os"
	"sync"
)

// Manager owns the selected provider and its live surface.
type Manager struct {
	detect func() Detection

	mu        sync.Mutex
	enabled   bool
	detection Detection
	provider  Provider
	surface   Surface
	session   *Session
}

// NewManager runs detect once and selects a provider.
func NewManager(enabled bool, detect func() Detection) *Manager {
	det := detect()
	return &Manager{
		detect:    detect,
		enabled:   enabled,
		detection: det,
		provider:  SelectProvider(enabled, det),
	}
}

// RefreshDetection re-probes the environment. The provider, and with it the
// live surface, is replaced only when the backend changes. It reports whether
// a swap happened.
func (m *Manager) RefreshDetection() bool {
	det := m.detect()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.detection = det
	next := SelectProvider(m.enabled, det)
	if next.Backend() == m.provider.Backend() {
		return false
	}
	m.swap(next)
	return true
}

// SetEnabled toggles echoing and reselects the provider.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
	m.swap(SelectProvider(enabled, m.detection))
}

func (m *Manager) swap(next Provider) {
	if m.surface != nil {
		_ = m.surface.Close()
	}
	m.provider = next
	m.surface = nil
}

func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

func (m *Manager) Detection() Detection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detection
}

func (m *Manager) Provider() Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provider
}

// HasWorkingProvider reports whether echoed text goes anywhere.
func (m *Manager) HasWorkingProvider() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled && m.provider.IsAvailable()
}

// Surface returns the live surface, creating it on first use.
func (m *Manager) Surface() Surface {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureSurface()
}

func (m *Manager) ensureSurface() Surface {
	if m.surface == nil {
		m.surface = m.provider.CreateSurface(m.ensureSession())
	}
	return m.surface
}

func (m *Manager) ensureSession() Session {
	if m.session == nil {
		wd, err := os.Getwd()
		if err != nil {
			wd, _ = os.UserHomeDir()
		}
		m.session = &Session{ID: "default", WorkingDirectory: wd, Shell: os.Getenv("SHELL")}
	}
	return *m.session
}

// Write echoes text. Nothing happens without a working provider, and provider
// failures are dropped.
func (m *Manager) Write(text string) {
	m.mu.Lock()
	if !m.provider.IsAvailable() {
		m.mu.Unlock()
		return
	}
	m.ensureSurface()
	p := m.provider
	m.mu.Unlock()

	p.Write(text)
}

// Close releases the live surface.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.surface == nil {
		return nil
	}
	err := m.surface.Close()
	m.surface = nil
	return err
}
