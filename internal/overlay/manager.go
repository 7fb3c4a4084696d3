package overlay

import (
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/rotatingbox/internal/logger"
)

// Manager draws the HUD widgets onto presented frames, in insertion order
type Manager struct {
	widgets []Widget
	mu      sync.RWMutex
	enabled bool
}

// NewManager creates a new overlay manager
func NewManager() *Manager {
	return &Manager{enabled: true}
}

// AddWidget appends a widget; later widgets draw on top
func (m *Manager) AddWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.widgets {
		if w.ID() == widget.ID() {
			return fmt.Errorf("widget with ID %s already exists", widget.ID())
		}
	}

	m.widgets = append(m.widgets, widget)
	logger.WithComponent("overlay").Debug().
		Str("id", widget.ID()).
		Str("type", widget.Type()).
		Msg("Added widget")
	return nil
}

// RemoveWidget removes a widget from the overlay
func (m *Manager) RemoveWidget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, w := range m.widgets {
		if w.ID() == id {
			m.widgets = append(m.widgets[:i], m.widgets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("widget with ID %s not found", id)
}

// GetWidget retrieves a widget by ID
func (m *Manager) GetWidget(id string) (Widget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, w := range m.widgets {
		if w.ID() == id {
			return w, true
		}
	}
	return nil, false
}

// Widgets returns the widgets in draw order
func (m *Manager) Widgets() []Widget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Widget(nil), m.widgets...)
}

// SetEnabled enables or disables the entire overlay
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// IsEnabled returns whether the overlay is enabled
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Render draws all enabled widgets onto img. A failing widget is logged and
// skipped.
func (m *Manager) Render(img *image.RGBA) {
	if !m.IsEnabled() {
		return
	}

	for _, widget := range m.Widgets() {
		if !widget.IsEnabled() {
			continue
		}
		if err := widget.Render(img); err != nil {
			logger.WithComponent("overlay").Warn().
				Err(err).
				Str("id", widget.ID()).
				Msg("Failed to render widget")
		}
	}
}

// ExportConfig exports all widget configurations
func (m *Manager) ExportConfig() []map[string]interface{} {
	widgets := m.Widgets()
	configs := make([]map[string]interface{}, 0, len(widgets))
	for _, widget := range widgets {
		configs = append(configs, widget.GetConfig())
	}
	return configs
}

// Clear removes all widgets
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.widgets = nil
}
