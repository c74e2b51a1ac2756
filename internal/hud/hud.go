// Package hud renders a possession snapshot as a small terminal panel.
package hud

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/possession"
	"github.com/9138noms/NuclearOption-VehicleControl/pkg/foreign"
)

const (
	msToKmh   = 3.6
	msToKnots = 1.944
	// rudderDeadband is the steering magnitude reported as MID.
	rudderDeadband = 0.05
)

// HUD holds the styles bound to one renderer.
type HUD struct {
	box    lipgloss.Style
	header lipgloss.Style
	label  lipgloss.Style
	value  lipgloss.Style
	forced lipgloss.Style
}

// New creates a HUD for r. A nil renderer uses the default one.
func New(r *lipgloss.Renderer) *HUD {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	return &HUD{
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4A4A4A")).
			Padding(0, 1),
		header: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFD24D")),
		label: r.NewStyle().
			Width(10).
			Foreground(lipgloss.Color("#B3B3B3")),
		value: r.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")),
		forced: r.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")),
	}
}

var std = New(nil)

// Render draws s with the default renderer.
func Render(s possession.Snapshot) string {
	return std.Render(s)
}

// Render draws s. Nothing is drawn while idle.
func (h *HUD) Render(s possession.Snapshot) string {
	switch s.State {
	case possession.StateActive:
	case possession.StateForcedRelease:
		return h.box.Render(h.forced.Render("CONTROL LOST"))
	default:
		return ""
	}

	title := "VEHICLE CONTROL"
	if s.Kind == foreign.KindShip {
		title = "SHIP CONTROL"
	}
	name := strings.TrimSpace(strings.ReplaceAll(s.EntityName, "(Clone)", ""))
	if name == "" {
		name = "---"
	}

	rows := []string{h.header.Render(title), h.value.Render(name), ""}
	if s.Motion {
		speed := float64(s.Speed)
		rows = append(rows,
			h.row("Speed:", fmt.Sprintf("%.0f kts (%.0f km/h)", speed*msToKnots, speed*msToKmh)),
			h.row("Heading:", fmt.Sprintf("%.0f°", s.Heading)),
		)
	}
	rows = append(rows,
		h.row("Throttle:", fmt.Sprintf("%.0f%%", s.Frame.Throttle*100)),
		h.row("Rudder:", fmt.Sprintf("%s (%.0f%%)", Rudder(s.Frame.Steering), s.Frame.Steering*100)),
	)
	return h.box.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (h *HUD) row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, h.label.Render(label), h.value.Render(value))
}

// Rudder names the steering direction.
func Rudder(steering float32) string {
	switch {
	case steering > rudderDeadband:
		return "STBD"
	case steering < -rudderDeadband:
		return "PORT"
	default:
		return "MID"
	}
}
