package hud

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/override"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/possession"
	"github.com/9138noms/NuclearOption-VehicleControl/pkg/foreign"
)

func plain() *HUD {
	return New(lipgloss.NewRenderer(&bytes.Buffer{}))
}

func TestRenderIdle(t *testing.T) {
	assert.Empty(t, plain().Render(possession.Snapshot{}))
}

func TestRenderForcedRelease(t *testing.T) {
	assert.Contains(t, plain().Render(possession.Snapshot{State: possession.StateForcedRelease}), "CONTROL LOST")
}

func TestRenderShip(t *testing.T) {
	out := plain().Render(possession.Snapshot{
		State:      possession.StateActive,
		Kind:       foreign.KindShip,
		EntityName: "Corvette(Clone)",
		Frame:      override.ControlFrame{Throttle: 0.5, Steering: 0.3},
		Motion:     true,
		Speed:      10,
		Heading:    271.6,
	})

	assert.Contains(t, out, "SHIP CONTROL")
	assert.Contains(t, out, "Corvette")
	assert.NotContains(t, out, "(Clone)")
	assert.Contains(t, out, "19 kts (36 km/h)")
	assert.Contains(t, out, "272°")
	assert.Contains(t, out, "50%")
	assert.Contains(t, out, "STBD (30%)")
}

func TestRenderVehicleWithoutMotion(t *testing.T) {
	out := plain().Render(possession.Snapshot{
		State: possession.StateActive,
		Kind:  foreign.KindGroundVehicle,
		Frame: override.ControlFrame{Throttle: -0.7, Steering: -1},
	})

	assert.Contains(t, out, "VEHICLE CONTROL")
	assert.Contains(t, out, "---")
	assert.NotContains(t, out, "kts")
	assert.Contains(t, out, "-70%")
	assert.Contains(t, out, "PORT (-100%)")
}

func TestRudder(t *testing.T) {
	tests := []struct {
		steering float32
		want     string
	}{
		{0, "MID"},
		{0.05, "MID"},
		{-0.05, "MID"},
		{0.051, "STBD"},
		{-0.2, "PORT"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Rudder(tt.steering), "steering %v", tt.steering)
	}
}
