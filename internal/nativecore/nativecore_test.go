package nativecore

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/config"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/hostentity"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/layout"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/override"
)

func layoutConfig() config.LayoutConfig {
	return config.LayoutConfig{
		OuterType:     "GroundVehicleFields",
		InnerType:     "VehicleInputs",
		InputsField:   "inputs",
		MobileField:   "mobile",
		ThrottleField: "throttle",
		BrakeField:    "brake",
		SteeringField: "steering",
	}
}

func overrideConfig() config.OverrideConfig {
	return config.OverrideConfig{ThrottleMin: -0.7, ThrottleMax: 1, SteeringScale: 10}
}

func builtinLayouts(t *testing.T) hostentity.Layouts {
	t.Helper()
	l, err := hostentity.NewLayouts(layout.DefaultSchema(), layout.NewResolver(0))
	require.NoError(t, err)
	return l
}

func build(t *testing.T, lc config.LayoutConfig, oc config.OverrideConfig, baseDir string) (Core, string) {
	t.Helper()
	var buf bytes.Buffer
	core := Build(lc, oc, baseDir, slog.New(slog.NewTextHandler(&buf, nil)))
	require.NotNil(t, core.Offsets)
	return core, buf.String()
}

func TestBuild_Defaults(t *testing.T) {
	core, logs := build(t, layoutConfig(), overrideConfig(), t.TempDir())

	assert.True(t, core.Offsets.Available())
	assert.Equal(t, override.DefaultTuning(), core.Tuning)
	assert.Equal(t, builtinLayouts(t), core.Layouts)
	assert.NotContains(t, logs, "level=ERROR")
}

func TestBuild_MissingShapesDisablesOverrides(t *testing.T) {
	lc := layoutConfig()
	lc.ShapesFile = "missing.yaml"

	core, logs := build(t, lc, overrideConfig(), t.TempDir())

	_, err := core.Offsets.Get()
	assert.ErrorIs(t, err, layout.ErrUnresolved)
	assert.ErrorContains(t, err, "loading shapes")
	assert.Equal(t, builtinLayouts(t), core.Layouts)
	assert.Equal(t, override.DefaultTuning(), core.Tuning)
	assert.Contains(t, logs, "Failed to load shapes")
}

func TestBuild_PointerWidthMismatchDisablesOverrides(t *testing.T) {
	lc := layoutConfig()
	lc.PointerSize = 4

	core, logs := build(t, lc, overrideConfig(), t.TempDir())

	assert.False(t, core.Offsets.Available())
	_, err := core.Offsets.Get()
	assert.ErrorIs(t, err, layout.ErrUnresolved)
	assert.ErrorContains(t, err, "pointer width mismatch")
	// host records still follow the width the shapes declare
	assert.Equal(t, builtinLayouts(t), core.Layouts)
	assert.Contains(t, logs, "Pointer width does not match")
}

func TestBuild_MissingHostRecordsFallBack(t *testing.T) {
	dir := t.TempDir()
	shapes := `
types:
  VehicleInputs:
    - {name: throttle, kind: float}
    - {name: brake, kind: float}
    - {name: steering, kind: float}
  GroundVehicleFields:
    - {name: mobile, kind: bool}
    - {name: inputs, type: VehicleInputs}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shapes.yaml"), []byte(shapes), 0o644))
	lc := layoutConfig()
	lc.ShapesFile = "shapes.yaml"

	core, logs := build(t, lc, overrideConfig(), dir)

	o, err := core.Offsets.Get()
	require.NoError(t, err)
	assert.Equal(t, uintptr(4), o.Throttle)
	assert.Equal(t, builtinLayouts(t), core.Layouts)
	assert.Contains(t, logs, "using built-in records")
}

func TestBuild_InvalidTuningFallsBack(t *testing.T) {
	tests := []struct {
		name string
		oc   config.OverrideConfig
	}{
		{"min above max", config.OverrideConfig{ThrottleMin: 1, ThrottleMax: 0.5, SteeringScale: 10}},
		{"zero steering scale", config.OverrideConfig{ThrottleMin: -0.7, ThrottleMax: 1}},
		{"throttle above one", config.OverrideConfig{ThrottleMin: -0.7, ThrottleMax: 3, SteeringScale: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := build(t, layoutConfig(), tt.oc, t.TempDir())

			assert.Equal(t, override.DefaultTuning(), core.Tuning)
			assert.True(t, core.Offsets.Available())
			assert.Contains(t, logs, "Invalid override tuning, using defaults")
		})
	}
}

func TestBuild_NilLogger(t *testing.T) {
	lc := layoutConfig()
	lc.PointerSize = 4
	assert.NotPanics(t, func() {
		core := Build(lc, overrideConfig(), t.TempDir(), nil)
		assert.False(t, core.Offsets.Available())
	})
}
