package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(viper.Reset)

	var out, logs bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_NearestFriendly(t *testing.T) {
	out, err := execute(t, "run", "--frames", "60", "--possess-at", "5", "--release-at", "50", "--hud-every", "20")
	require.NoError(t, err)

	assert.Contains(t, out, ":TOGGLE: -> {")
	assert.Contains(t, out, "u1")
	assert.Contains(t, out, ":CONTROLS: -> ok")
	assert.Contains(t, out, "VEHICLE CONTROL")
	assert.Contains(t, out, "Tank")
	assert.Contains(t, out, ":RELEASE: -> idle")
	assert.Contains(t, out, "ground_vehicle")
	assert.Contains(t, out, `reason="released"`)
}

func TestRun_ShipDestroyed(t *testing.T) {
	out, err := execute(t, "run", "--frames", "40", "--target", "u2", "--possess-at", "5",
		"--destroy-at", "30", "--release-at", "0", "--hud-every", "20")
	require.NoError(t, err)

	assert.Contains(t, out, "SHIP CONTROL")
	assert.Contains(t, out, "Corvette")
	assert.Contains(t, out, "forced=true")
}

func TestRun_WasmBlocks(t *testing.T) {
	out, err := execute(t, "run", "--wasm", "--frames", "10", "--possess-at", "2", "--release-at", "8", "--hud-every", "0")
	require.NoError(t, err)
	assert.Contains(t, out, ":RELEASE: -> idle")
}

func TestRun_UnknownTarget(t *testing.T) {
	out, err := execute(t, "run", "--frames", "5", "--target", "u99", "--possess-at", "1", "--hud-every", "0")
	require.NoError(t, err)
	assert.Contains(t, out, ":TOGGLE: -> error: unknown unit")
}

func TestRun_RejectsBadFrames(t *testing.T) {
	_, err := execute(t, "run", "--frames", "0")
	assert.Error(t, err)
}

func TestLayout(t *testing.T) {
	out, err := execute(t, "layout")
	require.NoError(t, err)

	assert.Contains(t, out, `"throttle": 4`)
	assert.Contains(t, out, `"steering": 12`)
	assert.Contains(t, out, `"hasMobile": true`)
	assert.Contains(t, out, "GroundVehicleFields size=")
	assert.Contains(t, out, "inputs")
}

func TestLayout_UnknownType(t *testing.T) {
	_, err := execute(t, "layout", "--type", "Nope")
	assert.Error(t, err)
}

func configDir(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(body), 0o644))
	return dir
}

func TestLayout_SchemaPointerWidth(t *testing.T) {
	dir := configDir(t, `{"layout": {"shapesFile": "narrow.yaml"}}`)
	shapes := `
pointer_size: 4
types:
  VehicleInputs:
    - {name: throttle, kind: float}
    - {name: brake, kind: float}
    - {name: steering, kind: float}
  GroundVehicleFields:
    - {name: body, kind: pointer}
    - {name: mobile, kind: bool}
    - {name: inputs, type: VehicleInputs}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "narrow.yaml"), []byte(shapes), 0o644))
	t.Chdir(dir)

	out, err := execute(t, "--config", dir, "layout")
	require.NoError(t, err)
	assert.Contains(t, out, `"throttle": 8`)
	assert.Contains(t, out, "pointer=4")
}

func TestLayout_PointerWidthMismatch(t *testing.T) {
	dir := configDir(t, `{"layout": {"pointerSize": 4}}`)

	_, err := execute(t, "--config", dir, "layout")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrPointerWidthMismatch)

	_, err = execute(t, "--config", dir, "run", "--frames", "10")
	assert.ErrorIs(t, err, config.ErrPointerWidthMismatch)
}
