package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/logging"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/override"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/possession"
	"github.com/9138noms/NuclearOption-VehicleControl/pkg/foreign"
)

type fixedSnapshot possession.Snapshot

func (f fixedSnapshot) Snapshot() possession.Snapshot { return possession.Snapshot(f) }

func newService(t *testing.T, snap possession.Snapshot) (*Service, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "status")
	lm := logging.NewSlogManager()
	lm.Setup(&nopWriter{}, "debug", nil)
	return NewService(Dependencies{
		Possession:      fixedSnapshot(snap),
		LogManager:      lm,
		OffsetsResolved: func() bool { return true },
		StatusFolder:    dir,
		Interval:        10 * time.Millisecond,
	}), dir
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestGetStatus_Idle(t *testing.T) {
	s, _ := newService(t, possession.Snapshot{})
	st := s.GetStatus(time.Unix(100, 0))

	assert.Equal(t, "idle", st.State)
	assert.Empty(t, st.Session)
	assert.Nil(t, st.Speed)
	assert.True(t, st.OffsetsResolved)
}

func TestGetStatus_Active(t *testing.T) {
	started := time.Unix(100, 0)
	s, _ := newService(t, possession.Snapshot{
		State:      possession.StateActive,
		SessionID:  "abc",
		EntityID:   "u1",
		EntityName: "Tank",
		Kind:       foreign.KindGroundVehicle,
		Frame:      override.ControlFrame{Throttle: 0.5},
		Started:    started,
		Motion:     true,
		Speed:      7,
		Heading:    90,
	})
	st := s.GetStatus(started.Add(3 * time.Second))

	assert.Equal(t, "abc", st.Session)
	assert.Equal(t, "u1", st.Unit)
	assert.Equal(t, "ground_vehicle", st.Kind)
	assert.Equal(t, float32(0.5), st.Frame.Throttle)
	assert.Equal(t, 3.0, st.DurationSeconds)
	require.NotNil(t, st.Speed)
	assert.Equal(t, float32(7), *st.Speed)
	assert.Equal(t, float32(90), *st.Heading)
}

func TestStartWritesStatusFile(t *testing.T) {
	s, dir := newService(t, possession.Snapshot{State: possession.StateActive, SessionID: "abc"})
	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "second start is a no-op")
	assert.True(t, s.IsRunning())

	path := filepath.Join(dir, StatusFileName)
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal(b, &st))
	assert.Equal(t, "active", st.State)
	assert.Equal(t, "abc", st.Session)
}
