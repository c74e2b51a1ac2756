package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/layout"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/offsets"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/possession"
	"github.com/9138noms/NuclearOption-VehicleControl/pkg/foreign"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openMemory(t *testing.T, cache *offsets.Cache) *Store {
	t.Helper()
	j, err := Open(Config{Type: "sqlite"}, cache, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	s, ok := j.(*Store)
	require.True(t, ok)
	return s
}

func info(id string) possession.Info {
	return possession.Info{
		ID:         id,
		EntityID:   "u1",
		EntityName: "Tank",
		Kind:       foreign.KindGroundVehicle,
		Saved:      possession.Saved{HoldPosition: true, Mobile: true},
		Started:    start,
	}
}

func TestStore_StartAndEnd(t *testing.T) {
	cache := offsets.NewSchemaCache(layout.DefaultSchema(), layout.NewResolver(0), offsets.DefaultNames(), nil)
	s := openMemory(t, cache)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, possession.Event{Type: possession.EventStarted, Session: info("a")}))

	ended := info("a")
	ended.Ended = start.Add(42 * time.Second)
	ended.Forced = true
	ended.Reason = "entity disabled"
	restore := &possession.RestoreError{Step: "mobile", Cause: errors.New("unit destroyed")}
	require.NoError(t, s.Record(ctx, possession.Event{Type: possession.EventEnded, Session: ended, Err: restore}))

	recs, err := s.Sessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]

	assert.Equal(t, "a", rec.SessionID)
	assert.Equal(t, "ground_vehicle", rec.Kind)
	assert.True(t, rec.Forced)
	assert.Equal(t, "entity disabled", rec.Reason)
	assert.Equal(t, int64(42000), rec.DurationMs)
	assert.Equal(t, "restore mobile: unit destroyed", rec.RestoreErr)
	require.NotNil(t, rec.EndedAt)
	assert.True(t, ended.Ended.Equal(*rec.EndedAt))

	var saved possession.Saved
	require.NoError(t, json.Unmarshal(rec.SavedState, &saved))
	assert.Equal(t, possession.Saved{HoldPosition: true, Mobile: true}, saved)

	var o offsets.Offsets
	require.NoError(t, json.Unmarshal(rec.Offsets, &o))
	assert.Equal(t, uintptr(4), o.Throttle)
	assert.True(t, o.HasMobile)
}

func TestStore_UnresolvedOffsetsStoredAsNull(t *testing.T) {
	cache := offsets.NewCache(func() (offsets.Offsets, error) { return offsets.Offsets{}, layout.ErrUnresolved }, nil)
	s := openMemory(t, cache)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, possession.Event{Type: possession.EventStarted, Session: info("a")}))
	recs, err := s.Sessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "null", string(recs[0].Offsets))
}

func TestStore_EndWithoutStart(t *testing.T) {
	s := openMemory(t, nil)
	err := s.Record(context.Background(), possession.Event{Type: possession.EventEnded, Session: info("ghost")})
	assert.ErrorContains(t, err, "never recorded")

	assert.Error(t, s.Record(context.Background(), possession.Event{}))
}

func TestStore_SessionsNewestFirst(t *testing.T) {
	s := openMemory(t, nil)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		in := info(id)
		in.Started = start.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Record(ctx, possession.Event{Type: possession.EventStarted, Session: in}))
	}

	recs, err := s.Sessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "c", recs[0].SessionID)
	assert.Equal(t, "b", recs[1].SessionID)
}

func TestObserverLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	s := openMemory(t, nil)

	obs := Observer(s, logger)
	obs(possession.Event{Type: possession.EventEnded, Session: info("ghost")})
	assert.Contains(t, buf.String(), "Failed to journal session event")

	buf.Reset()
	obs(possession.Event{Type: possession.EventStarted, Session: info("real")})
	assert.Empty(t, buf.String())
}

func TestOpen(t *testing.T) {
	j, err := Open(Config{Type: "none"}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, Nop{}, j)
	assert.NoError(t, j.Record(context.Background(), possession.Event{}))

	_, err = Open(Config{Type: "mongo"}, nil, nil)
	assert.ErrorContains(t, err, "unknown journal type")

	path := filepath.Join(t.TempDir(), "journal.db")
	j, err = Open(Config{Type: "sqlite", Path: path}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), possession.Event{Type: possession.EventStarted, Session: info("a")}))
	require.NoError(t, j.Close())

	j, err = Open(Config{Type: "sqlite", Path: path}, nil, nil)
	require.NoError(t, err)
	defer j.Close()
	recs, err := j.Sessions(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestOpen_PostgresFallsBackToSqlite(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	j, err := Open(Config{
		Type: "postgres",
		DSN:  "host=127.0.0.1 port=1 user=vc dbname=vc sslmode=disable connect_timeout=1",
	}, nil, logger)
	require.NoError(t, err)
	defer j.Close()

	assert.IsType(t, &Store{}, j)
	assert.Contains(t, buf.String(), "trying SQLite")
	assert.Equal(t, "sqlite", j.(*Store).DB().Dialector.Name())
}
