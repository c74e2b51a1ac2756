package telemetry

import (
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/override"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/possession"
)

const (
	measurementWrite   = "override_write"
	measurementSession = "possession_session"
)

// PointWriter accepts points. *Writer implements it.
type PointWriter interface {
	WritePoint(p *influxdb2_write.Point) error
}

// WritePoint converts one override write.
func WritePoint(w override.Write, at time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(
		measurementWrite,
		map[string]string{
			"entity": w.EntityID,
			"path":   string(w.Path),
		},
		map[string]any{
			"frame_throttle":  float64(w.Frame.Throttle),
			"frame_steering":  float64(w.Frame.Steering),
			"frame_brake":     float64(w.Frame.Brake),
			"native_throttle": float64(w.Native.Throttle),
			"native_steering": float64(w.Native.Steering),
			"native_brake":    float64(w.Native.Brake),
			"mobile_cleared":  w.MobileCleared,
		},
		at,
	)
}

// SessionPoint converts a lifecycle event. Started events are stamped with
// the start time, ended events with the end time.
func SessionPoint(ev possession.Event) *influxdb2_write.Point {
	s := ev.Session
	p := influxdb2_write.NewPointWithMeasurement(measurementSession).
		AddTag("entity", s.EntityID).
		AddTag("kind", s.Kind.String())

	switch ev.Type {
	case possession.EventStarted:
		p.AddTag("event", "started").
			AddField("session", s.ID).
			AddField("name", s.EntityName).
			SetTime(s.Started)
	default:
		p.AddTag("event", "ended").
			AddField("session", s.ID).
			AddField("name", s.EntityName).
			AddField("duration_ms", s.Duration().Milliseconds()).
			AddField("forced", s.Forced).
			AddField("reason", s.Reason).
			AddField("restore_failed", ev.Err != nil).
			SetTime(s.Ended)
	}
	return p
}

// WriteObserver forwards override writes to w, at most one per entity and
// interval. A zero interval forwards every write.
func WriteObserver(w PointWriter, interval time.Duration, logger zerolog.Logger) override.Observer {
	var (
		mu   sync.Mutex
		last = map[string]time.Time{}
	)
	return func(wr override.Write) {
		now := time.Now()
		if interval > 0 {
			mu.Lock()
			prev, seen := last[wr.EntityID]
			if seen && now.Sub(prev) < interval {
				mu.Unlock()
				return
			}
			last[wr.EntityID] = now
			mu.Unlock()
		}
		if err := w.WritePoint(WritePoint(wr, now)); err != nil {
			logger.Error().Err(err).Str("entity", wr.EntityID).Msg("Failed to write override point")
		}
	}
}

// SessionObserver forwards lifecycle events to w.
func SessionObserver(w PointWriter, logger zerolog.Logger) possession.Observer {
	return func(ev possession.Event) {
		if err := w.WritePoint(SessionPoint(ev)); err != nil {
			logger.Error().Err(err).Str("session", ev.Session.ID).Msg("Failed to write session point")
		}
	}
}
