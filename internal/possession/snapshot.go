package possession

import (
	"time"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/override"
	"github.com/9138noms/NuclearOption-VehicleControl/pkg/foreign"
)

// Snapshot is a read-only view for presentation.
type Snapshot struct {
	State      State
	SessionID  string
	EntityID   string
	EntityName string
	Kind       foreign.Kind
	Frame      override.ControlFrame
	Started    time.Time
	// Motion is set when the unit reports speed and heading.
	Motion  bool
	Speed   float32
	Heading float32
}

// Snapshot copies the current session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	s := m.session
	snap := Snapshot{State: m.state}
	m.mu.Unlock()

	if s == nil {
		return snap
	}
	snap.SessionID = s.ID()
	snap.EntityID = s.entity.ID()
	snap.EntityName = s.entity.Name()
	snap.Kind = s.entity.Kind()
	snap.Started = s.started
	snap.Frame = m.coord.Frame()
	if k, ok := s.entity.(foreign.Kinematic); ok {
		snap.Motion = true
		snap.Speed = k.Speed()
		snap.Heading = k.Heading()
	}
	return snap
}
