package possession

import (
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/override"
	"github.com/9138noms/NuclearOption-VehicleControl/pkg/foreign"
)

// Session is the handle to one possession. Only the holder of a live
// session can steer through it; it stops working once released.
type Session struct {
	id      xid.ID
	manager *Manager
	entity  foreign.Entity
	saved   Saved
	started time.Time
	closed  atomic.Bool
}

func (s *Session) ID() string             { return s.id.String() }
func (s *Session) Entity() foreign.Entity { return s.entity }
func (s *Session) Kind() foreign.Kind     { return s.entity.Kind() }
func (s *Session) Saved() Saved           { return s.saved }
func (s *Session) Started() time.Time     { return s.started }

// Active reports whether the session still owns its entity.
func (s *Session) Active() bool {
	return !s.closed.Load()
}

// SetControls replaces the control frame of this session.
func (s *Session) SetControls(f override.ControlFrame) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return s.manager.setControls(s, f)
}

func (s *Session) info() Info {
	return Info{
		ID:         s.ID(),
		EntityID:   s.entity.ID(),
		EntityName: s.entity.Name(),
		Kind:       s.entity.Kind(),
		Saved:      s.saved,
		Started:    s.started,
	}
}
