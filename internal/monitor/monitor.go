package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/logging"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/override"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/possession"
)

// StatusFileName is written into the status folder.
const StatusFileName = "status.json"

// Snapshotter is the read side of the possession manager.
type Snapshotter interface {
	Snapshot() possession.Snapshot
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Possession Snapshotter
	LogManager *logging.SlogManager
	// OffsetsResolved reports whether native writes are possible. It may be nil.
	OffsetsResolved func() bool
	StatusFolder    string
	// Interval defaults to one second.
	Interval time.Duration
}

// Status is the content of the status file.
type Status struct {
	Time            time.Time             `json:"time"`
	State           string                `json:"state"`
	Session         string                `json:"session,omitempty"`
	Unit            string                `json:"unit,omitempty"`
	Name            string                `json:"name,omitempty"`
	Kind            string                `json:"kind,omitempty"`
	Frame           override.ControlFrame `json:"frame"`
	Speed           *float32              `json:"speed,omitempty"`
	Heading         *float32              `json:"heading,omitempty"`
	DurationSeconds float64               `json:"durationSeconds"`
	OffsetsResolved bool                  `json:"offsetsResolved"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current possession status.
func (s *Service) GetStatus(now time.Time) Status {
	snap := s.deps.Possession.Snapshot()
	st := Status{
		Time:  now,
		State: snap.State.String(),
	}
	if s.deps.OffsetsResolved != nil {
		st.OffsetsResolved = s.deps.OffsetsResolved()
	}
	if snap.SessionID == "" {
		return st
	}
	st.Session = snap.SessionID
	st.Unit = snap.EntityID
	st.Name = snap.EntityName
	st.Kind = snap.Kind.String()
	st.Frame = snap.Frame
	st.DurationSeconds = now.Sub(snap.Started).Seconds()
	if snap.Motion {
		speed, heading := snap.Speed, snap.Heading
		st.Speed, st.Heading = &speed, &heading
	}
	return st
}

// WriteStatus replaces the status file with the current status.
func (s *Service) WriteStatus(now time.Time) error {
	b, err := json.MarshalIndent(s.GetStatus(now), "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.deps.StatusFolder, StatusFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0644); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(s.deps.StatusFolder, 0755); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("creating status folder: %w", err)
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "function", "startStatusMonitor")

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		failing := false
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				err := s.WriteStatus(now)
				switch {
				case err != nil && !failing:
					logger.Error("Error writing status file", "error", err)
					failing = true
				case err == nil && failing:
					logger.Info("Status file writable again")
					failing = false
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for its goroutine.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
