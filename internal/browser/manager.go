// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultCloseTimeout bounds how long a single session may take to close.
const DefaultCloseTimeout = 15 * time.Second

// Manager owns the sessions of every execution unit. Each unit has at most one
// live session; sessions are never shared between units. The registry is the
// only shared state and is mutated under mu.
type Manager struct {
	launcher     Launcher
	logger       *zap.Logger
	closeTimeout time.Duration

	mu       sync.Mutex
	sessions map[UnitID]*Session
}

// NewManager creates a session manager backed by launcher.
func NewManager(launcher Launcher, logger *zap.Logger) *Manager {
	return &Manager{
		launcher:     launcher,
		logger:       logger.Named("session_manager"),
		closeTimeout: DefaultCloseTimeout,
		sessions:     make(map[UnitID]*Session),
	}
}

// Init starts a new session for unit. Any session the unit already has is
// terminated first, so a unit never holds two live sessions.
func (m *Manager) Init(ctx context.Context, unit UnitID) (*Session, error) {
	if unit == "" {
		return nil, errors.New("session manager: empty unit id")
	}

	if prior := m.remove(unit); prior != nil {
		m.logger.Warn("Unit already had a session; terminating it before re-initializing.",
			zap.String("unit", string(unit)), zap.String("session_id", prior.ID()))
		m.close(prior)
	}

	s, err := m.launcher.Launch(ctx, unit)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session for unit %s: %w", unit, err)
	}

	m.mu.Lock()
	// Units are exclusive, so a concurrent Init for the same unit is a caller bug;
	// keep the newest session and release the other one.
	displaced := m.sessions[unit]
	m.sessions[unit] = s
	m.mu.Unlock()
	if displaced != nil {
		m.close(displaced)
	}

	m.logger.Debug("Session registered.", zap.String("unit", string(unit)), zap.String("session_id", s.ID()))
	return s, nil
}

// Get returns the unit's session, initializing one when the unit has none or
// its previous session died.
func (m *Manager) Get(ctx context.Context, unit UnitID) (*Session, error) {
	m.mu.Lock()
	s := m.sessions[unit]
	m.mu.Unlock()

	if s != nil && s.Alive() {
		return s, nil
	}
	if s != nil {
		m.logger.Warn("Session terminated unexpectedly; re-initializing.", zap.String("unit", string(unit)))
	}
	return m.Init(ctx, unit)
}

// Terminate closes the unit's session. Terminating a unit without a session is a no-op.
func (m *Manager) Terminate(ctx context.Context, unit UnitID) error {
	s := m.remove(unit)
	if s == nil {
		return nil
	}
	closeCtx, cancel := context.WithTimeout(Detach(ctx), m.closeTimeout)
	defer cancel()
	return s.Close(closeCtx)
}

// WithSession runs fn with a fresh session for unit and always terminates it
// afterwards, including when fn panics.
func (m *Manager) WithSession(ctx context.Context, unit UnitID, fn func(*Session) error) (err error) {
	s, err := m.Init(ctx, unit)
	if err != nil {
		return err
	}
	defer func() {
		if termErr := m.Terminate(ctx, unit); termErr != nil {
			m.logger.Warn("Failed to terminate session.", zap.String("unit", string(unit)), zap.Error(termErr))
		}
	}()
	return fn(s)
}

// Live returns the units that currently hold a session, sorted.
func (m *Manager) Live() []UnitID {
	m.mu.Lock()
	defer m.mu.Unlock()
	units := make([]UnitID, 0, len(m.sessions))
	for u := range m.sessions {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })
	return units
}

// Sweep force-terminates every registered session. It holds the registry lock
// for the whole sweep; a session that fails or hangs is logged and skipped so
// the rest are still released. The returned error joins all failures.
func (m *Manager) Sweep(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) == 0 {
		return nil
	}
	m.logger.Warn("Sweeping live sessions.", zap.Int("count", len(m.sessions)))

	var errs []error
	for unit, s := range m.sessions {
		closeCtx, cancel := context.WithTimeout(Detach(ctx), m.closeTimeout)
		if err := s.Close(closeCtx); err != nil {
			m.logger.Error("Failed to terminate session during sweep.",
				zap.String("unit", string(unit)), zap.String("session_id", s.ID()), zap.Error(err))
			errs = append(errs, fmt.Errorf("unit %s: %w", unit, err))
		}
		cancel()
		delete(m.sessions, unit)
	}
	return errors.Join(errs...)
}

// SweepOnCancel sweeps the registry once ctx is done. It is the last-resort
// cleanup for abnormal termination (an interrupt signal canceling the run
// context); normal runs release sessions through WithSession. The returned
// stop func cancels the watch and waits for the watcher to exit.
func (m *Manager) SweepOnCancel(ctx context.Context) (stop func()) {
	quit := make(chan struct{})
	done := make(chan struct{})
	sweep := func() {
		if err := m.Sweep(context.Background()); err != nil {
			m.logger.Error("Shutdown sweep finished with errors.", zap.Error(err))
		}
	}
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			sweep()
		case <-quit:
			// A stop racing a cancellation must not skip the sweep.
			if ctx.Err() != nil {
				sweep()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(quit) })
		<-done
	}
}

func (m *Manager) remove(unit UnitID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[unit]
	delete(m.sessions, unit)
	return s
}

func (m *Manager) close(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), m.closeTimeout)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		m.logger.Warn("Failed to close session.", zap.String("session_id", s.ID()), zap.Error(err))
	}
}
