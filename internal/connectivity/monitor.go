// Package connectivity tracks network reachability and kicks a sync pass
// when the device comes back online.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State is the snapshot published to subscribers.
type State struct {
	Online   bool
	Wifi     bool
	Syncing  bool
	Pending  int
	LastSync time.Time
}

// PendingCounter counts unsynced events for a user. storage.DB satisfies it.
type PendingCounter interface {
	PendingCount(ctx context.Context, userID int64) (int, error)
}

// Identity reports the signed-in user. session.Store satisfies it.
type Identity interface {
	UserID() int64
}

// Syncer runs a reconciliation pass.
type Syncer interface {
	SyncAll(ctx context.Context) bool
}

// Monitor folds per-network reachability events into a single State.
type Monitor struct {
	counter  PendingCounter
	identity Identity
	debounce time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	networks   map[string]Transport
	state      State
	syncer     Syncer
	timer      *time.Timer
	generation uint64
	subs       map[int]chan State
	nextSub    int
}

// New creates a monitor that starts offline.
func New(counter PendingCounter, identity Identity, debounce time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		counter:  counter,
		identity: identity,
		debounce: debounce,
		logger:   logger,
		networks: make(map[string]Transport),
		subs:     make(map[int]chan State),
	}
}

// Run consumes src until ctx is done, triggering syncer.SyncAll once per
// offline to online transition.
func (m *Monitor) Run(ctx context.Context, src Source, syncer Syncer) error {
	m.mu.Lock()
	m.syncer = syncer
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.generation++
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
		m.syncer = nil
		m.mu.Unlock()
	}()

	events := src.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return ctx.Err()
			}
			m.Observe(ctx, ev)
		}
	}
}

// Observe applies a single reachability event. Without a running syncer the
// state is updated but no pass is scheduled.
func (m *Monitor) Observe(ctx context.Context, ev Event) {
	m.mu.Lock()
	wasOnline := m.state.Online
	if ev.Available {
		m.networks[ev.Network] = ev.Transport
	} else {
		delete(m.networks, ev.Network)
	}
	// Only wifi, cellular and ethernet links reach the service; bridges and
	// tunnels (TransportOther) are tracked but never count as online.
	m.state.Online = false
	m.state.Wifi = false
	for _, t := range m.networks {
		switch t {
		case TransportWifi:
			m.state.Online = true
			m.state.Wifi = true
		case TransportEthernet, TransportCellular:
			m.state.Online = true
		}
	}

	switch {
	case !wasOnline && m.state.Online:
		m.generation++
		m.stopTimerLocked()
		if m.syncer != nil {
			gen := m.generation
			m.timer = time.AfterFunc(m.debounce, func() { m.fire(ctx, gen) })
		}
		m.logger.Info("Network available", "network", ev.Network, "transport", ev.Transport)
	case wasOnline && !m.state.Online:
		m.generation++
		m.stopTimerLocked()
		m.logger.Info("Network lost", "network", ev.Network)
	}
	m.mu.Unlock()

	m.RefreshPending(ctx)
}

func (m *Monitor) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Monitor) fire(ctx context.Context, gen uint64) {
	m.mu.Lock()
	if gen != m.generation || !m.state.Online || m.syncer == nil {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	syncer := m.syncer
	m.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	syncer.SyncAll(ctx)
}

// IsOnline reports whether any network is currently available.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Online
}

// State returns the current snapshot.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe returns a channel that always holds the latest snapshot, and a
// function that ends the subscription.
func (m *Monitor) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan State, 1)
	ch <- m.state
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

func (m *Monitor) publishLocked() {
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- m.state:
		default:
		}
	}
}

// SetSyncing flags a pass as running.
func (m *Monitor) SetSyncing(syncing bool) {
	m.mu.Lock()
	m.state.Syncing = syncing
	m.publishLocked()
	m.mu.Unlock()
}

// RecordSync stores the completion time of a pass.
func (m *Monitor) RecordSync(at time.Time) {
	m.mu.Lock()
	m.state.LastSync = at
	m.publishLocked()
	m.mu.Unlock()
}

// RefreshPending recounts unsynced events for the signed-in user, 0 when
// nobody is signed in. A failed count keeps the previous value.
func (m *Monitor) RefreshPending(ctx context.Context) {
	count := 0
	if userID := m.identity.UserID(); userID > 0 {
		n, err := m.counter.PendingCount(ctx, userID)
		if err != nil {
			m.logger.Warn("Failed to count pending events", "user_id", userID, "error", err)
			m.mu.Lock()
			m.publishLocked()
			m.mu.Unlock()
			return
		}
		count = n
	}
	m.mu.Lock()
	m.state.Pending = count
	m.publishLocked()
	m.mu.Unlock()
}
