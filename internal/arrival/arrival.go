package arrival

import (
	"errors"
	"sync"
	"time"

	"github.com/example/ride-hail-core/internal/observability"
)

type State string

const (
	Pending   State = "pending"
	Confirmed State = "confirmed"
	Expired   State = "expired"
)

var (
	ErrAlreadyStarted = errors.New("arrival countdown already started for trip")
	ErrUnknownTrip    = errors.New("no arrival countdown for trip")
	ErrDecided        = errors.New("arrival countdown already decided")
)

type countdown struct {
	tripID   string
	holdID   string
	driverID string
	state    State
	deadline time.Time
	timer    *time.Timer
}

// Manager runs driver-arrival confirmation countdowns. A countdown moves
// pending -> confirmed | expired and never transitions again. Expiry invokes
// the forfeiture callback off the Manager's lock.
type Manager struct {
	mu       sync.Mutex
	trips    map[string]*countdown
	onExpire func(tripID, holdID, driverID string)
}

func NewManager(onExpire func(tripID, holdID, driverID string)) *Manager {
	return &Manager{trips: make(map[string]*countdown), onExpire: onExpire}
}

// Start arms the countdown for a trip. holdID may be empty when no wallet
// guarantee is linked; when one is, driverID names the driver the forfeited
// penalty is credited to on expiry. Starting an existing trip fails, even
// after it decided: the caller must treat each trip's countdown as
// single-shot.
func (m *Manager) Start(tripID, holdID, driverID string, window time.Duration) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trips[tripID]; ok {
		return time.Time{}, ErrAlreadyStarted
	}
	c := &countdown{
		tripID:   tripID,
		holdID:   holdID,
		driverID: driverID,
		state:    Pending,
		deadline: time.Now().Add(window),
	}
	c.timer = time.AfterFunc(window, func() { m.expire(tripID) })
	m.trips[tripID] = c
	return c.deadline, nil
}

// Confirm lands the driver before the deadline.
func (m *Manager) Confirm(tripID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.trips[tripID]
	if !ok {
		return ErrUnknownTrip
	}
	if c.state != Pending {
		return ErrDecided
	}
	c.state = Confirmed
	c.timer.Stop()
	return nil
}

func (m *Manager) expire(tripID string) {
	m.mu.Lock()
	c, ok := m.trips[tripID]
	if !ok || c.state != Pending {
		m.mu.Unlock()
		return
	}
	c.state = Expired
	holdID, driverID := c.holdID, c.driverID
	m.mu.Unlock()

	observability.ArrivalsExpired.Inc()
	if m.onExpire != nil {
		m.onExpire(tripID, holdID, driverID)
	}
}

// Status reports the countdown state for a trip.
func (m *Manager) Status(tripID string) (State, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.trips[tripID]
	if !ok {
		return "", time.Time{}, false
	}
	return c.state, c.deadline, true
}

// Stop cancels all pending timers; no callbacks fire afterwards.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.trips {
		if c.state == Pending {
			c.timer.Stop()
		}
	}
}
