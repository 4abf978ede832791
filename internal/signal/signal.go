// Package signal delivers access decisions to loosely-coupled subscribers.
// Sinks are notified synchronously after each middleware decision; they are
// observers only and cannot influence the decision.
package signal

import (
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// GrantedEvent describes a successful token validation.
type GrantedEvent struct {
	Request       *http.Request
	TokenID       string
	ProtectedPath string
	At            time.Time
}

// DeniedEvent describes a denied request.
type DeniedEvent struct {
	Request *http.Request
	Path    string
	Reason  string
	At      time.Time
}

// Sink consumes access events.
type Sink interface {
	AccessGranted(event GrantedEvent)
	AccessDenied(event DeniedEvent)
}

// Dispatcher fans events out to registered sinks.
type Dispatcher struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register appends a sink to the delivery list.
func (d *Dispatcher) Register(sink Sink) {
	if d == nil || sink == nil {
		return
	}
	d.mu.Lock()
	d.sinks = append(d.sinks, sink)
	d.mu.Unlock()
}

func (d *Dispatcher) snapshot() []Sink {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sinks := make([]Sink, len(d.sinks))
	copy(sinks, d.sinks)
	return sinks
}

// Granted notifies every sink of a successful validation. A panicking sink
// is logged and skipped; observers must not break request handling.
func (d *Dispatcher) Granted(event GrantedEvent) {
	if d == nil {
		return
	}
	for _, sink := range d.snapshot() {
		notify(func() { sink.AccessGranted(event) })
	}
}

// Denied notifies every sink of a denial.
func (d *Dispatcher) Denied(event DeniedEvent) {
	if d == nil {
		return
	}
	for _, sink := range d.snapshot() {
		notify(func() { sink.AccessDenied(event) })
	}
}

func notify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("signal: sink panicked: %v", r)
		}
	}()
	fn()
}
