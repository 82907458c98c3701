// Package audit records security-relevant wallet lifecycle events.
// Logging is best effort: a failing sink must never break the wallet
// operation being logged.
//
// Callers must never pass raw secrets (mnemonics, private keys) into Log.
// Only addresses are accepted as hints and they are masked before being
// attached to the event.
package audit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type EventType string

const (
	EventWalletCreated      EventType = "WALLET_CREATED"
	EventWalletRecovered    EventType = "WALLET_RECOVERED"
	EventWalletImported     EventType = "WALLET_IMPORTED"
	EventWalletConnected    EventType = "WALLET_CONNECTED"
	EventWalletDisconnected EventType = "WALLET_DISCONNECTED"
	EventWalletDeleted      EventType = "WALLET_DELETED"
	EventExportAttempt      EventType = "EXPORT_ATTEMPT"
	EventExportSuccess      EventType = "EXPORT_SUCCESS"
	EventExportFailure      EventType = "EXPORT_FAILURE"
)

// Event is an immutable security audit record. Address carries only the
// masked form of the address hint.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Address   string                 `json:"address,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Sink receives audit events. Implementations must be safe for concurrent
// use; errors are discarded by the logger.
type Sink interface {
	Write(event Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event Event) error

func (f SinkFunc) Write(event Event) error {
	return f(event)
}

// Logger fans events out to its sinks. One instance is constructed at
// startup and shared by every wallet manager in the process.
type Logger struct {
	mu    sync.RWMutex
	clock clockwork.Clock
	sinks []Sink
}

func New(clock clockwork.Clock, sinks ...Sink) *Logger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Logger{
		clock: clock,
		sinks: sinks,
	}
}

// AddSink registers an additional sink after construction.
func (l *Logger) AddSink(sink Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, sink)
}

// Log records a security event. Fire and forget: sink errors and panics
// are swallowed so logging can never fail the calling operation.
func (l *Logger) Log(eventType EventType, details map[string]interface{}, addressHint string) {
	defer func() {
		recover()
	}()

	event := Event{
		Type:      eventType,
		Timestamp: l.clock.Now(),
		Address:   MaskAddress(addressHint),
		Details:   details,
	}

	l.mu.RLock()
	sinks := l.sinks
	l.mu.RUnlock()

	for _, sink := range sinks {
		writeSafe(sink, event)
	}
}

func writeSafe(sink Sink, event Event) {
	defer func() {
		recover()
	}()
	sink.Write(event)
}

// MaskAddress keeps only a short prefix and suffix of an address so events
// are correlatable without exposing the full address.
func MaskAddress(address string) string {
	if address == "" {
		return ""
	}
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
