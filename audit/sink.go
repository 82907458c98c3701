package audit

import (
	"sync"

	"go.uber.org/zap"
)

// ZapSink writes audit events through the process logger. Used in
// production so events land in the rotated log files.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Write(event Event) error {
	s.logger.Info("security event",
		zap.String("type", string(event.Type)),
		zap.Time("timestamp", event.Timestamp),
		zap.String("address", event.Address),
		zap.Any("details", event.Details),
	)
	return nil
}

// MemorySink keeps the most recent events in memory. Used by tests and by
// the audit REST endpoint.
type MemorySink struct {
	mu     sync.Mutex
	max    int
	events []Event
}

// NewMemorySink retains at most max events, dropping the oldest. max <= 0
// means unbounded.
func NewMemorySink(max int) *MemorySink {
	return &MemorySink{max: max}
}

func (s *MemorySink) Write(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	if s.max > 0 && len(s.events) > s.max {
		s.events = s.events[len(s.events)-s.max:]
	}
	return nil
}

// Events returns a snapshot of the retained events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// CountByType returns how many retained events have the given type.
func (s *MemorySink) CountByType(eventType EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}
