package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity classifies an event for display and filtering.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Kind distinguishes retained log entries from transient status pushes.
type Kind string

const (
	KindLog    Kind = "log"
	KindStatus Kind = "status"
)

// Entry is a single event produced by the bot.
type Entry struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	CycleID   string         `json:"cycleId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// ringBuffer is a fixed-size circular buffer for log entries.
type ringBuffer struct {
	entries []Entry
	size    int
	pos     int
	full    bool
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{
		entries: make([]Entry, size),
		size:    size,
	}
}

func (rb *ringBuffer) append(entry Entry) {
	rb.entries[rb.pos] = entry
	rb.pos = (rb.pos + 1) % rb.size
	if rb.pos == 0 {
		rb.full = true
	}
}

// all returns the buffered entries in chronological order.
func (rb *ringBuffer) all() []Entry {
	if !rb.full {
		result := make([]Entry, rb.pos)
		copy(result, rb.entries[:rb.pos])
		return result
	}

	result := make([]Entry, rb.size)
	copy(result, rb.entries[rb.pos:])
	copy(result[rb.size-rb.pos:], rb.entries[:rb.pos])
	return result
}

// Sink collects events into a bounded ring buffer and fans them out to
// subscribers. Every log entry is also mirrored to the process logger.
type Sink struct {
	buffer      *ringBuffer
	subscribers []chan Entry
	logger      *slog.Logger
	mu          sync.RWMutex
}

// NewSink creates a sink retaining the most recent bufferSize log entries.
func NewSink(logger *slog.Logger, bufferSize int) *Sink {
	return &Sink{
		buffer: newRingBuffer(bufferSize),
		logger: logger,
	}
}

// Publish records a log entry in the ring buffer and broadcasts it.
// Zero ID and timestamp fields are filled in.
func (s *Sink) Publish(entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Kind == "" {
		entry.Kind = KindLog
	}
	if entry.Severity == "" {
		entry.Severity = SeverityInfo
	}

	s.mirror(entry)

	s.mu.Lock()
	s.buffer.append(entry)
	subscribers := make([]chan Entry, len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.Unlock()

	broadcast(subscribers, entry)
}

// Broadcast pushes a transient entry to subscribers without retaining it in
// the ring buffer. Used for status snapshots, which are replayed on attach
// from the bot's current snapshot instead.
func (s *Sink) Broadcast(entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	s.mu.RLock()
	subscribers := make([]chan Entry, len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.RUnlock()

	broadcast(subscribers, entry)
}

func broadcast(subscribers []chan Entry, entry Entry) {
	for _, ch := range subscribers {
		select {
		case ch <- entry:
		default:
			// Don't block the loop on a slow subscriber.
		}
	}
}

func (s *Sink) mirror(entry Entry) {
	if s.logger == nil {
		return
	}
	args := make([]any, 0, 2*len(entry.Data)+2)
	if entry.CycleID != "" {
		args = append(args, "cycle", entry.CycleID)
	}
	for k, v := range entry.Data {
		args = append(args, k, v)
	}
	switch entry.Severity {
	case SeverityWarning:
		s.logger.Warn(entry.Message, args...)
	case SeverityError:
		s.logger.Error(entry.Message, args...)
	default:
		s.logger.Info(entry.Message, args...)
	}
}

// Info publishes an info-level log entry.
func (s *Sink) Info(message string, data map[string]any) {
	s.Publish(Entry{Severity: SeverityInfo, Message: message, Data: data})
}

// Success publishes a success-level log entry.
func (s *Sink) Success(message string, data map[string]any) {
	s.Publish(Entry{Severity: SeveritySuccess, Message: message, Data: data})
}

// Warning publishes a warning-level log entry.
func (s *Sink) Warning(message string, data map[string]any) {
	s.Publish(Entry{Severity: SeverityWarning, Message: message, Data: data})
}

// Error publishes an error-level log entry.
func (s *Sink) Error(message string, data map[string]any) {
	s.Publish(Entry{Severity: SeverityError, Message: message, Data: data})
}

// Recent returns up to n of the most recent log entries in chronological
// order.
func (s *Sink) Recent(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.buffer.all()
	if len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}

// Subscribe creates a subscription channel receiving every published and
// broadcast entry. The channel is buffered; entries are dropped rather than
// blocking the producer.
func (s *Sink) Subscribe() chan Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Entry, 100)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscription channel.
func (s *Sink) Unsubscribe(ch chan Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			break
		}
	}
}
