package inversion

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Event is one actor state transition.
type Event struct {
	At      time.Time
	RunID   string
	ActorID string
	Role    Role
	From    ActorState
	To      ActorState
}

// EventSink consumes transitions. Emit is called from actor goroutines and
// must not block for long.
type EventSink interface {
	Emit(ev Event)
}

// RunObserver is an optional EventSink extension told when a run finishes.
type RunObserver interface {
	RunFinished(res *Result)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

type multiSink []EventSink

func (m multiSink) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Path returns the states actor id passed through, starting with Idle.
func (r *Recorder) Path(id string) []ActorState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var path []ActorState
	for _, ev := range r.events {
		if ev.ActorID != id {
			continue
		}
		if len(path) == 0 {
			path = append(path, ev.From)
		}
		path = append(path, ev.To)
	}
	return path
}

// First returns the first transition of actor id into state to.
func (r *Recorder) First(id string, to ActorState) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ActorID == id && ev.To == to {
			return ev, true
		}
	}
	return Event{}, false
}

// LogSink writes every transition to a logrus logger.
type LogSink struct {
	Logger *logrus.Logger
	Level  logrus.Level
}

func NewLogSink(l *logrus.Logger) *LogSink {
	if l == nil {
		l = Log
	}
	return &LogSink{Logger: l, Level: logrus.InfoLevel}
}

func (s *LogSink) Emit(ev Event) {
	s.Logger.WithFields(logrus.Fields{
		"run":   ev.RunID,
		"actor": ev.ActorID,
		"role":  ev.Role.String(),
		"from":  ev.From.String(),
		"to":    ev.To.String(),
	}).Logf(s.Level, "[%s] %s -> %s", ev.ActorID, ev.From, ev.To)
}

// Stream hands events to a single consumer such as a live view. Emit never
// blocks: events that do not fit in the buffer, or arrive after Close, are
// counted and dropped so a slow consumer never stalls an actor.
type Stream struct {
	mu      sync.RWMutex
	ch      chan Event
	closed  bool
	dropped atomic.Int64
}

func NewStream(buffer int) *Stream {
	if buffer < Min {
		buffer = Max
	}
	return &Stream{ch: make(chan Event, buffer)}
}

func (s *Stream) Emit(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// C is closed by Close once the run is over.
func (s *Stream) C() <-chan Event {
	return s.ch
}

func (s *Stream) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("stream already closed")
	}
	close(s.ch)
	s.closed = true
	return nil
}
