package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/entrhq/scout/pkg/types"
)

// ErrSinkClosed is returned by Send after Close.
var ErrSinkClosed = errors.New("stream: sink closed")

// ChannelSink delivers events on a channel.
type ChannelSink struct {
	ctx    context.Context
	mu     sync.RWMutex
	ch     chan types.OrchestratorEvent
	closed bool
}

// NewChannelSink creates a sink with the given buffer. Send blocks while
// the buffer is full until ctx is done.
func NewChannelSink(ctx context.Context, buffer int) *ChannelSink {
	return &ChannelSink{ctx: ctx, ch: make(chan types.OrchestratorEvent, buffer)}
}

// Events returns the receive side.
func (s *ChannelSink) Events() <-chan types.OrchestratorEvent {
	return s.ch
}

// Send delivers one event.
func (s *ChannelSink) Send(ev types.OrchestratorEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.ch <- ev:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// Close closes the channel. It is safe to call more than once.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// MultiSink fans events out to several sinks.
type MultiSink []Sink

// Send delivers to every sink and joins the errors.
func (m MultiSink) Send(ev types.OrchestratorEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(types.OrchestratorEvent) error

// Send calls f.
func (f SinkFunc) Send(ev types.OrchestratorEvent) error {
	return f(ev)
}
