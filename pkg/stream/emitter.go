// Package stream delivers orchestrator events to clients. An Emitter
// numbers events and enforces the stream shape: lifecycle events first,
// then exactly one text-start/text-delta/text-end frame carrying either the
// answer or the error.
package stream

import (
	"errors"
	"fmt"
	"sync"

	"github.com/entrhq/scout/pkg/types"
)

// Text frame IDs.
const (
	ResponseID = "thinker-doer-response"
	ErrorID    = "thinker-doer-error"
)

var (
	// ErrTextFramed is returned for any event after the final text frame began.
	ErrTextFramed = errors.New("stream: final text already emitted")
	// ErrNotLifecycle is returned when Emit is given a text framing event.
	ErrNotLifecycle = errors.New("stream: text events must go through FinishText")
)

// Sink receives numbered events.
type Sink interface {
	Send(types.OrchestratorEvent) error
}

// Emitter serializes events to a sink. It is safe for concurrent use.
type Emitter struct {
	mu     sync.Mutex
	sink   Sink
	seq    int
	framed bool
}

// NewEmitter creates an emitter writing to sink.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

// Emit sends a lifecycle event.
func (e *Emitter) Emit(ev types.OrchestratorEvent) error {
	if !ev.Type.Lifecycle() {
		return ErrNotLifecycle
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.framed {
		return ErrTextFramed
	}
	return e.send(ev)
}

// FinishText emits the answer as the single text frame.
func (e *Emitter) FinishText(text string) error {
	return e.FinishTextWithID(ResponseID, text)
}

// FinishTextWithID emits the single text frame with a custom id.
func (e *Emitter) FinishTextWithID(id, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame(id, text)
}

// Fail emits an error event followed by an error text frame.
func (e *Emitter) Fail(err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.framed {
		return ErrTextFramed
	}
	if serr := e.send(types.NewErrorEvent(err)); serr != nil {
		return serr
	}
	return e.frame(ErrorID, fmt.Sprintf("Error: %v", err))
}

// Framed reports whether the final text frame has been emitted.
func (e *Emitter) Framed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.framed
}

func (e *Emitter) frame(id, text string) error {
	if e.framed {
		return ErrTextFramed
	}
	e.framed = true
	for _, ev := range []types.OrchestratorEvent{
		types.NewTextEvent(types.EventTypeTextStart, id, ""),
		types.NewTextEvent(types.EventTypeTextDelta, id, text),
		types.NewTextEvent(types.EventTypeTextEnd, id, ""),
	} {
		if err := e.send(ev); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) send(ev types.OrchestratorEvent) error {
	e.seq++
	ev.Seq = e.seq
	if e.sink == nil {
		return nil
	}
	return e.sink.Send(ev)
}
