package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/entrhq/scout/pkg/types"
)

// SSESink writes events as server-sent events:
//
//	event: <type>
//	data: <json>
//
// Every event is flushed immediately.
type SSESink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// NewSSESink writes the event-stream headers and returns a sink. It fails
// when w cannot flush.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported by %T", w)
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSESink{w: w, flusher: flusher, stop: make(chan struct{})}, nil
}

// Send writes one event.
func (s *SSESink) Send(ev types.OrchestratorEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.Type, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// StartHeartbeat writes a comment line every interval until Close.
func (s *SSESink) StartHeartbeat(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				_, err := fmt.Fprint(s.w, ": heartbeat\n\n")
				if err == nil {
					s.flusher.Flush()
				}
				s.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()
}

// Close stops the heartbeat and waits for it to exit.
func (s *SSESink) Close() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}
