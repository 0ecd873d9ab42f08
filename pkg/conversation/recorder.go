package conversation

import (
	"context"

	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/types"
)

// Recorder wraps a Store for request paths where persistence must not fail
// the request. Failures are logged as persistence failures and reported to
// the caller as a skipped write or an empty history.
type Recorder struct {
	store  Store
	logger *logging.Logger
}

// NewRecorder creates a recorder. A nil logger uses the "conversation"
// component logger.
func NewRecorder(store Store, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.NewLogger("conversation")
	}
	return &Recorder{store: store, logger: logger}
}

// Store returns the wrapped store.
func (r *Recorder) Store() Store {
	return r.store
}

// Append stores msg and reports whether it was written. Messages with a
// pending tool call are refused.
func (r *Recorder) Append(ctx context.Context, key string, msg types.Message) bool {
	if err := r.store.Append(ctx, key, msg); err != nil {
		r.logger.Warnf("write skipped: %v", types.NewPersistenceFailure("append", key, err))
		return false
	}
	return true
}

// Load returns the transcript, or an empty one when it cannot be read.
func (r *Recorder) Load(ctx context.Context, key string) []types.Message {
	msgs, err := r.store.Load(ctx, key)
	if err != nil {
		r.logger.Warnf("history unavailable: %v", types.NewPersistenceFailure("load", key, err))
		return []types.Message{}
	}
	return msgs
}

// Clear empties the transcript and reports whether it succeeded.
func (r *Recorder) Clear(ctx context.Context, key string) bool {
	if err := r.store.Clear(ctx, key); err != nil {
		r.logger.Warnf("clear skipped: %v", types.NewPersistenceFailure("clear", key, err))
		return false
	}
	return true
}

// Meta returns the metadata, or fresh metadata when it cannot be read.
func (r *Recorder) Meta(ctx context.Context, key string) Metadata {
	m, err := r.store.Meta(ctx, key)
	if err != nil {
		r.logger.Warnf("metadata unavailable: %v", types.NewPersistenceFailure("meta", key, err))
		return newMetadata(key)
	}
	return m
}
