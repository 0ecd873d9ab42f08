// Package conversation persists conversation transcripts and their session
// metadata per key.
//
// Every backend writes the transcript before the metadata that describes
// it, so a reader never sees metadata for a message that is not stored.
// Appends to one key are serialized.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/entrhq/scout/pkg/types"
)

// Well-known keys.
const (
	DefaultKey = "default"
	TestingKey = "testing"
)

// Conversation statuses.
const (
	StatusNew     = "new"
	StatusActive  = "active"
	StatusCleared = "cleared"
)

var keyPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

var (
	// ErrInvalidKey is returned for keys outside [a-z0-9_-]+.
	ErrInvalidKey = errors.New("invalid conversation key")
	// ErrIncompleteMessage is returned when a message still has a pending tool call.
	ErrIncompleteMessage = errors.New("message has a tool call that has not finished")
)

// Metadata describes a stored conversation.
type Metadata struct {
	Key            string                 `json:"key"`
	ConversationID string                 `json:"conversationId"`
	Status         string                 `json:"status"`
	CreatedAt      time.Time              `json:"createdAt,omitempty"`
	LastUpdated    time.Time              `json:"lastUpdated,omitempty"`
	MessageCount   int                    `json:"messageCount"`
	TestBrief      string                 `json:"testBrief,omitempty"`
	TestProtocol   string                 `json:"testProtocol,omitempty"`
	Extra          map[string]interface{} `json:"extra,omitempty"`
}

// Store persists transcripts. Implementations are safe for concurrent use.
type Store interface {
	// Append adds a complete message to the end of the key's transcript
	// and then refreshes its metadata.
	Append(ctx context.Context, key string, msg types.Message) error
	// Load returns the transcript in append order. A missing key yields
	// an empty, non-nil slice.
	Load(ctx context.Context, key string) ([]types.Message, error)
	// Clear empties the transcript and keeps the key. Clearing twice is
	// the same as clearing once.
	Clear(ctx context.Context, key string) error
	// Meta returns the key's metadata.
	Meta(ctx context.Context, key string) (Metadata, error)
	// UpdateMeta applies patch to the key's metadata and stores it.
	UpdateMeta(ctx context.Context, key string, patch func(*Metadata)) (Metadata, error)
	Close() error
}

// ValidateKey checks that key is safe to use as a file name.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func checkAppend(key string, msg types.Message) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if !msg.Complete() {
		return fmt.Errorf("%w: %s", ErrIncompleteMessage, msg.ID)
	}
	return nil
}

func newMetadata(key string) Metadata {
	return Metadata{Key: key, ConversationID: key, Status: StatusNew}
}

// touch refreshes the bookkeeping fields after a write.
func touch(m *Metadata, key string, count int, status string, now time.Time) {
	m.Key = key
	if m.ConversationID == "" {
		m.ConversationID = key
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.LastUpdated = now
	m.MessageCount = count
	m.Status = status
}

// applyPatch runs a caller patch and then restores the fields the store owns.
func applyPatch(m Metadata, key string, count int, patch func(*Metadata)) Metadata {
	m = m.clone()
	if patch != nil {
		patch(&m)
	}
	t := now()
	m.Key = key
	if m.ConversationID == "" {
		m.ConversationID = key
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = t
	}
	m.LastUpdated = t
	m.MessageCount = count
	return m
}

func (m Metadata) clone() Metadata {
	out := m
	if m.Extra != nil {
		out.Extra = make(map[string]interface{}, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

func now() time.Time {
	return time.Now().UTC()
}
