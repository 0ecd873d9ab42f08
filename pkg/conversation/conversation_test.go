package conversation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/types"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "scout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fs,
		"sqlite": sq,
	}
}

func toolMessage() types.Message {
	part := types.NewToolCallPart("call-1", "browser_snapshot", map[string]string{"selector": "body"}).WithOutput("<body>hi</body>")
	return types.NewMessage(types.RoleAssistant, types.NewReasoningPart("look"), part, types.NewTextPart("The page says hi."))
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			empty, err := store.Load(ctx, DefaultKey)
			require.NoError(t, err)
			require.NotNil(t, empty)
			assert.Empty(t, empty)

			meta, err := store.Meta(ctx, DefaultKey)
			require.NoError(t, err)
			assert.Equal(t, StatusNew, meta.Status)

			user := types.NewUserMessage("What does the page say?")
			reply := toolMessage()
			require.NoError(t, store.Append(ctx, DefaultKey, user))
			require.NoError(t, store.Append(ctx, DefaultKey, reply))

			msgs, err := store.Load(ctx, DefaultKey)
			require.NoError(t, err)
			require.Len(t, msgs, 2)
			assert.Equal(t, user.ID, msgs[0].ID)
			assert.Equal(t, reply.ID, msgs[1].ID)
			require.Len(t, msgs[1].Parts, 3)
			assert.Equal(t, types.PartReasoning, msgs[1].Parts[0].Kind)
			assert.Equal(t, "<body>hi</body>", msgs[1].Parts[1].ToolCall.OutputString())

			meta, err = store.Meta(ctx, DefaultKey)
			require.NoError(t, err)
			assert.Equal(t, StatusActive, meta.Status)
			assert.Equal(t, 2, meta.MessageCount)
			assert.Equal(t, DefaultKey, meta.ConversationID)
			assert.False(t, meta.LastUpdated.IsZero())

			other, err := store.Load(ctx, TestingKey)
			require.NoError(t, err)
			assert.Empty(t, other, "keys are independent")
		})
	}
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Append(ctx, TestingKey, types.NewUserMessage("hi")))
			_, err := store.UpdateMeta(ctx, TestingKey, func(m *Metadata) { m.TestBrief = "# Brief" })
			require.NoError(t, err)

			require.NoError(t, store.Clear(ctx, TestingKey))
			require.NoError(t, store.Clear(ctx, TestingKey))

			msgs, err := store.Load(ctx, TestingKey)
			require.NoError(t, err)
			assert.Empty(t, msgs)

			meta, err := store.Meta(ctx, TestingKey)
			require.NoError(t, err)
			assert.Equal(t, 0, meta.MessageCount)
			assert.Equal(t, StatusCleared, meta.Status)
			assert.Equal(t, "# Brief", meta.TestBrief, "session documents survive a clear")

			require.NoError(t, store.Append(ctx, TestingKey, types.NewUserMessage("again")))
			msgs, err = store.Load(ctx, TestingKey)
			require.NoError(t, err)
			assert.Len(t, msgs, 1)
		})
	}
}

func TestStoreUpdateMeta(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Append(ctx, DefaultKey, types.NewUserMessage("hi")))

			meta, err := store.UpdateMeta(ctx, DefaultKey, func(m *Metadata) {
				m.TestProtocol = "PASSED"
				m.MessageCount = 99
				m.Key = "other"
				m.Extra = map[string]interface{}{"browser": "chromium"}
			})
			require.NoError(t, err)
			assert.Equal(t, "PASSED", meta.TestProtocol)
			assert.Equal(t, 1, meta.MessageCount, "count is owned by the store")
			assert.Equal(t, DefaultKey, meta.Key)

			again, err := store.Meta(ctx, DefaultKey)
			require.NoError(t, err)
			assert.Equal(t, "PASSED", again.TestProtocol)
			assert.Equal(t, "chromium", again.Extra["browser"])
		})
	}
}

func TestStoreRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	pending := types.NewMessage(types.RoleAssistant, types.NewToolCallPart("c", "browser_click", nil))

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"", "../etc", "Default", "a/b", "with space"} {
				assert.ErrorIs(t, store.Append(ctx, key, types.NewUserMessage("x")), ErrInvalidKey, key)
				_, err := store.Load(ctx, key)
				assert.ErrorIs(t, err, ErrInvalidKey, key)
			}

			assert.ErrorIs(t, store.Append(ctx, DefaultKey, pending), ErrIncompleteMessage)
			assert.Error(t, store.Append(ctx, DefaultKey, types.Message{ID: "x", Role: types.RoleUser}))

			msgs, err := store.Load(ctx, DefaultKey)
			require.NoError(t, err)
			assert.Empty(t, msgs)
		})
	}
}

func TestStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			const n = 20
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs <- store.Append(ctx, DefaultKey, types.NewUserMessage(fmt.Sprintf("message %d", i)))
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			msgs, err := store.Load(ctx, DefaultKey)
			require.NoError(t, err)
			assert.Len(t, msgs, n)

			seen := map[string]bool{}
			for _, m := range msgs {
				seen[m.ID] = true
			}
			assert.Len(t, seen, n, "no lost or duplicated updates")

			meta, err := store.Meta(ctx, DefaultKey)
			require.NoError(t, err)
			assert.Equal(t, n, meta.MessageCount)
		})
	}
}

func TestFileStoreLayout(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), DefaultKey, types.NewUserMessage("hi")))

	assert.FileExists(t, filepath.Join(dir, "default.json"))
	assert.FileExists(t, filepath.Join(dir, "default.meta.json"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

type failingStore struct {
	mock.Mock
}

func (f *failingStore) Append(ctx context.Context, key string, msg types.Message) error {
	return f.Called(key).Error(0)
}

func (f *failingStore) Load(ctx context.Context, key string) ([]types.Message, error) {
	args := f.Called(key)
	return nil, args.Error(1)
}

func (f *failingStore) Clear(ctx context.Context, key string) error {
	return f.Called(key).Error(0)
}

func (f *failingStore) Meta(ctx context.Context, key string) (Metadata, error) {
	args := f.Called(key)
	return Metadata{}, args.Error(1)
}

func (f *failingStore) UpdateMeta(ctx context.Context, key string, patch func(*Metadata)) (Metadata, error) {
	args := f.Called(key)
	return Metadata{}, args.Error(1)
}

func (f *failingStore) Close() error { return nil }

func TestRecorderDegrades(t *testing.T) {
	diskFull := errors.New("no space left on device")
	store := &failingStore{}
	store.On("Append", DefaultKey).Return(diskFull)
	store.On("Load", DefaultKey).Return(nil, diskFull)
	store.On("Clear", DefaultKey).Return(diskFull)
	store.On("Meta", DefaultKey).Return(nil, diskFull)

	var buf bytes.Buffer
	rec := NewRecorder(store, logging.New(&buf, "conversation"))
	ctx := context.Background()

	assert.False(t, rec.Append(ctx, DefaultKey, types.NewUserMessage("hi")))
	msgs := rec.Load(ctx, DefaultKey)
	require.NotNil(t, msgs)
	assert.Empty(t, msgs)
	assert.False(t, rec.Clear(ctx, DefaultKey))
	assert.Equal(t, StatusNew, rec.Meta(ctx, DefaultKey).Status)

	assert.Contains(t, buf.String(), "no space left on device")
	assert.Contains(t, buf.String(), "write skipped")
	store.AssertExpectations(t)
}

func TestRecorderRefusesIncompleteMessages(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, logging.Nop())
	ctx := context.Background()

	pending := types.NewMessage(types.RoleAssistant, types.NewToolCallPart("c", "browser_wait", nil))
	assert.False(t, rec.Append(ctx, DefaultKey, pending))
	assert.True(t, rec.Append(ctx, DefaultKey, toolMessage()))
	assert.Len(t, rec.Load(ctx, DefaultKey), 1)
}

func TestRecorderSurvivesCorruptTranscript(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.json"), []byte("{not json"), 0600))

	rec := NewRecorder(store, logging.Nop())
	assert.Empty(t, rec.Load(context.Background(), DefaultKey))
	assert.False(t, rec.Append(context.Background(), DefaultKey, types.NewUserMessage("hi")))
}
