package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/woktalk/recipe-engine/internal/cache"
	"github.com/woktalk/recipe-engine/internal/jobtable"
	"github.com/woktalk/recipe-engine/internal/progress"
	pubmemory "github.com/woktalk/recipe-engine/internal/publisher/memory"
	"github.com/woktalk/recipe-engine/internal/queue/memory"
	"github.com/woktalk/recipe-engine/internal/recipe"
	"github.com/woktalk/recipe-engine/internal/storage"
	storagememory "github.com/woktalk/recipe-engine/internal/storage/memory"
)

func TestProcessJobCompletesAndCaches(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.run(recipe.QueueItem{Key: "dQw4w9WgXcQ", RawInput: "https://youtu.be/dQw4w9WgXcQ"})

	rec, err := env.table.Snapshot("dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Equal(t, recipe.StatusCompleted, rec.Status)
	require.Equal(t, 100, rec.Progress)
	require.JSONEq(t, `{"title":"congee"}`, string(rec.Result))
	require.NotEmpty(t, rec.ArtifactURI)
	require.NotNil(t, rec.FinishedAt)

	payload, ok := env.cache.Get(context.Background(), "dQw4w9WgXcQ")
	require.True(t, ok)
	require.JSONEq(t, `{"title":"congee"}`, string(payload))

	msgs := env.publisher.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "recipe-events", msgs[0].Topic)

	stages := env.emitter.stages()
	require.Equal(t, []progress.Stage{
		progress.StageJobStart,
		progress.StageRetrievalDone,
		progress.StageEnrichmentDone,
		progress.StageJobDone,
	}, stages)
}

func TestProcessJobArchivesArtifact(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.run(recipe.QueueItem{Key: "dQw4w9WgXcQ", RawInput: "dQw4w9WgXcQ"})

	rec, err := env.table.Snapshot("dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Contains(t, rec.ArtifactURI, "memory://artifacts/dQw4w9WgXcQ/")
}

func TestProcessJobRetrievalFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.retrieval.err = errors.New("watch page 503")
	env.run(recipe.QueueItem{Key: "dQw4w9WgXcQ", RawInput: "dQw4w9WgXcQ"})

	rec, err := env.table.Snapshot("dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Equal(t, recipe.StatusFailed, rec.Status)
	require.Zero(t, rec.Progress)
	require.Equal(t, "transcript retrieval failed", rec.Message)

	_, ok := env.cache.Get(context.Background(), "dQw4w9WgXcQ")
	require.False(t, ok)
	require.Empty(t, env.publisher.Messages())

	stages := env.emitter.stages()
	require.Equal(t, progress.StageJobError, stages[len(stages)-1])
}

func TestProcessJobEnrichmentFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.enrichment.err = errors.New("model unavailable")
	env.run(recipe.QueueItem{Key: "dQw4w9WgXcQ", RawInput: "dQw4w9WgXcQ"})

	rec, err := env.table.Snapshot("dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Equal(t, recipe.StatusFailed, rec.Status)
	require.Equal(t, "recipe analysis failed", rec.Message)
}

func TestProcessJobBlobFailureDoesNotFailJob(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	blobStore := &storage.MockBlobStore{}
	blobStore.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("bucket gone"))
	env.executor.blobStore = blobStore
	env.run(recipe.QueueItem{Key: "dQw4w9WgXcQ", RawInput: "dQw4w9WgXcQ"})

	rec, err := env.table.Snapshot("dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Equal(t, recipe.StatusCompleted, rec.Status)
	require.Empty(t, rec.ArtifactURI)
	blobStore.AssertExpectations(t)
}

func TestProcessJobRecoversFromPanic(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.executor.enrichment = panickingEnrichment{}
	env.run(recipe.QueueItem{Key: "dQw4w9WgXcQ", RawInput: "dQw4w9WgXcQ"})

	rec, err := env.table.Snapshot("dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Equal(t, recipe.StatusFailed, rec.Status)
	require.Equal(t, "internal error", rec.Message)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	q := memory.NewQueue(1)
	env.executor.queue = q

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.executor.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("executor did not stop on cancel")
	}
}

// --- helpers/fakes ---

type testEnv struct {
	executor   *Executor
	table      *jobtable.Table
	cache      *cache.Cache
	retrieval  *fakeRetrieval
	enrichment *fakeEnrichment
	publisher  *pubmemory.Publisher
	emitter    *recordingEmitter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		table:      jobtable.New(nil),
		cache:      cache.New(cache.NewLocalStore(nil), nil, nil),
		retrieval:  &fakeRetrieval{text: "wash the rice"},
		enrichment: &fakeEnrichment{payload: recipe.Payload(`{"title":"congee"}`)},
		publisher:  pubmemory.New(),
		emitter:    &recordingEmitter{},
	}
	env.executor = New(
		memory.NewQueue(1),
		env.table,
		env.cache,
		env.retrieval,
		env.enrichment,
		storagememory.NewBlobStore(),
		env.publisher,
		env.emitter,
		nil,
		Config{Topic: "recipe-events", BlobPrefix: "artifacts", CacheTTL: time.Hour},
		nil,
	)
	return env
}

// run admits the key and feeds the item through processJob directly.
func (env *testEnv) run(item recipe.QueueItem) {
	if _, err := env.table.Admit(item.Key); err != nil {
		panic(err)
	}
	env.executor.processJob(context.Background(), item)
}

type fakeRetrieval struct {
	text string
	err  error
}

func (f *fakeRetrieval) Fetch(_ context.Context, rawInput string) (recipe.Transcript, error) {
	if f.err != nil {
		return recipe.Transcript{}, f.err
	}
	_ = rawInput
	return recipe.Transcript{Key: "dQw4w9WgXcQ", Text: f.text}, nil
}

type fakeEnrichment struct {
	payload recipe.Payload
	err     error
}

func (f *fakeEnrichment) Analyze(context.Context, recipe.Key, string, string) (recipe.Payload, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

type panickingEnrichment struct{}

func (panickingEnrichment) Analyze(context.Context, recipe.Key, string, string) (recipe.Payload, error) {
	panic("model client bug")
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, len(r.events))
	for i, evt := range r.events {
		out[i] = evt.Stage
	}
	return out
}
