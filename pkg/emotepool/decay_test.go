package emotepool_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
	backendmem "github.com/bmintz/emoji-vacuum/pkg/emotepool/backend/memory"
	repomem "github.com/bmintz/emoji-vacuum/pkg/emotepool/repo/memory"
)

// recordingNotifier captures eviction notifications and retractions.
type recordingNotifier struct {
	mu        sync.Mutex
	notified  []string
	retracted []string
	entered   chan struct{}
	block     chan struct{}
}

func (n *recordingNotifier) OnDecay(ctx context.Context, emote *emotepool.Emote) (emotepool.NotificationHandle, error) {
	if n.entered != nil {
		n.entered <- struct{}{}
	}
	if n.block != nil {
		<-n.block
	}
	n.mu.Lock()
	n.notified = append(n.notified, emote.Name)
	n.mu.Unlock()
	return &recordingHandle{notifier: n, name: emote.Name}, nil
}

func (n *recordingNotifier) names() ([]string, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notified...), append([]string(nil), n.retracted...)
}

type recordingHandle struct {
	notifier *recordingNotifier
	name     string
}

func (h *recordingHandle) Retract(ctx context.Context) error {
	h.notifier.mu.Lock()
	defer h.notifier.mu.Unlock()
	h.notifier.retracted = append(h.notifier.retracted, h.name)
	return nil
}

// failingDeleteBackend wraps the in-memory backend and fails deletes for
// selected emote ids.
type failingDeleteBackend struct {
	*backendmem.Backend
	mu   sync.Mutex
	fail map[uuid.UUID]bool
}

func (b *failingDeleteBackend) Delete(ctx context.Context, slot int64, id uuid.UUID) error {
	b.mu.Lock()
	shouldFail := b.fail[id]
	b.mu.Unlock()
	if shouldFail {
		return errors.New("rate limited")
	}
	return b.Backend.Delete(ctx, slot, id)
}

func setupDecay(t *testing.T, notifier emotepool.Notifier, backend emotepool.Backend) (emotepool.Service, *emotepool.DecayEngine) {
	repo := repomem.New()

	svc, err := emotepool.New(
		emotepool.WithRepository(repo),
		emotepool.WithBackend(backend),
		emotepool.WithAdmins(testAdmin),
	)
	require.NoError(t, err)
	require.NoError(t, svc.Directory().Refresh(context.Background()))

	settings := emotepool.DecaySettings{
		Enabled:        true,
		Window:         4 * 7 * 24 * time.Hour,
		UsageThreshold: 2,
		PollInterval:   time.Minute,
	}
	engine := emotepool.NewDecayEngine(svc, repo, settings,
		emotepool.WithDecayNotifier(notifier))
	return svc, engine
}

func newDecayBackend() *backendmem.Backend {
	backend := backendmem.New()
	backend.AddSlot(emotepool.SlotInfo{ID: 100, Name: "EmojiBackend 1", Owner: testAdmin})
	return backend
}

func backdate(t *testing.T, svc emotepool.Service, name string, age time.Duration) {
	t.Helper()
	created := time.Now().UTC().Add(-age)
	require.NoError(t, svc.SetCreated(context.Background(), name, created))
}

func TestDecaySelection(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	svc, engine := setupDecay(t, notifier, newDecayBackend())

	const week = 7 * 24 * time.Hour

	// Old and unused: decays.
	createTestEmote(t, svc, "stale", 42)
	backdate(t, svc, "stale", 5*week)

	// Old but used enough: survives.
	kept := createTestEmote(t, svc, "wellused", 42)
	backdate(t, svc, "wellused", 5*week)
	require.NoError(t, svc.RecordUse(ctx, kept.ID, 43))
	require.NoError(t, svc.RecordUse(ctx, kept.ID, 44))

	// Old and unused but preserved: survives.
	createTestEmote(t, svc, "heirloom", 42)
	backdate(t, svc, "heirloom", 5*week)
	_, err := svc.SetPreservation(ctx, "heirloom", true)
	require.NoError(t, err)

	// Unused but too young: survives.
	createTestEmote(t, svc, "fresh", 42)

	require.NoError(t, engine.Scan(ctx))

	_, err = svc.GetEmote(ctx, "stale")
	assert.ErrorIs(t, err, emotepool.ErrEmoteNotFound)
	for _, name := range []string{"wellused", "heirloom", "fresh"} {
		_, err := svc.GetEmote(ctx, name)
		assert.NoError(t, err, "%s should survive decay", name)
	}

	notified, retracted := notifier.names()
	assert.Equal(t, []string{"stale"}, notified)
	assert.Empty(t, retracted)
}

func TestDecayUsageBelowThresholdStillDecays(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	svc, engine := setupDecay(t, notifier, newDecayBackend())

	emote := createTestEmote(t, svc, "barelyused", 42)
	backdate(t, svc, "barelyused", 5*7*24*time.Hour)
	// One use is below the threshold of two.
	require.NoError(t, svc.RecordUse(ctx, emote.ID, 43))

	require.NoError(t, engine.Scan(ctx))

	_, err := svc.GetEmote(ctx, "barelyused")
	assert.ErrorIs(t, err, emotepool.ErrEmoteNotFound)
}

func TestDecayFailedRemovalRetractsNotification(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	backend := &failingDeleteBackend{Backend: newDecayBackend(), fail: make(map[uuid.UUID]bool)}
	svc, engine := setupDecay(t, notifier, backend)

	doomed := createTestEmote(t, svc, "stuck", 42)
	backdate(t, svc, "stuck", 5*7*24*time.Hour)
	backend.mu.Lock()
	backend.fail[doomed.ID] = true
	backend.mu.Unlock()

	require.NoError(t, engine.Scan(ctx))

	// The record survives the failed backend delete.
	_, err := svc.GetEmote(ctx, "stuck")
	assert.NoError(t, err)

	notified, retracted := notifier.names()
	assert.Equal(t, []string{"stuck"}, notified)
	assert.Equal(t, []string{"stuck"}, retracted)
}

func TestDecayOneFailureDoesNotAbortThePass(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	backend := &failingDeleteBackend{Backend: newDecayBackend(), fail: make(map[uuid.UUID]bool)}
	svc, engine := setupDecay(t, notifier, backend)

	stuck := createTestEmote(t, svc, "aaa", 42)
	createTestEmote(t, svc, "bbb", 42)
	backdate(t, svc, "aaa", 5*7*24*time.Hour)
	backdate(t, svc, "bbb", 5*7*24*time.Hour)
	backend.mu.Lock()
	backend.fail[stuck.ID] = true
	backend.mu.Unlock()

	require.NoError(t, engine.Scan(ctx))

	_, err := svc.GetEmote(ctx, "aaa")
	assert.NoError(t, err)
	_, err = svc.GetEmote(ctx, "bbb")
	assert.ErrorIs(t, err, emotepool.ErrEmoteNotFound)
}

func TestDecayScansDoNotOverlap(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{
		entered: make(chan struct{}),
		block:   make(chan struct{}),
	}
	svc, engine := setupDecay(t, notifier, newDecayBackend())

	createTestEmote(t, svc, "stale", 42)
	backdate(t, svc, "stale", 5*7*24*time.Hour)

	done := make(chan error, 1)
	go func() { done <- engine.Scan(ctx) }()

	// Wait for the first scan to block inside the notifier, then verify a
	// second scan returns immediately without evicting anything.
	<-notifier.entered

	require.NoError(t, engine.Scan(ctx))
	_, err := svc.GetEmote(ctx, "stale")
	assert.NoError(t, err, "blocked scan must not have evicted yet")

	close(notifier.block)
	require.NoError(t, <-done)

	_, err = svc.GetEmote(ctx, "stale")
	assert.ErrorIs(t, err, emotepool.ErrEmoteNotFound)
}

func TestDecayRunStopsOnCancel(t *testing.T) {
	notifier := &recordingNotifier{}
	_, engine := setupDecay(t, notifier, newDecayBackend())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop after cancellation")
	}
}
