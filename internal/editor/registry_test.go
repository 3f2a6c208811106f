package editor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/planmark/internal/catalog/memstore"
	"github.com/dgallion1/planmark/internal/errreport"
)

func newTestRegistry(ttl time.Duration) *Registry {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRegistry(memstore.New(), testConfig(), ttl, log)
}

func TestRegistry_OpenGetClose(t *testing.T) {
	r := newTestRegistry(time.Hour)
	s := r.Open(Hooks{})
	require.NotEmpty(t, s.ID())
	assert.Same(t, s, r.Get(s.ID()))
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Close(s.ID()))
	assert.False(t, r.Close(s.ID()))
	assert.Nil(t, r.Get(s.ID()))
	assert.Zero(t, r.Len())
}

func TestRegistry_CloseDetachesErrorHook(t *testing.T) {
	r := newTestRegistry(time.Hour)
	var got []errreport.Event
	s := r.Open(Hooks{OnError: func(ev errreport.Event) { got = append(got, ev) }})

	s.Reporter().Report("op", errreport.Validation(errreport.CodeNotFound, "missing", nil))
	require.Len(t, got, 1)

	r.Close(s.ID())
	s.Reporter().Report("op", errreport.Validation(errreport.CodeNotFound, "missing", nil))
	assert.Len(t, got, 1)
}

func TestRegistry_CleanupEvictsIdle(t *testing.T) {
	r := newTestRegistry(time.Minute)
	stale := r.Open(Hooks{})
	fresh := r.Open(Hooks{})

	stale.mu.Lock()
	stale.lastUsed = time.Now().Add(-2 * time.Minute)
	stale.mu.Unlock()

	assert.Equal(t, 1, r.Cleanup())
	assert.Nil(t, r.Get(stale.ID()))
	assert.NotNil(t, r.Get(fresh.ID()))
}

func TestRegistry_UseKeepsSessionAlive(t *testing.T) {
	r := newTestRegistry(time.Minute)
	s := r.Open(Hooks{})
	s.mu.Lock()
	s.lastUsed = time.Now().Add(-2 * time.Minute)
	s.mu.Unlock()

	s.View()
	assert.Zero(t, r.Cleanup())
	assert.NotNil(t, r.Get(s.ID()))
}

func TestRegistry_RunStopsWithContext(t *testing.T) {
	r := newTestRegistry(10 * time.Millisecond)
	s := r.Open(Hooks{})
	s.mu.Lock()
	s.lastUsed = time.Now().Add(-time.Second)
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
