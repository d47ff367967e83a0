package admission

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/essmehdi/flowd/internal/config"
	"github.com/essmehdi/flowd/internal/store"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu        sync.Mutex
	dispatched []int64
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, id)
}

func (d *recordingDispatcher) ids() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int64(nil), d.dispatched...)
}

func TestTickDispatchesUpToCapOnly(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	for i := 0; i < 3; i++ {
		_, err := st.Insert(&store.Job{URL: "u", Status: store.StatusPending, TempFile: "t", DateAdded: int64(i)})
		require.NoError(t, err)
	}

	dispatcher := &recordingDispatcher{}
	cfgSource := func() (config.Config, error) {
		return config.Config{MaxConcurrentDownloads: 2}, nil
	}
	c := New(st, dispatcher, cfgSource, slog.New(slog.DiscardHandler))

	c.tick(context.Background())

	require.Len(t, dispatcher.ids(), 2)
}

func TestTickSkipsWhenAtCap(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	_, err = st.Insert(&store.Job{URL: "u1", Status: store.StatusInProgress, TempFile: "t1", DateAdded: 1})
	require.NoError(t, err)
	_, err = st.Insert(&store.Job{URL: "u2", Status: store.StatusPending, TempFile: "t2", DateAdded: 2})
	require.NoError(t, err)

	dispatcher := &recordingDispatcher{}
	cfgSource := func() (config.Config, error) {
		return config.Config{MaxConcurrentDownloads: 1}, nil
	}
	c := New(st, dispatcher, cfgSource, slog.New(slog.DiscardHandler))

	c.tick(context.Background())

	require.Empty(t, dispatcher.ids())
}
