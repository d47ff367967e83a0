package ipc

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/essmehdi/flowd/internal/bus"
	"github.com/essmehdi/flowd/internal/config"
	"github.com/essmehdi/flowd/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store, *bus.Bus) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	b := bus.New(slog.New(slog.DiscardHandler))
	t.Cleanup(b.Close)

	cfgSource := func() (config.Config, error) {
		return config.Config{
			Categories: map[string]config.Category{
				"Images": {Extensions: []string{".jpg"}, Directory: "/downloads/Images"},
			},
		}, nil
	}

	return &Server{store: st, cfgSource: cfgSource, control: b.Control, log: slog.New(slog.DiscardHandler)}, st, b
}

func TestStatusReturnsUP(t *testing.T) {
	srv, _, _ := newTestServer(t)
	o := &object{srv: srv}

	status, err := o.Status()
	require.Nil(t, err)
	require.Equal(t, "UP", status)
}

func TestNewDownloadConfirmedPublishesControlEvent(t *testing.T) {
	srv, _, b := newTestServer(t)
	o := &object{srv: srv}

	events := b.Control.Subscribe()

	result, err := o.NewDownloadConfirmed("https://example.com/a.zip")
	require.Nil(t, err)
	require.Equal(t, "OK", result)

	ev := <-events
	nd, ok := ev.(bus.NewDownload)
	require.True(t, ok)
	require.Equal(t, "https://example.com/a.zip", nd.URL)
	require.True(t, nd.Confirmed)
}

func TestGetAllDownloadsMarshalsJobsAsJSON(t *testing.T) {
	srv, st, _ := newTestServer(t)
	o := &object{srv: srv}

	_, err := st.Insert(&store.Job{URL: "u1", Status: store.StatusPending, TempFile: "t1", DateAdded: 1})
	require.NoError(t, err)

	encoded, dErr := o.GetAllDownloads()
	require.Nil(t, dErr)
	require.Len(t, encoded, 1)

	var j store.Job
	require.NoError(t, json.Unmarshal([]byte(encoded[0]), &j))
	require.Equal(t, "u1", j.URL)
}

func TestGetDownloadsByCategoryFiltersByExtension(t *testing.T) {
	srv, st, _ := newTestServer(t)
	o := &object{srv: srv}

	pic := "/downloads/Images/pic.jpg"
	doc := "/downloads/Documents/doc.pdf"
	_, err := st.Insert(&store.Job{URL: "u1", Status: store.StatusCompleted, TempFile: "t1", DateAdded: 1, OutputFile: &pic})
	require.NoError(t, err)
	_, err = st.Insert(&store.Job{URL: "u2", Status: store.StatusCompleted, TempFile: "t2", DateAdded: 2, OutputFile: &doc})
	require.NoError(t, err)

	encoded, dErr := o.GetDownloadsByCategory("Images")
	require.Nil(t, dErr)
	require.Len(t, encoded, 1)

	encoded, dErr = o.GetDownloadsByCategory("NoSuchCategory")
	require.Nil(t, dErr)
	require.Empty(t, encoded)
}

func TestChangeOutputFilePathAndConfirmData(t *testing.T) {
	srv, st, _ := newTestServer(t)
	o := &object{srv: srv}

	id, err := st.Insert(&store.Job{URL: "u1", Status: store.StatusPending, TempFile: "t1", DateAdded: 1})
	require.NoError(t, err)

	result, dErr := o.ChangeOutputFilePath(id, "/home/user/Downloads/renamed.bin")
	require.Nil(t, dErr)
	require.Equal(t, "OK", result)

	result, dErr = o.ConfirmDownloadData(id)
	require.Nil(t, dErr)
	require.Equal(t, "OK", result)

	job, err := st.GetByID(id)
	require.NoError(t, err)
	require.Equal(t, "/home/user/Downloads/renamed.bin", *job.OutputFile)
	require.True(t, job.DataConfirmed)
}

func TestPauseCancelDeleteControlEvents(t *testing.T) {
	srv, _, b := newTestServer(t)
	o := &object{srv: srv}
	events := b.Control.Subscribe()

	_, _ = o.PauseDownload(7)
	require.Equal(t, bus.Pause{ID: 7}, <-events)

	_, _ = o.ResumeDownload(7)
	require.Equal(t, bus.Resume{ID: 7}, <-events)

	_, _ = o.RestartDownload(7)
	require.Equal(t, bus.Restart{ID: 7}, <-events)

	_, _ = o.CancelDownload(7)
	require.Equal(t, bus.Cancel{ID: 7}, <-events)

	_, _ = o.DeleteDownload(7)
	require.Equal(t, bus.Delete{ID: 7}, <-events)
}
