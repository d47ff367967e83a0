package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestJobCRUD(t *testing.T) {
	s := setupTestStore(t)

	j := &Job{URL: "https://example.com/file.bin", Status: StatusPending, TempFile: "/tmp/abc1234567", DateAdded: 100}
	id, err := s.Insert(j)
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := s.GetByID(id)
	require.NoError(t, err)
	require.Equal(t, j.URL, got.URL)
	require.Equal(t, StatusPending, got.Status)

	require.NoError(t, s.UpdateStatus(id, StatusInProgress))
	got, err = s.GetByID(id)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, got.Status)

	out := "/home/user/Downloads/file.bin"
	got.OutputFile = &out
	require.NoError(t, s.Update(&got))
	got, err = s.GetByID(id)
	require.NoError(t, err)
	require.Equal(t, out, *got.OutputFile)

	require.NoError(t, s.Delete(id))
	_, err = s.GetByID(id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetByIDNotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.GetByID(999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCountInProgressAndPending(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Insert(&Job{URL: "u1", Status: StatusPending, TempFile: "t1", DateAdded: 1})
	require.NoError(t, err)
	_, err = s.Insert(&Job{URL: "u2", Status: StatusInProgress, TempFile: "t2", DateAdded: 2})
	require.NoError(t, err)
	_, err = s.Insert(&Job{URL: "u3", Status: StatusInProgress, TempFile: "t3", DateAdded: 3})
	require.NoError(t, err)

	n, err := s.CountInProgress()
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	pending, err := s.GetPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestGetSortedOrdering(t *testing.T) {
	s := setupTestStore(t)

	mustInsert := func(url string, status Status, dateAdded int64) {
		_, err := s.Insert(&Job{URL: url, Status: status, TempFile: url + ".tmp", DateAdded: dateAdded})
		require.NoError(t, err)
	}

	mustInsert("pending-old", StatusPending, 1)
	mustInsert("completed", StatusCompleted, 5)
	mustInsert("in-progress", StatusInProgress, 2)
	mustInsert("pending-new", StatusPending, 4)
	mustInsert("paused", StatusPaused, 3)

	sorted, err := s.GetSorted()
	require.NoError(t, err)
	require.Len(t, sorted, 5)

	var urls []string
	for _, j := range sorted {
		urls = append(urls, j.URL)
	}
	require.Equal(t, []string{"in-progress", "pending-new", "pending-old", "paused", "completed"}, urls)
}

func TestGetByCategory(t *testing.T) {
	s := setupTestStore(t)

	out1 := "/home/user/Pictures/pic.jpg"
	out2 := "/home/user/Documents/doc.pdf"
	_, err := s.Insert(&Job{URL: "u1", Status: StatusCompleted, TempFile: "t1", DateAdded: 1, OutputFile: &out1})
	require.NoError(t, err)
	_, err = s.Insert(&Job{URL: "u2", Status: StatusCompleted, TempFile: "t2", DateAdded: 2, OutputFile: &out2})
	require.NoError(t, err)

	images, err := s.GetByCategory([]string{".jpg", ".png"})
	require.NoError(t, err)
	require.Len(t, images, 1)
	require.Equal(t, "u1", images[0].URL)
}

func TestFindByURL(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Insert(&Job{URL: "https://dup.example/a", Status: StatusCompleted, TempFile: "t1", DateAdded: 1})
	require.NoError(t, err)
	_, err = s.Insert(&Job{URL: "https://dup.example/a", Status: StatusCanceled, TempFile: "t2", DateAdded: 2})
	require.NoError(t, err)

	matches, err := s.FindByURL("https://dup.example/a")
	require.NoError(t, err)
	require.Len(t, matches, 2)
}

func TestSetOutputFileAndDataConfirmed(t *testing.T) {
	s := setupTestStore(t)

	id, err := s.Insert(&Job{URL: "u1", Status: StatusPending, TempFile: "t1", DateAdded: 1})
	require.NoError(t, err)

	require.NoError(t, s.SetOutputFile(id, "/home/user/Downloads/renamed.bin"))
	require.NoError(t, s.SetDataConfirmed(id))

	got, err := s.GetByID(id)
	require.NoError(t, err)
	require.Equal(t, "/home/user/Downloads/renamed.bin", *got.OutputFile)
	require.True(t, got.DataConfirmed)

	err = s.SetOutputFile(999, "/nowhere")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("paused")
	require.NoError(t, err)
	require.Equal(t, StatusPaused, s)

	_, err = ParseStatus("teleporting")
	require.ErrorIs(t, err, ErrUnknownStatus)
}
