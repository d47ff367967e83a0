package executor

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveFileInfoHeaderDerivation(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Length", "1024")
	h.Set("Accept-Ranges", "bytes")

	info := DeriveFileInfo(h, "https://example.com/file.bin")

	require.Equal(t, "file.bin", info.FileName)
	require.NotNil(t, info.ContentLength)
	require.EqualValues(t, 1024, *info.ContentLength)
	require.Nil(t, info.ContentType)
	require.True(t, info.Resumable)
}

func TestDeriveFileInfoFilenameFromContentType(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "text/html")

	info := DeriveFileInfo(h, "https://test.com/")

	require.Equal(t, "download.htm", info.FileName)
}

func TestDeriveFileInfoPercentDecodedName(t *testing.T) {
	info := DeriveFileInfo(http.Header{}, "https://test.com/t%C3%A9stfile")
	require.Equal(t, "téstfile", info.FileName)
}

func TestDeriveFileInfoQuotedContentDisposition(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Disposition", `attachment; filename="report.pdf"`)

	info := DeriveFileInfo(h, "https://example.com/download?x=1")
	require.Equal(t, "report.pdf", info.FileName)
}

func TestDeriveFileInfoUnquotedContentDisposition(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Disposition", "attachment; filename=archive.zip;")

	info := DeriveFileInfo(h, "https://example.com/download")
	require.Equal(t, "archive.zip", info.FileName)
}

func TestDeriveFileInfoNoRangesNotResumable(t *testing.T) {
	info := DeriveFileInfo(http.Header{}, "https://example.com/file.bin")
	require.False(t, info.Resumable)
}
