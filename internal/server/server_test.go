package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/efolder-express/internal/archive"
	"github.com/dharsanguruparan/efolder-express/internal/doctypes"
	"github.com/dharsanguruparan/efolder-express/internal/encryption"
	"github.com/dharsanguruparan/efolder-express/internal/logging"
	"github.com/dharsanguruparan/efolder-express/internal/model"
	"github.com/dharsanguruparan/efolder-express/internal/orchestrator"
	"github.com/dharsanguruparan/efolder-express/internal/repository"
	"github.com/dharsanguruparan/efolder-express/internal/storage"
)

type fakeStarter struct {
	got []string
}

func (f *fakeStarter) BeginDownload(_ context.Context, fileNumber string) (string, error) {
	if strings.TrimSpace(fileNumber) == "" {
		return "", orchestrator.ErrEmptyFileNumber
	}
	f.got = append(f.got, fileNumber)
	return fmt.Sprintf("req-%d", len(f.got)), nil
}

type fakeReader map[string]*model.Download

func (f fakeReader) GetDownload(_ context.Context, requestID string) (*model.Download, error) {
	dl, ok := f[requestID]
	if !ok {
		return nil, fmt.Errorf("download %s: %w", requestID, repository.ErrNotFound)
	}
	return dl, nil
}

type testServer struct {
	srv     *Server
	starter *fakeStarter
	reader  fakeReader
	blobs   *storage.Bucket
	gate    *encryption.Gate
	ready   bool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	key, err := encryption.GenerateKey()
	require.NoError(t, err)
	gate, err := encryption.New(key)
	require.NoError(t, err)
	blobs := storage.OpenMemory()
	t.Cleanup(func() { _ = blobs.Close() })
	types := doctypes.New()
	require.NoError(t, types.Complete(map[int]string{356: "Medical"}))

	ts := &testServer{
		starter: &fakeStarter{},
		reader:  fakeReader{},
		blobs:   blobs,
		gate:    gate,
		ready:   true,
	}
	ts.srv = New(Options{ArchiveDir: t.TempDir()}, Deps{
		Starter:  ts.starter,
		Reader:   ts.reader,
		Archiver: archive.New(blobs, gate, types),
		Ready:    func() bool { return ts.ready },
	}, logging.NewNop())
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) get(path string) *httptest.ResponseRecorder {
	return ts.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (ts *testServer) storeContents(t *testing.T, data []byte) *string {
	t.Helper()
	token, err := ts.gate.Encrypt(data)
	require.NoError(t, err)
	loc, err := ts.blobs.Put(context.Background(), token)
	require.NoError(t, err)
	return &loc
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestIndex(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `name="file_number"`)
}

func TestBeginDownloadRedirects(t *testing.T) {
	for _, path := range []string{"/download", "/download/"} {
		t.Run(path, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(postForm(path, url.Values{"file_number": {"123-45-6789"}}))
			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, "/download/req-1/", rec.Header().Get("Location"))
			assert.Equal(t, []string{"123-45-6789"}, ts.starter.got)
		})
	}
}

func TestBeginDownloadRejectsEmpty(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(postForm("/download/", url.Values{"file_number": {"  "}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.starter.got)
}

func TestUnknownDownload(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/download/nope/", "/download/nope/status.json", "/download/nope/zip/"} {
		assert.Equal(t, http.StatusNotFound, ts.get(path).Code, path)
	}
}

func TestStatusPageInProgress(t *testing.T) {
	ts := newTestServer(t)
	ts.reader["req-1"] = &model.Download{
		RequestID:  "req-1",
		FileNumber: "123456789",
		State:      model.StateManifestDownloaded,
		Documents: []model.Document{
			{Filename: "a.pdf", Errored: true},
			{Filename: "b.pdf"},
		},
	}

	rec := ts.get("/download/req-1/")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `http-equiv="refresh"`)
	assert.Contains(t, body, "1 of 2")
	assert.NotContains(t, body, "/download/req-1/zip/")
}

func TestStatusPageStarted(t *testing.T) {
	ts := newTestServer(t)
	ts.reader["req-1"] = &model.Download{RequestID: "req-1", FileNumber: "1", State: model.StateStarted}

	body := ts.get("/download/req-1/").Body.String()
	assert.Contains(t, body, "Retrieving the list of documents")
	assert.Contains(t, body, `value="5"`)
}

func TestStatusPageErrored(t *testing.T) {
	ts := newTestServer(t)
	ts.reader["req-1"] = &model.Download{RequestID: "req-1", FileNumber: "1", State: model.StateErrored}

	body := ts.get("/download/req-1/").Body.String()
	assert.Contains(t, body, "could not be retrieved")
	assert.NotContains(t, body, `http-equiv="refresh"`)
}

func TestStatusPageEmptyManifest(t *testing.T) {
	ts := newTestServer(t)
	ts.reader["req-1"] = &model.Download{
		RequestID:  "req-1",
		FileNumber: "123456789",
		State:      model.StateManifestDownloaded,
	}

	body := ts.get("/download/req-1/").Body.String()
	assert.Contains(t, body, "No documents were found")
	assert.NotContains(t, body, `http-equiv="refresh"`)
}

func TestStatusJSON(t *testing.T) {
	ts := newTestServer(t)
	received := time.Date(2014, 3, 12, 0, 0, 0, 0, time.UTC)
	loc := "documents/x"
	ts.reader["req-1"] = &model.Download{
		RequestID:  "req-1",
		FileNumber: "123456789",
		State:      model.StateManifestDownloaded,
		Documents: []model.Document{
			{Filename: "a.pdf", ContentLocation: &loc, ReceivedAt: &received},
			{Filename: "b.pdf", Errored: true},
			{Filename: "c.pdf"},
		},
	}

	rec := ts.get("/download/req-1/status.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got statusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "req-1", got.RequestID)
	assert.False(t, got.Completed)
	assert.Equal(t, 67, got.PercentCompleted)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 2, got.Resolved)
	assert.Equal(t, 1, got.Failed)
	require.Len(t, got.Documents, 3)
	assert.Equal(t, "done", got.Documents[0].Status)
	assert.Equal(t, "failed", got.Documents[1].Status)
	assert.Equal(t, "pending", got.Documents[2].Status)
	assert.NotContains(t, rec.Body.String(), "documents/x", "content locations stay private")
}

func TestZipIncomplete(t *testing.T) {
	ts := newTestServer(t)
	ts.reader["req-1"] = &model.Download{
		RequestID: "req-1", FileNumber: "1", State: model.StateManifestDownloaded,
		Documents: []model.Document{{Filename: "a.pdf"}},
	}
	assert.Equal(t, http.StatusInternalServerError, ts.get("/download/req-1/zip/").Code)
}

func TestZipCompleted(t *testing.T) {
	ts := newTestServer(t)
	ts.reader["req-1"] = &model.Download{
		RequestID:  "req-1",
		FileNumber: "123456789",
		State:      model.StateManifestDownloaded,
		Documents: []model.Document{
			{ID: "1", DocumentID: "{A}", DocType: "356", Filename: "a.pdf", ContentLocation: ts.storeContents(t, []byte("alpha"))},
			{ID: "2", DocumentID: "{B}", Filename: "b.pdf", Errored: true},
		},
	}

	rec := ts.get("/download/req-1/zip/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="123456789-eFolder.zip"`, rec.Header().Get("Content-Disposition"))

	body := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	names := map[string]*zip.File{}
	for _, f := range zr.File {
		names[f.Name] = f
	}
	require.Contains(t, names, "123456789-eFolder/a.pdf")
	require.Contains(t, names, "123456789-eFolder/README.txt")
	rc, err := names["123456789-eFolder/a.pdf"].Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusOK, ts.get("/healthz").Code)
	ts.ready = false
	assert.Equal(t, http.StatusServiceUnavailable, ts.get("/healthz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.get("/")
	rec := ts.get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "efolder_http_requests_total")
}
