package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/objdetect/internal/database"
	"github.com/kdimtricp/objdetect/internal/detector"
	"github.com/kdimtricp/objdetect/internal/engine/enginetest"
	"github.com/kdimtricp/objdetect/internal/models"
	"github.com/kdimtricp/objdetect/internal/service"
	"github.com/kdimtricp/objdetect/internal/storage"
)

var testModel = models.ModelInfo{
	Name:                 "YOLOv8n",
	Version:              "8.0",
	TotalClasses:         80,
	AverageInferenceTime: 0.095,
}

type TestServer struct {
	Server  *httptest.Server
	App     *App
	Engine  *enginetest.Fake
	Handle  *detector.Handle
	Store   *database.Store
	Scratch string
}

type serverOptions struct {
	notReady bool
	noStore  bool
	// logs receives the request logger output when set.
	logs io.Writer
}

func setupTestServer(t *testing.T, fake *enginetest.Fake, opts serverOptions) *TestServer {
	t.Helper()
	tempDir := t.TempDir()

	scratchDir := filepath.Join(tempDir, "scratch")
	scratch, err := storage.NewScratchStore(scratchDir)
	require.NoError(t, err)

	handle := detector.NewHandle()
	if !opts.notReady {
		handle.Set(detector.New(fake, scratch))
	}

	ts := &TestServer{Engine: fake, Handle: handle, Scratch: scratchDir}

	var store service.Store
	if !opts.noStore {
		db, err := database.NewDB(database.Config{Type: "sqlite", SQLitePath: filepath.Join(tempDir, "test.db")})
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })

		ts.Store, err = database.NewStore(context.Background(), db, testModel)
		require.NoError(t, err)
		store = ts.Store
	}

	log := zerolog.Nop()
	if opts.logs != nil {
		log = zerolog.New(opts.logs)
	}

	ts.App = &App{
		Detector:      handle,
		Service:       service.New(handle, store, testModel, zerolog.Nop()),
		MaxUploadSize: 1 << 20,
		Logger:        log,
	}

	ts.Server = httptest.NewServer(NewRouter(ts.App))
	t.Cleanup(ts.Server.Close)
	return ts
}

func createMultipartUpload(filename, contentType string, content []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(content)); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return body, writer.FormDataContentType(), nil
}

func (ts *TestServer) upload(t *testing.T, path, filename, contentType string, content []byte) *http.Response {
	t.Helper()
	body, formType, err := createMultipartUpload(filename, contentType, content)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.Server.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", formType)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *TestServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.Server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func jsonDecode(resp *http.Response, v any) error {
	return json.NewDecoder(resp.Body).Decode(v)
}

func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return data
}

// logBuffer collects request logs written from server goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
