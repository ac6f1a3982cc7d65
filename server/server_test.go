package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/inspira/internal/models"
	"github.com/xhad/inspira/internal/testutil"
	"github.com/xhad/inspira/internal/types"
	"github.com/xhad/inspira/pkg/extractor"
	"github.com/xhad/inspira/pkg/llm"
	"github.com/xhad/inspira/pkg/metrics"
	"github.com/xhad/inspira/pkg/processor"
	"github.com/xhad/inspira/pkg/store"
	"github.com/xhad/inspira/pkg/workflow"
)

type harness struct {
	server    *httptest.Server
	vault     *store.Vault
	uploadDir string
}

type staticSynth struct{}

func (staticSynth) Answer(ctx context.Context, question string, chunks []string) (string, error) {
	return fmt.Sprintf("%d chunks considered", len(chunks)), nil
}

func newHarness(t *testing.T, wfOpts ...workflow.Option) *harness {
	t.Helper()
	ctx := context.Background()

	emb := llm.NewEmbedderWithClient(testutil.NewHashEmbedder(64), llm.EmbedderConfig{}, nil)
	vault, err := store.Open(ctx, store.Config{Path: t.TempDir()}, emb)
	require.NoError(t, err)
	t.Cleanup(func() { vault.Close() })

	chunker, err := processor.NewWithConfig(processor.DefaultConfig())
	require.NoError(t, err)

	wf, err := workflow.New(ctx, vault, wfOpts...)
	require.NoError(t, err)

	uploadDir := t.TempDir()
	s := New(Config{
		UploadDir:      uploadDir,
		RequestTimeout: 10 * time.Second,
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
	}, Dependencies{
		Extractor: extractor.NewPDFExtractor(nil),
		Chunker:   chunker,
		Vault:     vault,
		Workflow:  wf,
		Metrics:   metrics.New("inspira"),
	})

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return &harness{server: ts, vault: vault, uploadDir: uploadDir}
}

func upload(t *testing.T, url, field, filename string, content []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url+"/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func chat(t *testing.T, url, payload string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/chat", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{
		"status":  "ok",
		"message": "Inspira Backend is running 🚀",
	}, decode(t, resp))
}

func TestUploadThenChat(t *testing.T) {
	h := newHarness(t)

	resp := upload(t, h.server.URL, "file", "sample.pdf", testutil.BuildPDF("Hello world", "Goodbye"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "sample.pdf", body["filename"])
	assert.Equal(t, "File processed successfully!", body["message"])
	assert.Equal(t, "Hello world Goodbye", body["preview"])
	assert.Equal(t, float64(1), body["chunks_stored"])

	entries, err := os.ReadDir(h.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file should be removed")

	resp = chat(t, h.server.URL, `{"question":"hello"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, []interface{}{"Hello world Goodbye"}, body["context"])
	_, hasAnswer := body["answer"]
	assert.False(t, hasAnswer, "answer must be absent without a generate node")
}

func TestUploadPreviewTruncated(t *testing.T) {
	h := newHarness(t)
	long := strings.Repeat("lorem ipsum ", 30)

	resp := upload(t, h.server.URL, "file", "LONG.PDF", testutil.BuildPDF(long))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)

	p := body["preview"].(string)
	assert.True(t, strings.HasSuffix(p, "..."))
	assert.Len(t, p, previewLength+3)
}

func TestUploadWithoutText(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  []byte
	}{
		{"non pdf", "notes.txt", []byte("plain text is not extracted")},
		{"corrupt pdf", "broken.pdf", []byte("%PDF-1.4 not really")},
		{"empty pdf name only", "empty.pdf", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			resp := upload(t, h.server.URL, "file", tt.filename, tt.content)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			body := decode(t, resp)
			assert.Equal(t, tt.filename, body["filename"])
			assert.Equal(t, "File uploaded but no text extracted (or empty).", body["message"])
			assert.NotContains(t, body, "preview")

			n, err := h.vault.Count(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			entries, err := os.ReadDir(h.uploadDir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestUploadMissingFile(t *testing.T) {
	h := newHarness(t)

	resp := upload(t, h.server.URL, "attachment", "sample.pdf", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode(t, resp)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "bad_request", errBody["code"])
	assert.Contains(t, errBody["message"], "File upload failed")
}

func TestSameFilenameUploadsDoNotCollide(t *testing.T) {
	h := newHarness(t)
	pdf := testutil.BuildPDF("Hello world")

	const n = 4
	statuses := make(chan int, n)
	for i := 0; i < n; i++ {
		go func() {
			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			part, _ := mw.CreateFormFile("file", "same.pdf")
			part.Write(pdf)
			mw.Close()

			resp, err := http.Post(h.server.URL+"/upload", mw.FormDataContentType(), &body)
			if err != nil {
				statuses <- 0
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	for i := 0; i < n; i++ {
		assert.Equal(t, http.StatusOK, <-statuses)
	}

	count, err := h.vault.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, n, count)

	entries, err := os.ReadDir(h.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestChatBadRequests(t *testing.T) {
	h := newHarness(t)

	for _, payload := range []string{`{not json`, `{}`, `{"question":""}`} {
		resp := chat(t, h.server.URL, payload)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, payload)
		body := decode(t, resp)
		assert.Contains(t, body, "error")
	}
}

func TestChatEmptyVault(t *testing.T) {
	h := newHarness(t)

	resp := chat(t, h.server.URL, `{"question":"anything","context":["stale"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, []interface{}{}, body["context"])
	assert.NotContains(t, body, "answer")
}

func TestChatWithSynthesis(t *testing.T) {
	h := newHarness(t, workflow.WithSynthesizer(staticSynth{}))

	resp := upload(t, h.server.URL, "file", "sample.pdf", testutil.BuildPDF("Hello world"))
	resp.Body.Close()

	resp = chat(t, h.server.URL, `{"question":"Hello?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "1 chunks considered", body["answer"])
}

type failingWorkflow struct{ err error }

func (f failingWorkflow) Invoke(ctx context.Context, question string, clientContext []string) (*models.GraphState, error) {
	return nil, f.err
}

type blockingWorkflow struct{}

func (blockingWorkflow) Invoke(ctx context.Context, question string, clientContext []string) (*models.GraphState, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("workflow retrieve: %w", ctx.Err())
}

func TestChatWorkflowFailure(t *testing.T) {
	tests := []struct {
		name     string
		workflow types.Workflow
		status   int
		code     string
	}{
		{"generic", failingWorkflow{err: errors.New("vault exploded")}, http.StatusInternalServerError, "chat_failed"},
		{"circuit open", failingWorkflow{err: fmt.Errorf("embed: %w", gobreaker.ErrOpenState)}, http.StatusServiceUnavailable, "service_unavailable"},
		{"deadline exceeded", blockingWorkflow{}, http.StatusGatewayTimeout, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Config{UploadDir: t.TempDir(), RequestTimeout: 50 * time.Millisecond}, Dependencies{Workflow: tt.workflow})
			ts := httptest.NewServer(s.Handler())
			defer ts.Close()

			resp := chat(t, ts.URL, `{"question":"q"}`)
			assert.Equal(t, tt.status, resp.StatusCode)
			body := decode(t, resp)
			errBody := body["error"].(map[string]interface{})
			assert.Equal(t, tt.code, errBody["code"])
			assert.Contains(t, errBody["message"], "Chat failed")
			assert.NotContains(t, body, "answer")
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)

	req, err := http.NewRequest(http.MethodOptions, h.server.URL+"/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(h.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `inspira_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestTempSuffix(t *testing.T) {
	assert.Equal(t, "report.pdf", tempSuffix("report.pdf"))
	assert.Equal(t, "report.pdf", tempSuffix("../../etc/report.pdf"))
	assert.Equal(t, "a_b.pdf", tempSuffix("a*b.pdf"))
	assert.Equal(t, "c.pdf", tempSuffix(`C:\docs\c.pdf`))
	assert.Equal(t, "upload", tempSuffix(""))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))
	exact := strings.Repeat("a", previewLength)
	assert.Equal(t, exact, preview(exact))
	assert.Equal(t, exact+"...", preview(exact+"b"))
}
