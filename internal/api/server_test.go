package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/talkturns/internal/config"
	"github.com/dgallion1/talkturns/internal/metrics"
	"github.com/dgallion1/talkturns/internal/pathstore"
	"github.com/dgallion1/talkturns/internal/pipeline"
	"github.com/dgallion1/talkturns/internal/segment"
	"github.com/dgallion1/talkturns/internal/signature"
	"github.com/dgallion1/talkturns/internal/sink"
	"github.com/dgallion1/talkturns/internal/talk"
)

const testKey = "secret"

type memSink struct {
	mu    sync.Mutex
	turns []talk.Turn
}

func (m *memSink) WriteTurns(_ context.Context, turns []talk.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turns...)
	return nil
}

func (m *memSink) Close() error { return nil }

func newTestServer(t *testing.T, store *sink.Pathstore) (*Server, *memSink) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		Port:            "8090",
		APIKey:          testKey,
		Language:        "en",
		WorkerCount:     1,
		MaxQueueSize:    4,
		PageConcurrency: 2,
		BatchSize:       10,
		MaxUploadBytes:  1 << 20,
		JobTTL:          time.Hour,
	}
	out := &memSink{}
	seg := segment.New(signature.DefaultLibrary(), segment.WithLogger(log))
	m := metrics.New()
	orch := pipeline.NewOrchestrator(cfg, seg, pipeline.Shared(out, "memory"), m, log)
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)
	return NewServer(orch, m, store, log, cfg), out
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth_NoAuth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic abc"},
		{"wrong key", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/languages", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestLanguages(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/languages", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Languages []string `json:"languages"`
		Default   string   `json:"default"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"en", "es", "ja", "zh"}
	if strings.Join(body.Languages, ",") != strings.Join(want, ",") {
		t.Errorf("expected languages %v, got %v", want, body.Languages)
	}
	if body.Default != "en" {
		t.Errorf("expected default en, got %q", body.Default)
	}
}

func TestSegment(t *testing.T) {
	s, _ := newTestServer(t, nil)
	payload := `{"page_id":"42","title":"Talk:Algeria","lang":"en","text":"Point one. --X\nPoint two. --Y"}`
	rec := do(s, httptest.NewRequest(http.MethodPost, "/api/segment", strings.NewReader(payload)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var body segmentResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %+v", body.Turns)
	}
	if body.Turns[0].Speaker != "X" || body.Turns[1].Text != "\nPoint two. " {
		t.Errorf("unexpected turns %+v", body.Turns)
	}
	if body.Stats.Signatures != 2 {
		t.Errorf("expected 2 signatures, got %d", body.Stats.Signatures)
	}

	mrec := httptest.NewRecorder()
	s.ServeHTTP(mrec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(mrec.Body.String(), `talkturns_turns_total{lang="en"} 2`) {
		t.Errorf("expected turn counter in metrics output")
	}
}

func TestSegment_BadRequests(t *testing.T) {
	s, _ := newTestServer(t, nil)
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{`},
		{"missing page id", `{"lang":"en","text":"hi --A"}`},
		{"missing lang", `{"page_id":"1","text":"hi --A"}`},
		{"unknown lang", `{"page_id":"1","lang":"xx","text":"hi --A"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, httptest.NewRequest(http.MethodPost, "/api/segment", strings.NewReader(tt.payload)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body)
			}
		})
	}
}

func multipartUpload(t *testing.T, filename, lang, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if lang != "" {
		mw.WriteField("language", lang)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write([]byte(content))
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

const uploadPages = `<pages><page><title>Talk:A</title><id>1</id><revision><text>Hi. --Alice</text></revision></page></pages>`

func TestJobs_SubmitAndPoll(t *testing.T) {
	s, out := newTestServer(t, nil)
	rec := do(s, multipartUpload(t, "pages.xml", "en", uploadPages))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	var submitted struct {
		JobID   string `json:"job_id"`
		PollURL string `json:"poll_url"`
	}
	json.NewDecoder(rec.Body).Decode(&submitted)
	if submitted.JobID == "" {
		t.Fatal("expected job id")
	}

	var snap pipeline.JobSnapshot
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec := do(s, httptest.NewRequest(http.MethodGet, submitted.PollURL, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		json.NewDecoder(rec.Body).Decode(&snap)
		if snap.Status.Done() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish, status %s", snap.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if snap.Status != pipeline.StatusCompleted {
		t.Errorf("expected completed, got %s (%v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Progress.Turns != 1 {
		t.Errorf("expected 1 turn, got %d", snap.Progress.Turns)
	}
	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.turns) != 1 || out.turns[0].Speaker != "Alice" {
		t.Errorf("unexpected sink contents %+v", out.turns)
	}
}

func TestJobs_Rejects(t *testing.T) {
	s, _ := newTestServer(t, nil)
	tests := []struct {
		name     string
		filename string
		lang     string
	}{
		{"unknown language", "pages.xml", "xx"},
		{"wrong extension", "pages.pdf", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, multipartUpload(t, tt.filename, tt.lang, uploadPages))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestJobStatus_NotFound(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/jobs/missing/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestSegmentStats(t *testing.T) {
	s, _ := newTestServer(t, nil)
	do(s, httptest.NewRequest(http.MethodPost, "/api/segment", strings.NewReader(`{"page_id":"1","lang":"en","text":"hi --A"}`)))

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/stats/segment", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Latency pipeline.LatencySnapshot `json:"latency"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Latency.Count != 1 {
		t.Errorf("expected 1 latency sample, got %d", body.Latency.Count)
	}
}

func TestTurns_NoPathstore(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/turns/en/1", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestTurns_Pathstore(t *testing.T) {
	var mu sync.Mutex
	nodes := map[string]json.RawMessage{}
	ps := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		key := strings.TrimPrefix(r.URL.Path, "/kv/")
		switch r.Method {
		case http.MethodGet:
			v, ok := nodes[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"key_path": key, "value": v})
		case http.MethodDelete:
			delete(nodes, key)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer ps.Close()
	nodes["talkturns/en/7"] = json.RawMessage(`{"title":"Talk:A","page_id":"7","lang":"en","turns":[{"turn_num":1,"user":"Alice","turn":"Hi. "}]}`)

	store := sink.NewPathstore(pathstore.NewClient(ps.URL, "k"))
	s, _ := newTestServer(t, store)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/turns/en/7", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var node sink.PageNode
	json.NewDecoder(rec.Body).Decode(&node)
	if len(node.Turns) != 1 || node.Turns[0].Speaker != "Alice" {
		t.Errorf("unexpected node %+v", node)
	}

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/turns/en/8", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec = do(s, httptest.NewRequest(http.MethodDelete, "/api/turns/en", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"pages.xml":           "pages.xml",
		"../../etc/pages.xml": "pages.xml",
		"":                    "unnamed",
		"a..b.xml":            "a_b.xml",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q): expected %q, got %q", in, want, got)
		}
	}
}
