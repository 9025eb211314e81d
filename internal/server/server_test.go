package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"cvmatcher/internal/app"
	"cvmatcher/internal/archive"
	"cvmatcher/internal/config"
	"cvmatcher/internal/embedding"
	"cvmatcher/internal/errors"
	"cvmatcher/internal/types"
	"cvmatcher/internal/vectorstore"
)

const testDims = 8

// downStore fails its health check.
type downStore struct {
	vectorstore.Store
}

func (downStore) Health(context.Context) error { return vectorstore.ErrUnavailable }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.App.UploadDir = t.TempDir()
	cfg.Embedding.Provider = config.ProviderMock
	cfg.Embedding.Dimensions = testDims
	cfg.Embedding.Timeout = time.Second
	cfg.VectorStore.Backend = config.BackendBadger
	cfg.VectorStore.Dimensions = testDims
	cfg.VectorStore.Badger.InMemory = true
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, wrap func(vectorstore.Store) vectorstore.Store) *Server {
	t.Helper()
	logger := errors.Discard()

	badger, err := vectorstore.NewBadgerStore(cfg.VectorStore, logger)
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}
	var store vectorstore.Store = badger
	if wrap != nil {
		store = wrap(store)
	}
	guarded := vectorstore.NewGuarded(store, cfg.VectorStore, logger)
	if err := guarded.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	embedder := embedding.NewService(embedding.NewMock(testDims), cfg.Embedding, logger)
	a, err := app.NewWithHandles(cfg, embedder, guarded, archive.Noop{}, logger)
	if err != nil {
		t.Fatalf("NewWithHandles: %v", err)
	}
	t.Cleanup(func() { a.Close(context.Background()) })

	s := NewServer(a, ConfigFrom(cfg, "1.2.3"))
	t.Cleanup(s.cleanupRateLimiter)
	return s
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type part struct {
	field, filename, body string
}

func uploadRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(p.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func upload(t *testing.T, h http.Handler, parts ...part) types.BatchResult {
	t.Helper()
	rec := do(t, h, uploadRequest(t, parts...))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[types.BatchResult](t, rec)
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(t, testConfig(t), nil)
	h := s.Handler()

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / = %d", rec.Code)
	}
	if info := decode[map[string]any](t, rec); info["version"] != "1.2.3" {
		t.Errorf("version = %v", info["version"])
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", rec.Code)
	}
	health := decode[map[string]any](t, rec)
	want := map[string]any{"status": "healthy", "service": "cvmatcher", "version": "1.2.3"}
	if len(health) != len(want) {
		t.Errorf("health = %v, want exactly %v", health, want)
	}
	for k, v := range want {
		if health[k] != v {
			t.Errorf("health[%q] = %v, want %v", k, health[k], v)
		}
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /ready = %d", rec.Code)
	}
	ready := decode[map[string]any](t, rec)
	if ready["status"] != "ready" {
		t.Errorf("ready = %v", ready)
	}
	if store := ready["vector_store"].(map[string]any); store["status"] != "ok" {
		t.Errorf("vector_store = %v", store)
	}
}

func TestHealthIgnoresStoreOutage(t *testing.T) {
	s := newTestServer(t, testConfig(t), func(st vectorstore.Store) vectorstore.Store { return downStore{st} })
	h := s.Handler()

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/health status = %d, want 200", rec.Code)
	}
	if health := decode[map[string]any](t, rec); health["status"] != "healthy" {
		t.Errorf("/health status = %v, want healthy", health["status"])
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/ready status = %d, want 503", rec.Code)
	}
	if ready := decode[map[string]any](t, rec); ready["status"] != "not_ready" {
		t.Errorf("/ready status = %v, want not_ready", ready["status"])
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(t, testConfig(t), nil)

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	stats := decode[map[string]any](t, rec)
	for _, key := range []string{"workers", "circuit_breakers", "rate_limiting", "server"} {
		if _, ok := stats[key]; !ok {
			t.Errorf("stats missing %q", key)
		}
	}
}

func TestUploadSearchListDelete(t *testing.T) {
	s := newTestServer(t, testConfig(t), nil)
	h := s.Handler()

	batch := upload(t, h,
		part{"jd", "jd.txt", "Backend engineer, Go"},
		part{"files", "jane.txt", "Jane Doe\nSoftware Engineer\nBuilt scalable systems..."},
		part{"files", "logo.png", "not a résumé"},
	)
	if batch.JobDescription != "Backend engineer, Go" {
		t.Errorf("job_description = %q", batch.JobDescription)
	}
	if batch.Summary != (types.BatchSummary{TotalFiles: 2, Successful: 1, Failed: 1}) {
		t.Fatalf("summary = %+v", batch.Summary)
	}
	if got := batch.Candidates[1].Message; !strings.HasPrefix(got, "Unsupported file type: .png") {
		t.Errorf("png message = %q", got)
	}
	id := batch.Candidates[0].CandidateInfo.ID

	// GET search
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/search?query=Jane+Doe&limit=3", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /search = %d %s", rec.Code, rec.Body.String())
	}
	if resp := decode[types.SearchResponse](t, rec); resp.Count != 1 || resp.Results[0].ID != id {
		t.Errorf("search = %+v", resp)
	}

	// POST search on the trailing-slash alias
	req := httptest.NewRequest(http.MethodPost, "/search/", strings.NewReader(`{"query":"engineer","limit":5}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = do(t, h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /search/ = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/candidates", nil))
	list := decode[types.CandidateListResponse](t, rec)
	if list.Count != 1 || list.Candidates[0].ID != id {
		t.Fatalf("list = %+v", list)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodDelete, "/candidates/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE = %d", rec.Code)
	}
	if del := decode[types.DeleteResponse](t, rec); !del.Success || del.ID != id {
		t.Errorf("delete = %+v", del)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/candidates/", nil))
	if list := decode[types.CandidateListResponse](t, rec); list.Count != 0 {
		t.Errorf("count after delete = %d", list.Count)
	}
}

func TestClearCandidates(t *testing.T) {
	s := newTestServer(t, testConfig(t), nil)
	h := s.Handler()

	upload(t, h,
		part{"jd", "jd.txt", "Any role"},
		part{"files", "a.txt", "Alice\nDesigner"},
		part{"files", "b.txt", "Bob\nWriter"},
	)

	rec := do(t, h, httptest.NewRequest(http.MethodDelete, "/candidates", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE /candidates = %d", rec.Code)
	}
	if del := decode[types.DeleteResponse](t, rec); !del.Success || del.Message != "All candidates deleted" {
		t.Errorf("clear = %+v", del)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/candidates", nil))
	if list := decode[types.CandidateListResponse](t, rec); list.Count != 0 {
		t.Errorf("count after clear = %d", list.Count)
	}
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t, testConfig(t), nil)
	h := s.Handler()

	jsonSearch := func(body, contentType string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
		return req
	}

	tests := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{"empty GET query", httptest.NewRequest(http.MethodGet, "/search?query=%20%20", nil), http.StatusBadRequest, "INVALID_QUERY"},
		{"empty POST query", jsonSearch(`{"query":""}`, "application/json"), http.StatusBadRequest, "INVALID_QUERY"},
		{"bad JSON", jsonSearch(`{`, "application/json"), http.StatusBadRequest, "INVALID_REQUEST"},
		{"wrong content type", jsonSearch(`{"query":"go"}`, "text/plain"), http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad limit", httptest.NewRequest(http.MethodGet, "/candidates?limit=abc", nil), http.StatusBadRequest, "INVALID_REQUEST"},
		{"zero limit", httptest.NewRequest(http.MethodGet, "/search?query=go&limit=0", nil), http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing jd", uploadRequest(t, part{"files", "a.txt", "Alice"}), http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing files", uploadRequest(t, part{"jd", "jd.txt", "role"}), http.StatusBadRequest, "INVALID_REQUEST"},
		{"unreadable jd", uploadRequest(t, part{"jd", "jd.png", "role"}, part{"files", "a.txt", "Alice"}), http.StatusBadRequest, "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if resp := decode[ErrorResponse](t, rec); resp.Error != tt.code {
				t.Errorf("error = %q, want %q", resp.Error, tt.code)
			}
		})
	}
}

func TestDeleteUnknownCandidateSucceeds(t *testing.T) {
	s := newTestServer(t, testConfig(t), nil)

	id := uuid.NewString()
	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodDelete, "/candidates/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if del := decode[types.DeleteResponse](t, rec); !del.Success || del.ID != id {
		t.Errorf("delete = %+v", del)
	}
}

func TestDeleteMalformedIDReportsFailure(t *testing.T) {
	s := newTestServer(t, testConfig(t), nil)

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodDelete, "/candidates/not-a-uuid", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	if del := decode[types.DeleteResponse](t, rec); del.Success || del.ID != "not-a-uuid" {
		t.Errorf("delete = %+v", del)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, testConfig(t), nil)

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodPut, "/upload", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT /upload = %d, want 405", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.APIKeys = []string{"secret-key-123456"}
	s := newTestServer(t, cfg, nil)
	h := s.Handler()

	tests := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{"missing key", "", "", http.StatusUnauthorized},
		{"wrong key", "X-API-Key", "nope", http.StatusUnauthorized},
		{"header key", "X-API-Key", "secret-key-123456", http.StatusOK},
		{"bearer token", "Authorization", "Bearer secret-key-123456", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/candidates", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			if rec := do(t, h, req); rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}

	// Health stays public
	if rec := do(t, h, httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusOK {
		t.Errorf("/health = %d without key", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, BurstCapacity: 1, ByIP: true}
	s := newTestServer(t, cfg, nil)
	h := s.Handler()

	if rec := do(t, h, httptest.NewRequest(http.MethodGet, "/candidates", nil)); rec.Code != http.StatusOK {
		t.Fatalf("first request = %d", rec.Code)
	}
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/candidates", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestRecoverMiddleware(t *testing.T) {
	s := newTestServer(t, testConfig(t), nil)
	h := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Message != "Internal server error" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "10.0.0.1:5555", "10.0.0.1"},
		{"forwarded for", map[string]string{"X-Forwarded-For": "garbage, 203.0.113.9, 10.0.0.2"}, "10.0.0.1:5555", "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.1:5555", "198.51.100.4"},
		{"no port", nil, "10.0.0.1", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := maskAPIKey("short"); got != "****" {
		t.Errorf("maskAPIKey(short) = %q", got)
	}
	if got := maskAPIKey("abcdefghijkl"); got != "abcdefgh****" {
		t.Errorf("maskAPIKey(long) = %q", got)
	}
}

func TestConfigureTLSModes(t *testing.T) {
	s := &Server{Host: "localhost", Port: "0"}
	srv := &http.Server{Addr: "localhost:0"}

	s.TLSConfig.Mode = "disabled"
	if err := s.configureTLS(srv); err != nil || srv.TLSConfig != nil {
		t.Errorf("disabled: err=%v tls=%v", err, srv.TLSConfig)
	}

	s.TLSConfig.Mode = "server"
	if err := s.configureTLS(srv); err == nil {
		t.Error("server mode without certificates should fail")
	}

	s.TLSConfig.Mode = "bogus"
	if err := s.configureTLS(srv); err == nil {
		t.Error("unknown mode should fail")
	}
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(60, 2, errors.Discard())
	defer rl.Close()

	for i := range 2 {
		if ok, _ := rl.Allow("ip:a"); !ok {
			t.Fatalf("request %d within burst rejected", i)
		}
	}
	ok, wait := rl.Allow("ip:a")
	if ok {
		t.Fatal("request over burst allowed")
	}
	if wait <= 0 || wait > 2*time.Second {
		t.Errorf("wait = %v, want about one second", wait)
	}
	if ok, _ := rl.Allow("ip:b"); !ok {
		t.Error("second client should have its own bucket")
	}

	stats := rl.GetStats()
	if stats["active_clients"] != 2 || stats["rejected_requests"] != int64(1) {
		t.Errorf("stats = %v", stats)
	}

	rl.evictIdle(-time.Second)
	if stats := rl.GetStats(); stats["active_clients"] != 0 {
		t.Errorf("active_clients after eviction = %v", stats["active_clients"])
	}
}

func TestRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:1234"
	req.Header.Set("X-API-Key", "k1")

	if got := rateLimitKey(req, true, true); got != "key:k1" {
		t.Errorf("by API key = %q", got)
	}
	if got := rateLimitKey(req, false, true); got != "ip:10.0.0.7" {
		t.Errorf("by IP = %q", got)
	}
	if got := rateLimitKey(req, false, false); got != "" {
		t.Errorf("disabled = %q", got)
	}
}
