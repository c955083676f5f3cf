package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/taskgate/internal/catalogue"
	"github.com/ppiankov/taskgate/internal/dispatch"
	"github.com/ppiankov/taskgate/internal/fileread"
	"github.com/ppiankov/taskgate/internal/metrics"
	"github.com/ppiankov/taskgate/internal/ops"
	"github.com/ppiankov/taskgate/internal/ratelimit"
	"github.com/ppiankov/taskgate/internal/sandbox"
)

// newTestServer wires the real dispatcher and handlers over a temp sandbox.
func newTestServer(t *testing.T, confine bool, extra ...catalogue.Rule) (*Server, string) {
	t.Helper()
	root := t.TempDir()

	h := ops.New(ops.Config{Root: root})
	cat, err := catalogue.New(append(extra, h.Rules()...)...)
	if err != nil {
		t.Fatalf("catalogue: %v", err)
	}
	m := metrics.New()
	d, err := dispatch.New(dispatch.Config{
		Guard:     sandbox.NewDefault(root),
		Catalogue: cat,
		Timeout:   time.Second,
		Metrics:   m,
	})
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}

	srv, err := NewServer(Config{
		Tasks:   d,
		Files:   fileread.New(root, confine),
		Metrics: m,
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	return srv, root
}

func do(t *testing.T, srv *Server, method, target string, body string) (int, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("%s %s: expected JSON response, got %q", method, target, ct)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: decode response: %v", method, target, err)
	}
	return rec.Code, resp
}

func runURL(task string) string {
	return "/run?task=" + url.QueryEscape(task)
}

func TestRunSortContacts(t *testing.T) {
	srv, root := newTestServer(t, false)
	contacts := `[{"first_name":"John","last_name":"Doe"},{"first_name":"Jane","last_name":"Adams"}]`
	if err := os.WriteFile(filepath.Join(root, "contacts.json"), []byte(contacts), 0o644); err != nil {
		t.Fatal(err)
	}

	code, resp := do(t, srv, http.MethodPost, runURL("sort contacts"), "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", code, resp)
	}
	if resp["status"] != "success" || resp["message"] != "Sorted contacts." {
		t.Fatalf("unexpected body %v", resp)
	}

	code, resp = do(t, srv, http.MethodGet, "/read?path="+url.QueryEscape(filepath.Join(root, "contacts-sorted.json")), "")
	if code != http.StatusOK {
		t.Fatalf("expected 200 from /read, got %d: %v", code, resp)
	}
	if strings.Index(resp["content"], "Adams") > strings.Index(resp["content"], "Doe") {
		t.Fatalf("expected Adams before Doe, got %s", resp["content"])
	}
}

func TestRunDeleteIsPolicyViolation(t *testing.T) {
	srv, _ := newTestServer(t, false)

	for _, task := range []string{"delete all files", "sort contacts then delete all files"} {
		code, resp := do(t, srv, http.MethodPost, runURL(task), "")
		if code != http.StatusBadRequest {
			t.Fatalf("%q: expected 400, got %d", task, code)
		}
		if resp["detail"] != sandbox.DeletionReason {
			t.Fatalf("%q: unexpected detail %q", task, resp["detail"])
		}
	}
}

func TestRunPathEscape(t *testing.T) {
	srv, root := newTestServer(t, false)
	code, resp := do(t, srv, http.MethodPost, runURL("sort contacts from /etc/passwd"), "")
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if resp["detail"] != "Access outside "+root+" is restricted." {
		t.Fatalf("unexpected detail %q", resp["detail"])
	}
}

func TestRunUnknownTask(t *testing.T) {
	srv, _ := newTestServer(t, false)
	code, resp := do(t, srv, http.MethodPost, runURL("juggle flaming torches"), "")
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if resp["detail"] != "Unknown task description." {
		t.Fatalf("unexpected detail %q", resp["detail"])
	}
}

func TestRunHandlerErrorIs500(t *testing.T) {
	srv, _ := newTestServer(t, false)
	code, resp := do(t, srv, http.MethodPost, runURL("sort contacts"), "")
	if code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", code)
	}
	if resp["detail"] != "Internal server error: contacts.json: no such file" {
		t.Fatalf("unexpected detail %q", resp["detail"])
	}
}

func TestRunHandlerPanicIs500(t *testing.T) {
	srv, _ := newTestServer(t, false, catalogue.Rule{
		Phrase:  "explode",
		ID:      "explode",
		Handler: func(context.Context) (string, error) { panic("kaboom") },
	})
	code, resp := do(t, srv, http.MethodPost, runURL("explode"), "")
	if code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", code)
	}
	if resp["detail"] != "Internal server error: handler panicked: kaboom" {
		t.Fatalf("unexpected detail %q", resp["detail"])
	}
}

func TestRunJSONBody(t *testing.T) {
	srv, root := newTestServer(t, false)
	if err := os.WriteFile(filepath.Join(root, "dates.txt"), []byte("2024-01-03\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	code, resp := do(t, srv, http.MethodPost, "/run", `{"task":"count wednesdays"}`)
	if code != http.StatusOK || resp["message"] != "Counted Wednesdays and saved." {
		t.Fatalf("unexpected response %d %v", code, resp)
	}
}

func TestRunMissingTask(t *testing.T) {
	srv, _ := newTestServer(t, false)
	code, resp := do(t, srv, http.MethodPost, "/run", "")
	if code != http.StatusBadRequest || resp["detail"] != "task is required" {
		t.Fatalf("unexpected response %d %v", code, resp)
	}

	code, resp = do(t, srv, http.MethodPost, "/run", `{"task":`)
	if code != http.StatusBadRequest || !strings.HasPrefix(resp["detail"], "invalid JSON body") {
		t.Fatalf("unexpected response %d %v", code, resp)
	}
}

func TestReadNonexistent(t *testing.T) {
	srv, root := newTestServer(t, false)
	code, resp := do(t, srv, http.MethodGet, "/read?path="+url.QueryEscape(filepath.Join(root, "nonexistent.txt")), "")
	if code != http.StatusNotFound || resp["detail"] != "File not found" {
		t.Fatalf("unexpected response %d %v", code, resp)
	}
}

func TestReadMissingPath(t *testing.T) {
	srv, _ := newTestServer(t, false)
	code, _ := do(t, srv, http.MethodGet, "/read", "")
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestReadBinaryIs500(t *testing.T) {
	srv, root := newTestServer(t, false)
	p := filepath.Join(root, "image.jpg")
	if err := os.WriteFile(p, []byte{0xff, 0xd8, 0xff}, 0o644); err != nil {
		t.Fatal(err)
	}
	code, resp := do(t, srv, http.MethodGet, "/read?path="+url.QueryEscape(p), "")
	if code != http.StatusInternalServerError || !strings.HasPrefix(resp["detail"], "Internal server error: ") {
		t.Fatalf("unexpected response %d %v", code, resp)
	}
}

func TestReadConfined(t *testing.T) {
	srv, _ := newTestServer(t, true)
	outside := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}

	code, _ := do(t, srv, http.MethodGet, "/read?path="+url.QueryEscape(outside), "")
	if code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, false)
	code, resp := do(t, srv, http.MethodGet, "/healthz", "")
	if code != http.StatusOK || resp["status"] != "ok" {
		t.Fatalf("unexpected response %d %v", code, resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, false)
	do(t, srv, http.MethodPost, runURL("juggle"), "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "taskgate_dispatch_total") {
		t.Fatalf("expected dispatch counter in metrics output")
	}
}

type panickingRunner struct{}

func (panickingRunner) Dispatch(context.Context, string) (*dispatch.Outcome, error) {
	panic("runner exploded")
}

type plainErrRunner struct{}

func (plainErrRunner) Dispatch(context.Context, string) (*dispatch.Outcome, error) {
	return nil, errors.New("backend unavailable")
}

func TestRecoverAndPlainErrors(t *testing.T) {
	for name, runner := range map[string]TaskRunner{
		"panic":   panickingRunner{},
		"generic": plainErrRunner{},
	} {
		srv, err := NewServer(Config{Tasks: runner, Files: fileread.New("/data", false)})
		if err != nil {
			t.Fatal(err)
		}
		code, resp := do(t, srv, http.MethodPost, runURL("anything"), "")
		if code != http.StatusInternalServerError || !strings.HasPrefix(resp["detail"], "Internal server error: ") {
			t.Fatalf("%s: unexpected response %d %v", name, code, resp)
		}
	}
}

func TestNewServerRequiresDeps(t *testing.T) {
	if _, err := NewServer(Config{Files: fileread.New("/data", false)}); err == nil {
		t.Error("expected error without task runner")
	}
	if _, err := NewServer(Config{Tasks: plainErrRunner{}}); err == nil {
		t.Error("expected error without file reader")
	}
}

func TestStartAndShutdown(t *testing.T) {
	srv, err := NewServer(Config{
		Addr:  "127.0.0.1:0",
		Tasks: plainErrRunner{},
		Files: fileread.New("/data", false),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	var resp *http.Response
	for time.Now().Before(deadline) {
		if addr := srv.Addr(); addr != "127.0.0.1:0" {
			resp, err = http.Get("http://" + addr + "/healthz")
			if err == nil {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	if resp == nil {
		t.Fatalf("server never became ready: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /healthz, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunRateLimited(t *testing.T) {
	srv, root := newTestServer(t, false)
	srv.cfg.RunLimit = ratelimit.New(ratelimit.Limit{MaxRequests: 1, Window: time.Hour})
	if err := os.WriteFile(filepath.Join(root, "contacts.json"), []byte(`[]`), 0o644); err != nil {
		t.Fatal(err)
	}

	if code, _ := do(t, srv, http.MethodPost, runURL("sort contacts"), ""); code != http.StatusOK {
		t.Fatalf("first run: expected 200, got %d", code)
	}

	req := httptest.NewRequest(http.MethodPost, runURL("sort contacts"), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second run: expected 429, got %d", rec.Code)
	}
	if ra := rec.Header().Get("Retry-After"); ra == "" {
		t.Error("expected Retry-After header")
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body["detail"], "rate limit exceeded") {
		t.Errorf("unexpected detail %q", body["detail"])
	}

	// /read is not budgeted.
	if code, _ := do(t, srv, http.MethodGet, "/read?path="+url.QueryEscape(filepath.Join(root, "contacts-sorted.json")), ""); code != http.StatusOK {
		t.Errorf("read after limit: expected 200, got %d", code)
	}
}

func TestRunRateLimitIgnoresForwardingHeaders(t *testing.T) {
	srv, root := newTestServer(t, false)
	srv.cfg.RunLimit = ratelimit.New(ratelimit.Limit{MaxRequests: 1, Window: time.Hour})
	if err := os.WriteFile(filepath.Join(root, "contacts.json"), []byte(`[]`), 0o644); err != nil {
		t.Fatal(err)
	}

	send := func(remote, forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, runURL("sort contacts"), nil)
		req.RemoteAddr = remote
		req.Header.Set("X-Forwarded-For", forwarded)
		req.Header.Set("X-Real-IP", forwarded)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("198.51.100.7:4000", "203.0.113.1"); code != http.StatusOK {
		t.Fatalf("first run: expected 200, got %d", code)
	}
	if code := send("198.51.100.7:4001", "203.0.113.2"); code != http.StatusTooManyRequests {
		t.Fatalf("rotated forwarding header: expected 429, got %d", code)
	}
	if code := send("198.51.100.8:4000", "203.0.113.1"); code != http.StatusOK {
		t.Fatalf("different peer: expected 200, got %d", code)
	}
}

func TestClientKey(t *testing.T) {
	if got := clientKey("192.0.2.1:1234"); got != "192.0.2.1" {
		t.Errorf("clientKey with port = %q", got)
	}
	if got := clientKey("192.0.2.1"); got != "192.0.2.1" {
		t.Errorf("clientKey without port = %q", got)
	}
}
