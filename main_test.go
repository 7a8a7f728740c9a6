package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/s1natex/taskboard/internal/config"
	"github.com/s1natex/taskboard/internal/middleware"
	"github.com/s1natex/taskboard/internal/tasks"
)

func testConfig(csrf bool) config.Config {
	return config.Config{
		SecretKey:      "test-secret",
		CORSOrigins:    []string{"*"},
		CSRFEnabled:    csrf,
		RequestTimeout: 5 * time.Second,
	}
}

func newTestRouter(t *testing.T, csrf bool) (*chi.Mux, *tasks.InMemoryRepo) {
	t.Helper()
	repo := tasks.NewInMemoryRepo()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return newRouter(repo, testConfig(csrf), logger), repo
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, true)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

// unavailableRepo fails every call it does not override.
type unavailableRepo struct {
	tasks.Repository
}

func (unavailableRepo) Count(context.Context) (int, error) {
	return 0, errors.New("database is locked")
}

func TestHealthEndpoint_StoreUnavailable(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	r := newRouter(unavailableRepo{}, testConfig(true), logger)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if len(body) != 1 || body["status"] != "unavailable" {
		t.Fatalf(`expected {"status":"unavailable"}, got %v`, body)
	}
}

func TestOpenRepo_SQLiteMemoryURLs(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	for _, u := range []string{"sqlite://", "sqlite:///:memory:", ":memory:"} {
		t.Run(u, func(t *testing.T) {
			ctx := context.Background()
			repo, closeRepo, err := openRepo(ctx, config.Config{DatabaseURL: u}, logger)
			if err != nil {
				t.Fatalf("openRepo(%q): %v", u, err)
			}
			defer closeRepo()

			if _, err := repo.Create(ctx, tasks.NewTask{Title: "scratch"}); err != nil {
				t.Fatalf("create: %v", err)
			}
			if n, err := repo.Count(ctx); err != nil || n != 1 {
				t.Fatalf("expected 1 task, got %d, %v", n, err)
			}
		})
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no database files on disk, found %v", entries)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, false)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/complete/12345", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	want := `http_requests_total{method="GET",path="/complete/{id:[0-9]+}",status="404"}`
	if !strings.Contains(w.Body.String(), want) {
		t.Fatalf("expected metrics to contain %q", want)
	}
}

var csrfInput = regexp.MustCompile(`name="csrf_token" value="([^"]*)"`)

// fetchForm loads /add and returns the CSRF cookie and the embedded token.
func fetchForm(t *testing.T, h http.Handler) (*http.Cookie, string) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/add", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for form, got %d", w.Code)
	}

	var csrfCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.CSRFCookieName {
			csrfCookie = c
		}
	}
	if csrfCookie == nil {
		t.Fatalf("expected %s cookie on form response", middleware.CSRFCookieName)
	}
	m := csrfInput.FindStringSubmatch(w.Body.String())
	if m == nil || m[1] == "" {
		t.Fatalf("expected csrf token in form, body=%s", w.Body.String())
	}
	return csrfCookie, html.UnescapeString(m[1])
}

func postForm(h http.Handler, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/add", bytes.NewBufferString(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAddTask_WithCSRF(t *testing.T) {
	r, repo := newTestRouter(t, true)
	csrfCookie, token := fetchForm(t, r)

	w := postForm(r, url.Values{
		"csrf_token":  {token},
		"title":       {"Buy milk"},
		"description": {"2%"},
		"due_date":    {"2024-01-15"},
		"priority":    {"High"},
	}, csrfCookie)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Fatalf("expected 302 to /, got %d %q body=%s", w.Code, w.Header().Get("Location"), w.Body.String())
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(csrfCookie)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	body := w.Body.String()
	if strings.Count(body, `<tr class="task`) != 1 || !strings.Contains(body, "Buy milk") || !strings.Contains(body, ">High<") {
		t.Fatalf("expected one Buy milk row, body=%s", body)
	}
	if n, _ := repo.Count(req.Context()); n != 1 {
		t.Fatalf("expected 1 stored task, got %d", n)
	}
}

func TestAddTask_CSRFRejected(t *testing.T) {
	r, repo := newTestRouter(t, true)
	csrfCookie, token := fetchForm(t, r)
	form := url.Values{"title": {"sneaky"}, "priority": {"Normal"}}

	tests := []struct {
		name    string
		token   string
		cookies []*http.Cookie
		want    string
	}{
		{name: "missing cookie and token", want: "The CSRF token is missing."},
		{name: "missing token", cookies: []*http.Cookie{csrfCookie}, want: "The CSRF token is missing."},
		{name: "wrong token", token: "bm90LWEtcmVhbC10b2tlbi1mcm9tLXRoaXMtc2l0ZQ==", cookies: []*http.Cookie{csrfCookie}, want: "The CSRF token is invalid."},
		{name: "token for another cookie", token: token, want: "The CSRF token is invalid."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := url.Values{}
			for k, v := range form {
				f[k] = v
			}
			if tt.token != "" {
				f.Set("csrf_token", tt.token)
			}
			w := postForm(r, f, tt.cookies...)
			if w.Code != http.StatusOK {
				t.Fatalf("expected form re-render with 200, got %d", w.Code)
			}
			body := w.Body.String()
			if !strings.Contains(body, `<p class="error">`+tt.want+`</p>`) {
				t.Fatalf("expected %q on the form, body=%s", tt.want, body)
			}
			if !strings.Contains(body, `value="sneaky"`) {
				t.Fatalf("expected submitted title kept, body=%s", body)
			}
			m := csrfInput.FindStringSubmatch(body)
			if m == nil || m[1] == "" {
				t.Fatalf("expected a fresh token on the re-rendered form")
			}
		})
	}
	if n, _ := repo.Count(context.Background()); n != 0 {
		t.Fatalf("expected rejected posts to store nothing, got %d", n)
	}
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "warn")
	l.Info("hidden")
	l.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected log output: %s", out)
	}
}
