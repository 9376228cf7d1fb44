package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func accessLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range logLines(t, buf) {
		if m["message"] == "http_request" {
			out = append(out, m)
		}
	}
	return out
}

func TestRequestID_ReuseOrMint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/rid", func(c *gin.Context) {
		seen = RequestIDFrom(c)
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{"absent", "", false},
		{"well formed", "req-01.edge:7", true},
		{"bad charset", "abc def\n", false},
		{"too long", strings.Repeat("a", 129), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/rid", nil)
			if tc.inbound != "" {
				req.Header.Set(requestIDHeader, tc.inbound)
			}
			r.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if got == "" || got != seen {
				t.Fatalf("header %q, context %q", got, seen)
			}
			if tc.keep != (got == tc.inbound) {
				t.Fatalf("inbound %q kept=%v, got %q", tc.inbound, tc.keep, got)
			}
		})
	}
}

func TestAccessLog_LevelsFollowOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), AccessLog(RedactOptions{}))
	r.GET("/surveys/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	r.GET("/errs", func(c *gin.Context) {
		_ = c.Error(http.ErrHandlerTimeout)
		c.Status(http.StatusOK)
	})

	for _, p := range []string{"/surveys/42", "/missing", "/boom", "/errs"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	lines := accessLines(t, buf)
	if len(lines) != 4 {
		t.Fatalf("want 4 access lines, got %d: %s", len(lines), buf.String())
	}
	want := []struct{ level, route string }{
		{"info", "/surveys/:id"},
		{"warn", "/missing"},
		{"error", "/boom"},
		{"error", "/errs"},
	}
	for i, w := range want {
		if lines[i]["level"] != w.level || lines[i]["route"] != w.route {
			t.Fatalf("line %d: level=%v route=%v, want %s %s", i, lines[i]["level"], lines[i]["route"], w.level, w.route)
		}
		if lines[i]["request_id"] == "" {
			t.Fatalf("line %d missing request_id", i)
		}
	}
	if !strings.Contains(lines[3]["errors"].(string), "timeout") {
		t.Fatalf("gin errors not logged: %v", lines[3]["errors"])
	}
}

func TestAccessLog_ScrubsUnmatchedPathQueryAndHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), AccessLog(RedactOptions{MaskHeaders: []string{"X-API-Key"}}))

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/invites/tok_SECRET123/sessions?email=ana@example.com&phone=210-555-1234", nil)
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("X-API-Key", "k-123")
	req.Header.Set("X-Forwarded-For", "ana@example.com")
	r.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, leak := range []string{"tok_SECRET123", "ana@example.com", "555-1234", "Bearer abc", "k-123"} {
		if strings.Contains(out, leak) {
			t.Fatalf("log leaked %q: %s", leak, out)
		}
	}
	lines := accessLines(t, buf)
	if len(lines) != 1 {
		t.Fatalf("want one access line, got %d", len(lines))
	}
	if route := lines[0]["route"].(string); !strings.Contains(route, redactedToken) {
		t.Fatalf("route not scrubbed: %q", route)
	}
}

func TestAccessLog_UserIDReadAfterHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), AccessLog(RedactOptions{}))
	// Identity is attached further down the chain, as the auth group does.
	r.GET("/me", func(c *gin.Context) {
		c.Set(ctxKeyUserID, "u-7")
		LoggerFrom(c).Info().Msg("inside")
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/me", nil))

	lines := logLines(t, buf)
	if len(lines) != 2 {
		t.Fatalf("want handler line and access line, got %d", len(lines))
	}
	if lines[0]["message"] != "inside" || lines[0]["route"] != "/me" || lines[0]["request_id"] == "" {
		t.Fatalf("handler line lacks request context: %v", lines[0])
	}
	if lines[1]["user_id"] != "u-7" {
		t.Fatalf("user_id missing from access line: %v", lines[1])
	}
}

func TestRecovery_JSONEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), AccessLog(RedactOptions{}), Recovery())
	r.GET("/panic", func(*gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(requestIDHeader, "rid-1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] != "rid-1" {
		t.Fatalf("envelope %v", body)
	}
	if !strings.Contains(buf.String(), "panic recovered") || !strings.Contains(buf.String(), `"request_id":"rid-1"`) {
		t.Fatalf("panic not logged with request context: %s", buf.String())
	}
}

func TestRecovery_AfterPartialWrite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_ = captureLogger(t)

	r := gin.New()
	r.Use(Recovery())
	r.GET("/half", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/half", nil))
	if w.Body.String() != "partial" {
		t.Fatalf("body rewritten after write: %q", w.Body.String())
	}
}

func TestLoggerFrom_FallsBackToGlobal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	LoggerFrom(c).Info().Msg("fallback")
	if !strings.Contains(buf.String(), "fallback") {
		t.Fatalf("global logger not used: %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if truncate("abc", 0) != "abc" || truncate("abc", 3) != "abc" {
		t.Fatal("short strings must pass through")
	}
	if got := truncate("abcdef", 3); got != "abc…" {
		t.Fatalf("got %q", got)
	}
}
