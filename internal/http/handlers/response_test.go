package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-survey-backend/internal/http/middleware"
)

func envelopeOf(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &er))
	return er
}

func TestFail_EnvelopeCarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.AccessLog(middleware.RedactOptions{}))
	r.GET("/gone", func(c *gin.Context) { Fail(c, http.StatusGone, "invite_expired", "expired") })
	r.GET("/boom", func(c *gin.Context) { fail(c, http.StatusBadGateway, ErrCodeInternal, "upstream") })

	req := httptest.NewRequest(http.MethodGet, "/gone", nil)
	req.Header.Set("X-Request-ID", "rid-410")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, ErrorResponse{RequestID: "rid-410", Code: "invite_expired", Message: "expired"}, envelopeOf(t, w))
	assert.NotContains(t, buf.String(), "request failed", "4xx must not log as a failure")

	req = httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set("X-Request-ID", "rid-502")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "rid-502", envelopeOf(t, w).RequestID)
	assert.Contains(t, buf.String(), `"message":"request failed"`)
	assert.Contains(t, buf.String(), `"request_id":"rid-502"`)
}

func TestSuccessHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ok", func(c *gin.Context) { ok(c, http.StatusCreated, gin.H{"id": "s1"}) })
	r.GET("/secret", func(c *gin.Context) { okNoStore(c, http.StatusOK, gin.H{"token": "t"}) })
	r.DELETE("/x", noContent)

	w := serve(r, http.MethodGet, "/ok", nil, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":"s1"}`, w.Body.String())
	assert.Empty(t, w.Header().Get("Cache-Control"))

	w = serve(r, http.MethodGet, "/secret", nil, nil)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w = serve(r, http.MethodDelete, "/x", nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, w.Body.Len())
}

func TestNotModified(t *testing.T) {
	gin.SetMode(gin.TestMode)
	const etag = `W/"surveys:u1:3"`
	r := gin.New()
	r.GET("/list", func(c *gin.Context) {
		if notModified(c, etag) {
			return
		}
		ok(c, http.StatusOK, gin.H{})
	})

	cases := map[string]int{
		"":                   http.StatusOK,
		`W/"other"`:          http.StatusOK,
		etag:                 http.StatusNotModified,
		`W/"other", ` + etag: http.StatusNotModified,
		"*":                  http.StatusNotModified,
	}
	for inm, want := range cases {
		hdr := map[string]string{}
		if inm != "" {
			hdr["If-None-Match"] = inm
		}
		w := serve(r, http.MethodGet, "/list", nil, hdr)
		assert.Equal(t, want, w.Code, "If-None-Match %q", inm)
		assert.Equal(t, etag, w.Header().Get("ETag"))
	}
}
