package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-survey-backend/internal/domain"
	"github.com/tbourn/go-survey-backend/internal/http/middleware"
	"github.com/tbourn/go-survey-backend/internal/services"
)

// --- stubs -------------------------------------------------------------------

type stubSurveys struct {
	SurveyService
	items   []domain.Survey
	count   int64
	updated time.Time
	err     error
}

func (s *stubSurveys) ListSurveys(_ context.Context, _ *domain.User, _ domain.SurveyStatus, _, _ int) ([]domain.Survey, int64, error) {
	return s.items, int64(len(s.items)), s.err
}

func (s *stubSurveys) Stats(_ context.Context, actor *domain.User, _ domain.SurveyStatus) (int64, *time.Time, error) {
	if actor == nil {
		return 0, nil, services.ErrUnauthorized
	}
	return s.count, &s.updated, nil
}

func (s *stubSurveys) CreateSurvey(_ context.Context, actor *domain.User, in services.CreateSurveyInput) (*domain.Survey, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Survey{ID: "sv-1", OwnerID: actor.ID, Title: in.Title, Slug: "slug"}, nil
}

type stubSessions struct {
	SessionService
	submits  int
	receipt  *services.SubmitResult
	saved    domain.AnswerValue
	statuses []domain.SessionStatus
	snapshot *services.SessionSnapshot
	err      error
}

func (s *stubSessions) Submit(context.Context, string) (*services.SubmitResult, error) {
	s.submits++
	if s.err != nil {
		return nil, s.err
	}
	return s.receipt, nil
}

func (s *stubSessions) Receipt(context.Context, string) (*services.SubmitResult, error) {
	return s.receipt, nil
}

func (s *stubSessions) SaveAnswer(_ context.Context, _, _ string, v domain.AnswerValue) (*services.SaveResult, error) {
	s.saved = v
	return &services.SaveResult{Status: domain.SessionInProgress}, s.err
}

func (s *stubSessions) Snapshot(context.Context, string) (*services.SessionSnapshot, error) {
	return s.snapshot, s.err
}

func (s *stubSessions) StartOrResume(_ context.Context, _, _, _ string) (*services.SessionView, error) {
	return &services.SessionView{SessionPublicID: "p1", Resumed: true}, s.err
}

func (s *stubSessions) ListIdleSessions(_ context.Context, _ *domain.User, _ string, st []domain.SessionStatus, _, _ int) ([]domain.SurveySession, int64, error) {
	s.statuses = st
	return []domain.SurveySession{}, 0, s.err
}

type stubAnalytics struct {
	AnalyticsService
	from, to string
	err      error
}

func (s *stubAnalytics) GetFunnel(_ context.Context, _ *domain.User, _, from, to string) (*services.Funnel, error) {
	s.from, s.to = from, to
	return &services.Funnel{ConversionRate: 0.5}, s.err
}

func (s *stubAnalytics) WriteCSVExport(_ context.Context, _ *domain.User, _, _, _ string, w io.Writer) error {
	if s.err != nil {
		return s.err
	}
	_, err := io.WriteString(w, "date,started\n2026-03-01,4\n")
	return err
}

type stubOutbox struct {
	OutboxService
	requeued string
	err      error
}

func (s *stubOutbox) Requeue(_ context.Context, _ *domain.User, id string) error {
	s.requeued = id
	return s.err
}

type memIdem struct {
	recs map[string]string
}

func (m *memIdem) Lookup(_ context.Context, actor, scope, key string) (string, bool, error) {
	rid, ok := m.recs[actor+"|"+scope+"|"+key]
	return rid, ok, nil
}

func (m *memIdem) Remember(_ context.Context, actor, scope, key, rid string, _ int) error {
	m.recs[actor+"|"+scope+"|"+key] = rid
	return nil
}

// --- helpers -----------------------------------------------------------------

var admin = &domain.User{ID: "u-admin", Role: domain.RoleAdmin}

// asUser stands in for the auth middleware.
func asUser(u *domain.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user", u)
		c.Set("userID", u.ID)
		c.Next()
	}
}

func serve(r *gin.Engine, method, path string, body []byte, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &er))
	return er.Code
}

// --- tests -------------------------------------------------------------------

func TestStatusFor_MapsServiceCodes(t *testing.T) {
	cases := map[services.Code]int{
		services.CodeUnauthorized:         http.StatusUnauthorized,
		services.CodeForbidden:            http.StatusForbidden,
		services.CodeNotFound:             http.StatusNotFound,
		services.CodeInvalidAnswer:        http.StatusUnprocessableEntity,
		services.CodeMissingRequiredField: http.StatusUnprocessableEntity,
		services.CodeExportTooLarge:       http.StatusUnprocessableEntity,
		services.CodeInvalidDateRange:     http.StatusBadRequest,
		services.CodeInvalidSlug:          http.StatusBadRequest,
		services.CodeSessionCompleted:     http.StatusConflict,
		services.CodeSlugTaken:            http.StatusConflict,
		services.CodeInviteExpired:        http.StatusGone,
		services.CodeInviteExhausted:      http.StatusGone,
		services.CodeWindowTooLarge:       http.StatusRequestEntityTooLarge,
		services.Code(""):                 http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, statusFor(code), "code %q", code)
	}
}

func TestWriteError_Envelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/gone", func(c *gin.Context) { writeError(c, services.ErrInviteExpired) })
	r.GET("/boom", func(c *gin.Context) { writeError(c, errors.New("db exploded: secret dsn")) })

	w := serve(r, http.MethodGet, "/gone", nil, nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "invite_expired", errorCode(t, w))

	w = serve(r, http.MethodGet, "/boom", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, ErrCodeInternal, errorCode(t, w))
	assert.NotContains(t, w.Body.String(), "secret dsn")
}

func TestListSurveys_ETagNotModified(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sv := &stubSurveys{items: []domain.Survey{{ID: "a"}}, count: 1, updated: time.Unix(100, 0)}
	h := New(Services{Surveys: sv})
	r := gin.New()
	r.Use(asUser(admin))
	r.GET("/surveys", h.ListSurveys)

	w := serve(r, http.MethodGet, "/surveys", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	var out ListSurveysResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Len(t, out.Surveys, 1)
	assert.Equal(t, int64(1), out.Pagination.Total)

	w = serve(r, http.MethodGet, "/surveys", nil, map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, w.Code)
}

func TestCreateSurvey_BadJSONAndConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sv := &stubSurveys{}
	h := New(Services{Surveys: sv})
	r := gin.New()
	r.Use(asUser(admin))
	r.POST("/surveys", h.CreateSurvey)

	w := serve(r, http.MethodPost, "/surveys", []byte("{"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, http.MethodPost, "/surveys", []byte(`{"title":"A"}`), nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	sv.err = services.ErrSlugTaken
	w = serve(r, http.MethodPost, "/surveys", []byte(`{"title":"A"}`), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "slug_taken", errorCode(t, w))
}

func TestSaveAnswer_DecodesUnion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ss := &stubSessions{}
	h := New(Services{Sessions: ss})
	r := gin.New()
	r.PUT("/sessions/:publicId/answers/:fieldId", h.SaveAnswer)

	w := serve(r, http.MethodPut, "/sessions/p1/answers/f1", []byte(`{"value":["a","b"]}`), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.ValueChoices, ss.saved.Kind)
	assert.Equal(t, []string{"a", "b"}, ss.saved.Choices)

	w = serve(r, http.MethodPut, "/sessions/p1/answers/f1", []byte(`{"value":true}`), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "invalid_answer", errorCode(t, w))

	w = serve(r, http.MethodPut, "/sessions/p1/answers/f1", []byte(`{"value":`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ss.err = services.ErrSessionCompleted
	w = serve(r, http.MethodPut, "/sessions/p1/answers/f1", []byte(`{"value":3}`), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStartSession_ResumedIs200(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(Services{Sessions: &stubSessions{}})
	r := gin.New()
	r.POST("/invites/:token/sessions", h.StartSession)

	w := serve(r, http.MethodPost, "/invites/tok/sessions", []byte(`{"respondentKey":"k"}`), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetSession_NoStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ss := &stubSessions{snapshot: &services.SessionSnapshot{SessionPublicID: "p1"}}
	h := New(Services{Sessions: ss})
	r := gin.New()
	r.GET("/sessions/:publicId", h.GetSession)

	w := serve(r, http.MethodGet, "/sessions/p1", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	ss.snapshot = nil
	w = serve(r, http.MethodGet, "/sessions/p1", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitSession_ReplaysWithSameKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ss := &stubSessions{receipt: &services.SubmitResult{ResponseID: "resp-1"}}
	h := New(Services{Sessions: ss, Idempotency: &memIdem{recs: map[string]string{}}})
	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	r.POST("/sessions/:publicId/submit", h.SubmitSession)

	hdr := map[string]string{middleware.HeaderIdempotencyKey: "k-1"}
	w := serve(r, http.MethodPost, "/sessions/p1/submit", nil, hdr)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Idempotency-Replayed"))

	w = serve(r, http.MethodPost, "/sessions/p1/submit", nil, hdr)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get("Idempotency-Replayed"))
	assert.Equal(t, 1, ss.submits)

	// A fresh key runs the submission again.
	ss.err = services.ErrSessionCompleted
	w = serve(r, http.MethodPost, "/sessions/p1/submit", nil, map[string]string{middleware.HeaderIdempotencyKey: "k-2"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 2, ss.submits)
}

func TestAnalytics_WindowParamsAndExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	an := &stubAnalytics{}
	h := New(Services{Analytics: an})
	r := gin.New()
	r.Use(asUser(admin))
	r.GET("/surveys/:id/analytics/funnel", h.Funnel)
	r.GET("/surveys/:id/analytics/export.csv", h.ExportCSV)

	w := serve(r, http.MethodGet, "/surveys/s1/analytics/funnel?from=2026-03-01&to=2026-03-07", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2026-03-01", an.from)
	assert.Equal(t, "2026-03-07", an.to)

	w = serve(r, http.MethodGet, "/surveys/s1/analytics/export.csv", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="survey-s1-analytics.csv"`)
	assert.Contains(t, w.Body.String(), "2026-03-01,4")

	an.err = services.ErrWindowTooLarge
	w = serve(r, http.MethodGet, "/surveys/s1/analytics/funnel", nil, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	an.err = services.ErrExportTooLarge
	w = serve(r, http.MethodGet, "/surveys/s1/analytics/export.csv", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestIdleSessions_ParsesStatusList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ss := &stubSessions{}
	h := New(Services{Sessions: ss})
	r := gin.New()
	r.Use(asUser(admin))
	r.GET("/surveys/:id/sessions/idle", h.IdleSessions)

	w := serve(r, http.MethodGet, "/surveys/s1/sessions/idle?status=idle,%20abandoned,idle", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []domain.SessionStatus{domain.SessionIdle, domain.SessionAbandoned}, ss.statuses)
}

func TestRequeueOutbox(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ob := &stubOutbox{}
	h := New(Services{Outbox: ob})
	r := gin.New()
	r.Use(asUser(admin))
	r.POST("/admin/outbox/:id/requeue", h.RequeueOutbox)

	w := serve(r, http.MethodPost, "/admin/outbox/o-1/requeue", nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "o-1", ob.requeued)

	ob.err = services.ErrNotFound
	w = serve(r, http.MethodPost, "/admin/outbox/o-2/requeue", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRebuildAnalytics_BadBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(Services{Analytics: &stubAnalytics{}})
	r := gin.New()
	r.Use(asUser(admin))
	r.POST("/admin/analytics/rebuild", h.RebuildAnalytics)

	w := serve(r, http.MethodPost, "/admin/analytics/rebuild", []byte("nope"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeBadRequest, errorCode(t, w))
}

func TestPageOf(t *testing.T) {
	p := pageOf(2, 10, 25)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasNext)
	assert.False(t, pageOf(3, 10, 25).HasNext)
	assert.Equal(t, 0, pageOf(1, 10, 0).TotalPages)
}
