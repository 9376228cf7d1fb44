package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAudienceOf(t *testing.T) {
	cases := map[string]string{
		"":                                  AudienceUnmatched,
		"/api/v1/invites/:token":            AudienceRespondent,
		"/api/v1/invites/:token/sessions":   AudienceRespondent,
		"/api/v1/sessions/:publicId/submit": AudienceRespondent,
		"/api/v1/surveys/:id/sessions/idle": AudienceAdmin,
		"/api/v1/admin/invites/:id/revoke":  AudienceAdmin,
		"/health":                           AudienceOps,
		"/metrics":                          AudienceOps,
		"/swagger/*any":                     AudienceOps,
	}
	for route, want := range cases {
		if got := AudienceOf(route); got != want {
			t.Errorf("AudienceOf(%q) = %q, want %q", route, got, want)
		}
	}
}

func TestMetrics_LabelsByAudienceAndRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/api/v1/sessions/:publicId", func(c *gin.Context) { c.String(http.StatusOK, "{}") })
	r.POST("/api/v1/surveys", func(c *gin.Context) { c.Status(http.StatusCreated) })

	const sessRoute = "/api/v1/sessions/:publicId"
	baseSess := testutil.ToFloat64(httpReqs.WithLabelValues(AudienceRespondent, "GET", sessRoute, "200"))
	baseAdmin := testutil.ToFloat64(httpReqs.WithLabelValues(AudienceAdmin, "POST", "/api/v1/surveys", "201"))
	baseMiss := testutil.ToFloat64(httpReqs.WithLabelValues(AudienceUnmatched, "GET", AudienceUnmatched, "404"))

	for _, p := range []string{"/api/v1/sessions/a", "/api/v1/sessions/b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/surveys", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/.env", nil))

	if d := testutil.ToFloat64(httpReqs.WithLabelValues(AudienceRespondent, "GET", sessRoute, "200")) - baseSess; d != 2 {
		t.Fatalf("respondent counter delta %v, want 2", d)
	}
	if d := testutil.ToFloat64(httpReqs.WithLabelValues(AudienceAdmin, "POST", "/api/v1/surveys", "201")) - baseAdmin; d != 1 {
		t.Fatalf("admin counter delta %v, want 1", d)
	}
	// Raw scanner paths collapse into one series.
	if d := testutil.ToFloat64(httpReqs.WithLabelValues(AudienceUnmatched, "GET", AudienceUnmatched, "404")) - baseMiss; d != 2 {
		t.Fatalf("unmatched counter delta %v, want 2", d)
	}

	if n := testutil.CollectAndCount(httpLat); n == 0 {
		t.Fatal("latency histogram empty")
	}
	if n := testutil.CollectAndCount(httpRespSize); n == 0 {
		t.Fatal("size histogram empty")
	}
	if v := testutil.ToFloat64(httpInflight.WithLabelValues(AudienceRespondent)); v != 0 {
		t.Fatalf("inflight gauge = %v after requests finished", v)
	}
}
