package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-survey-backend/internal/domain"
	"github.com/tbourn/go-survey-backend/internal/repo"
)

// fakeClock is a manually advanced clock shared by every service in a test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recordingScheduler captures scheduled rebuilds.
type recordingScheduler struct {
	mu   sync.Mutex
	jobs []string
}

func (r *recordingScheduler) Schedule(surveyID, dateKey string) {
	r.mu.Lock()
	r.jobs = append(r.jobs, surveyID+"/"+dateKey)
	r.mu.Unlock()
}

// testEnv wires every service to one database and clock.
type testEnv struct {
	db        *gorm.DB
	clk       *fakeClock
	rebuilds  *recordingScheduler
	users     *UserService
	surveys   *SurveyService
	invites   *InviteService
	sessions  *SessionService
	analytics *AnalyticsService
	audit     *AuditService
	admin     *domain.User
}

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	// One connection keeps shared-cache table locks out of the picture.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newServiceDB(t)
	clk := newFakeClock()
	e := &testEnv{db: db, clk: clk, rebuilds: &recordingScheduler{}}

	e.users = NewUserService(db, AdminPolicy{BootstrapFirstUser: true})
	e.surveys = &SurveyService{DB: db, Now: clk.Now}
	e.invites = &InviteService{DB: db, Now: clk.Now, PublicBaseURL: "https://surveys.example.com"}
	e.sessions = NewSessionService(db)
	e.sessions.Now = clk.Now
	e.sessions.Rebuilds = e.rebuilds
	e.analytics = NewAnalyticsService(db)
	e.analytics.Now = clk.Now
	e.audit = &AuditService{DB: db}

	admin, err := e.users.EnsureUser(context.Background(), Identity{Subject: "auth0|admin", Email: "admin@example.com"})
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, admin.Role)
	e.admin = admin
	return e
}

func (e *testEnv) member(t *testing.T, subject string) *domain.User {
	t.Helper()
	u, err := e.users.EnsureUser(context.Background(), Identity{Subject: subject, Email: subject + "@example.com"})
	require.NoError(t, err)
	require.Equal(t, domain.RoleMember, u.Role)
	return u
}

func fptr(f float64) *float64 { return &f }

// quizFields is a four-question set: a required graded yes/no, an optional
// rating, an optional free-text comment, and an optional graded number.
func quizFields() []domain.Field {
	return []domain.Field{
		{
			ID: "agree", Kind: domain.KindSingleSelect, Label: "Do you agree?", Required: true, Order: 0,
			Options:     []domain.FieldOption{{Label: "Yes", Value: "yes"}, {Label: "No", Value: "no"}},
			Correctness: &domain.Correctness{Mode: domain.ModeSingleSelectExact, ExpectedText: "yes"},
		},
		{ID: "rating", Kind: domain.KindRating, Label: "Rate us", Order: 1},
		{ID: "comment", Kind: domain.KindLongText, Label: "Anything else?", Order: 2},
		{
			ID: "five", Kind: domain.KindNumber, Label: "Two plus three", Order: 3,
			Correctness: &domain.Correctness{Mode: domain.ModeNumericExact, ExpectedNumber: fptr(5), Tolerance: fptr(0)},
		},
	}
}

// publishSurvey creates and publishes a survey owned by owner.
func (e *testEnv) publishSurvey(t *testing.T, owner *domain.User, slug string, fields []domain.Field, settings domain.VersionSettings) (*domain.Survey, *domain.SurveyVersion) {
	t.Helper()
	ctx := context.Background()
	sv, err := e.surveys.CreateSurvey(ctx, owner, CreateSurveyInput{Title: "Survey " + slug, Slug: slug})
	require.NoError(t, err)
	v, err := e.surveys.CreateVersionDraft(ctx, owner, sv.ID, VersionDraftInput{Fields: fields, Settings: settings})
	require.NoError(t, err)
	v, err = e.surveys.PublishVersion(ctx, owner, sv.ID, v.ID)
	require.NoError(t, err)
	sv, err = repo.GetSurvey(ctx, e.db, sv.ID)
	require.NoError(t, err)
	return sv, v
}

func (e *testEnv) issueInvite(t *testing.T, owner *domain.User, surveyID string, max int, expires *time.Time) *CreatedInvite {
	t.Helper()
	ci, err := e.invites.CreateInvite(context.Background(), owner, surveyID, CreateInviteInput{MaxCompletions: max, ExpiresAt: expires})
	require.NoError(t, err)
	return ci
}

func (e *testEnv) metrics(t *testing.T, surveyID string) domain.SurveyMetricsDaily {
	t.Helper()
	row, err := repo.GetMetricsDaily(context.Background(), e.db, surveyID, e.clk.Now().Format("2006-01-02"))
	require.NoError(t, err)
	return row
}

// respondentKey returns a well-formed key unique to n.
func respondentKey(n int) string { return fmt.Sprintf("respondent-%04d", n) }
