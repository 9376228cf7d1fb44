// Package repo is the GORM persistence layer. Functions take the *gorm.DB to
// run on, so services pass either the root handle or a transaction.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

// pragmas are applied to every new database handle. WAL lets the admin
// analytics reads run while respondents write.
var pragmas = []string{
	"journal_mode=WAL",
	"synchronous=NORMAL",
	"foreign_keys=ON",
	"busy_timeout=5000",
}

const (
	maxOpenConns    = 10
	connMaxIdleTime = 5 * time.Minute
	connMaxLifetime = 30 * time.Minute
)

// OpenSQLite opens or creates the database at path with the pragmas above,
// a bounded pool and query tracing. The parent directory must exist.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("register tracing: %w", err)
	}
	for _, p := range pragmas {
		if err := db.Exec("PRAGMA " + p).Error; err != nil {
			return nil, fmt.Errorf("PRAGMA %s: %w", p, err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxOpenConns)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	return db, nil
}

// Models lists every persisted model in migration order.
func Models() []any {
	return []any{
		&domain.User{},
		&domain.Survey{},
		&domain.SurveyVersion{},
		&domain.Invite{},
		&domain.SurveySession{},
		&domain.SurveyResponse{},
		&domain.SurveyMetricsDaily{},
		&domain.SurveyAnalyticsDaily{},
		&domain.SurveyFieldAnalyticsDaily{},
		&domain.SurveyAnswerBucketDaily{},
		&domain.SurveyTextInsightsDaily{},
		&domain.AnalyticsOutbox{},
		&domain.SessionTransition{},
		&domain.AuditLog{},
		&domain.Idempotency{},
	}
}

// AutoMigrate creates or updates the schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
