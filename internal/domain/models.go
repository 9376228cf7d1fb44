// Package domain defines the persistence models for surveys, versions,
// invites, respondent sessions, responses, and the analytics rollups derived
// from them. These types are mapped with GORM and shared by the repository
// and service layers.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Role is an application user's authorization role.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// User is an application user resolved from an authenticated identity.
//
// Fields:
//   - Subject: stable identifier issued by the identity provider (unique).
//   - Email: contact address reported by the identity provider.
//   - Role: admin users may manage every survey; members only their own.
type User struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Subject   string    `json:"subject"    gorm:"type:varchar(191);not null;uniqueIndex:ux_users_subject"`
	Email     string    `json:"email"      gorm:"type:varchar(320);not null;index"`
	Role      Role      `json:"role"       gorm:"type:varchar(16);not null;default:'member'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// SurveyStatus is the lifecycle status of a survey.
type SurveyStatus string

const (
	SurveyDraft     SurveyStatus = "draft"
	SurveyPublished SurveyStatus = "published"
	SurveyArchived  SurveyStatus = "archived"
)

// Survey is the top-level authoring aggregate. Surveys are never hard-deleted;
// CurrentVersionID always points at the most recently published version.
type Survey struct {
	ID               string       `json:"id"                 gorm:"type:char(36);primaryKey"`
	OwnerID          string       `json:"owner_id"           gorm:"type:char(36);not null;index:idx_surveys_owner"`
	Slug             string       `json:"slug"               gorm:"type:varchar(64);not null;uniqueIndex:ux_surveys_slug"`
	Title            string       `json:"title"              gorm:"type:varchar(255);not null"`
	Description      string       `json:"description"        gorm:"type:text;not null;default:''"`
	Status           SurveyStatus `json:"status"             gorm:"type:varchar(16);not null;default:'draft'"`
	CurrentVersionID *string      `json:"current_version_id" gorm:"type:char(36)"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// TableName returns the database table name for Survey.
func (Survey) TableName() string { return "surveys" }

// VersionStatus distinguishes editable drafts from immutable published versions.
type VersionStatus string

const (
	VersionDraft     VersionStatus = "draft"
	VersionPublished VersionStatus = "published"
)

// VersionSettings holds display settings stored with a version.
type VersionSettings struct {
	ShowProgress          bool   `json:"showProgress"`
	AllowResume           bool   `json:"allowResume"`
	ShowScoreOnCompletion bool   `json:"showScoreOnCompletion"`
	ThankYouMessage       string `json:"thankYouMessage,omitempty"`
}

// SurveyVersion is an ordered field set. Versions are numbered from 1 per
// survey and are immutable once published.
type SurveyVersion struct {
	ID          string                              `json:"id"           gorm:"type:char(36);primaryKey"`
	SurveyID    string                              `json:"survey_id"    gorm:"type:char(36);not null;uniqueIndex:ux_versions_survey_number,priority:1"`
	Number      int                                 `json:"number"       gorm:"not null;uniqueIndex:ux_versions_survey_number,priority:2"`
	Status      VersionStatus                       `json:"status"       gorm:"type:varchar(16);not null;default:'draft'"`
	Fields      datatypes.JSONSlice[Field]          `json:"fields"       gorm:"type:text;not null"`
	Settings    datatypes.JSONType[VersionSettings] `json:"settings"     gorm:"type:text;not null"`
	CreatedBy   string                              `json:"created_by"   gorm:"type:char(36);not null"`
	PublishedAt *time.Time                          `json:"published_at"`
	CreatedAt   time.Time                           `json:"created_at"`
	UpdatedAt   time.Time                           `json:"updated_at"`
}

// TableName returns the database table name for SurveyVersion.
func (SurveyVersion) TableName() string { return "survey_versions" }

// IsPublished reports whether the version is frozen.
func (v SurveyVersion) IsPublished() bool { return v.Status == VersionPublished }

// FieldByID returns the field with the given id.
func (v SurveyVersion) FieldByID(id string) (Field, bool) {
	for _, f := range v.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}
