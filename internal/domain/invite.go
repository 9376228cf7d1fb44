package domain

import "time"

// InviteStatus is the stored or computed usability state of an invite.
type InviteStatus string

const (
	InviteActive    InviteStatus = "active"
	InviteRevoked   InviteStatus = "revoked"
	InviteExhausted InviteStatus = "exhausted"
	InviteExpired   InviteStatus = "expired"
)

// Terminal reports whether the status can never return to active.
func (s InviteStatus) Terminal() bool { return s != InviteActive }

// Invite grants anonymous respondents access to one survey version.
// Only a one-way hash of the token is stored; the plaintext is handed out once.
//
// Invariant: CompletionCount <= MaxCompletions.
type Invite struct {
	ID              string       `json:"id"               gorm:"type:char(36);primaryKey"`
	SurveyID        string       `json:"survey_id"        gorm:"type:char(36);not null;index:idx_invites_survey"`
	VersionID       string       `json:"version_id"       gorm:"type:char(36);not null"`
	TokenHash       string       `json:"-"                gorm:"type:char(64);not null;uniqueIndex:ux_invites_token_hash"`
	Label           string       `json:"label"            gorm:"type:varchar(255);not null;default:''"`
	Status          InviteStatus `json:"status"           gorm:"type:varchar(16);not null;default:'active'"`
	MaxCompletions  int          `json:"max_completions"  gorm:"not null;check:max_completions >= 1"`
	CompletionCount int          `json:"completion_count" gorm:"not null;default:0"`
	ExpiresAt       *time.Time   `json:"expires_at"`
	CreatedBy       string       `json:"created_by"       gorm:"type:char(36);not null"`
	RevokedAt       *time.Time   `json:"revoked_at"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// TableName returns the database table name for Invite.
func (Invite) TableName() string { return "invites" }
