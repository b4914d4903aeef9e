// Database models for extracted discussion issues
package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Issue is a discrete point of contention or agreement derived from one
// member's conversation log. Issue sets are per-member views: each member
// only ever sees issues extracted from their own messages.
type Issue struct {
	ID             string      `json:"id" gorm:"primaryKey;size:36"`
	ProjectID      string      `json:"project_id" gorm:"index:idx_issue_project_owner;size:36;not null"`
	OwnerUserID    string      `json:"owner_user_id" gorm:"index:idx_issue_project_owner;size:36;not null"`
	Topic          string      `json:"topic" gorm:"size:100"`
	Content        string      `json:"content" gorm:"type:text;not null"`
	Classification string      `json:"classification" gorm:"size:20;default:'discussing'"` // agreed, discussing, disagreed
	SourceMessages StringArray `json:"source_messages,omitempty" gorm:"type:json"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (Issue) TableName() string {
	return "issues"
}

// Issue classifications
const (
	ClassificationAgreed     = "agreed"
	ClassificationDiscussing = "discussing"
	ClassificationDisagreed  = "disagreed"
)

// TopicUnclassified groups issues whose extractor returned no topic.
const TopicUnclassified = "unclassified"

// ========== Helper Types ==========

// StringArray is a slice of strings stored as JSON.
type StringArray []string

// Value implements driver.Valuer for StringArray
func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for StringArray
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte or string failed")
	}
	return json.Unmarshal(bytes, s)
}

// ========== Request/Response Types ==========

// UpdateIssueRequest edits one issue in place.
type UpdateIssueRequest struct {
	Topic          *string `json:"topic,omitempty"`
	Content        *string `json:"content,omitempty"`
	Classification *string `json:"classification,omitempty"`
}

// IssueGroup is one topic bucket in the grouped issue view.
type IssueGroup struct {
	Topic  string  `json:"topic"`
	Issues []Issue `json:"issues"`
}
