// Database models for conversation messages
package db

import "time"

// Message is one utterance in a project's conversation log. Rows are
// append-only: they are never edited or deleted once written.
//
// AuthorUserID is nil for system/AI speakers. OpenerKey is a synthetic
// uniqueness key ("projectID:userID") set only on the AI opening prompt, so
// concurrent attempts to emit the opener collapse onto a single row.
type Message struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	ProjectID    string    `json:"project_id" gorm:"index:idx_message_project_ts;size:36;not null"`
	AuthorUserID *string   `json:"author_user_id,omitempty" gorm:"index;size:36"`
	Speaker      string    `json:"speaker" gorm:"size:100;not null"`
	Content      string    `json:"content" gorm:"type:text;not null"`
	Sentiment    string    `json:"sentiment,omitempty" gorm:"size:20"` // positive, neutral, negative
	Role         string    `json:"role" gorm:"size:20;default:'chat'"` // chat, opener
	OpenerKey    *string   `json:"-" gorm:"uniqueIndex;size:80"`
	Timestamp    time.Time `json:"timestamp" gorm:"index:idx_message_project_ts"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

// Message roles
const (
	MessageRoleChat   = "chat"
	MessageRoleOpener = "opener"
)

// Sentiment classes
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// SpeakerAI is the display label for system/AI authored messages.
const SpeakerAI = "AI相談員"

// ========== Request/Response Types ==========

// AppendMessageRequest records one utterance.
type AppendMessageRequest struct {
	Speaker   string `json:"speaker"`
	Content   string `json:"content" binding:"required"`
	Sentiment string `json:"sentiment"`
}

// ReplyRequest sends a user utterance and asks for a conversational AI reply.
type ReplyRequest struct {
	Content       string `json:"content" binding:"required"`
	WithSentiment bool   `json:"with_sentiment"`
}

// SentimentSummary aggregates sentiment classes over one member's log.
type SentimentSummary struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
	Total    int `json:"total"`
}

// Response is the common HTTP response envelope.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
