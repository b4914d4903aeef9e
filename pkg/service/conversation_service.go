// Conversation ingest: the append-only per-project message log
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// fallbackReply is used when the conversational responder is unavailable.
const fallbackReply = "申し訳ありません、うまくお返事できませんでした。もう一度お聞かせいただけますか？"

// ConversationService owns the append-only message log and the AI opening
// prompt. Messages are never edited or deleted.
type ConversationService struct {
	db        *gorm.DB
	responder Responder
	analyzer  SentimentAnalyzer
	logger    *slog.Logger

	// Serializes appends so per-project timestamps stay strictly increasing
	// even for same-instant writes.
	appendMu sync.Mutex
}

// NewConversationService creates a new conversation service.
func NewConversationService(gdb *gorm.DB, responder Responder, analyzer SentimentAnalyzer) *ConversationService {
	return &ConversationService{
		db:        gdb,
		responder: responder,
		analyzer:  analyzer,
		logger:    utils.GetLogger(),
	}
}

// AppendMessage persists one utterance. It never rejects on business
// grounds; only malformed input fails, with ErrValidation.
func (s *ConversationService) AppendMessage(ctx context.Context, projectID string, authorUserID *string, speaker, content, sentiment string) (*db.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: message content is empty", ErrValidation)
	}
	switch sentiment {
	case "", db.SentimentPositive, db.SentimentNeutral, db.SentimentNegative:
	default:
		return nil, fmt.Errorf("%w: unknown sentiment %q", ErrValidation, sentiment)
	}
	if speaker == "" {
		speaker = db.SpeakerAI
	}

	msg := &db.Message{
		ID:           uuid.New().String(),
		ProjectID:    projectID,
		AuthorUserID: authorUserID,
		Speaker:      speaker,
		Content:      content,
		Sentiment:    sentiment,
		Role:         db.MessageRoleChat,
	}
	if err := s.append(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// append assigns a per-project monotonic timestamp and inserts the row.
func (s *ConversationService) append(ctx context.Context, msg *db.Message) error {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last db.Message
		ts := time.Now().UTC()
		err := tx.Where("project_id = ?", msg.ProjectID).
			Order("timestamp DESC").
			First(&last).Error
		if err == nil && !ts.After(last.Timestamp) {
			ts = last.Timestamp.Add(time.Millisecond)
		} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		msg.Timestamp = ts
		return tx.Create(msg).Error
	})
}

// ListMessages returns the project log in append order. When filterUserID is
// set, only that user's own messages plus system/AI messages are returned;
// this is the privacy boundary between members' conversations.
func (s *ConversationService) ListMessages(ctx context.Context, projectID string, filterUserID *string) ([]db.Message, error) {
	query := s.db.WithContext(ctx).Where("project_id = ?", projectID)
	if filterUserID != nil {
		query = query.Where("author_user_id = ? OR author_user_id IS NULL", *filterUserID)
	}
	var messages []db.Message
	if err := query.Order("timestamp ASC").Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// LatestMessage returns the most recent message for summary rendering.
func (s *ConversationService) LatestMessage(ctx context.Context, projectID string) (*db.Message, error) {
	var msg db.Message
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("timestamp DESC").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no messages", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// EnsureOpener emits the AI opening prompt for one member exactly once.
// The uniqueness lives in the database (opener_key), not in any client-local
// flag, so concurrent or repeated entries collapse onto a single row. The
// second return reports whether this call created the opener.
func (s *ConversationService) EnsureOpener(ctx context.Context, project *db.Project, userID string) (*db.Message, bool, error) {
	key := project.ID + ":" + userID

	msg := &db.Message{
		ID:        uuid.New().String(),
		ProjectID: project.ID,
		Speaker:   db.SpeakerAI,
		Content:   openingGreeting(project),
		Sentiment: db.SentimentNeutral,
		Role:      db.MessageRoleOpener,
		OpenerKey: &key,
	}
	err := s.append(ctx, msg)
	if err == nil {
		return msg, true, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, err
	}

	var existing db.Message
	if err := s.db.WithContext(ctx).Where("opener_key = ?", key).First(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

// openingGreeting varies the opener with the consultation title.
func openingGreeting(project *db.Project) string {
	title := project.Title
	if title == "" {
		title = "相続に関するご相談"
	}
	switch {
	case strings.Contains(title, "相続"):
		return fmt.Sprintf("%sについてお聞かせください。実家の処分方法や、資産分割でお考えのことはありますか？", title)
	case strings.Contains(title, "実家"):
		return fmt.Sprintf("%sについてお聞かせください。売却をお考えですか、それともどなたかが住み続けることをお考えですか？", title)
	case strings.Contains(title, "遺産"):
		return fmt.Sprintf("%sについてお聞かせください。特に不動産や預貯金の分け方について気になることはありますか？", title)
	default:
		return fmt.Sprintf("%sについて、お手伝いさせていただきます。まずは現在のお考えや状況について教えていただけますか？", title)
	}
}

// Reply appends the user's utterance and the AI reply to it. When the
// responder fails, a canned fallback is stored instead and the degradation
// is logged distinctly from success.
func (s *ConversationService) Reply(ctx context.Context, projectID, userID, speaker, content string, withSentiment bool) (*db.Message, *db.Message, error) {
	sentiment := ""
	if withSentiment && s.analyzer != nil {
		result, err := s.analyzer.Analyze(ctx, content, "")
		if err != nil {
			// Classification is best-effort; ingest must not fail on it.
			s.logger.Warn("sentiment analysis failed", "project_id", projectID, "error", err)
		} else {
			sentiment = SentimentClass(result)
		}
	}

	userMsg, err := s.AppendMessage(ctx, projectID, &userID, speaker, content, sentiment)
	if err != nil {
		return nil, nil, err
	}

	history, err := s.ListMessages(ctx, projectID, &userID)
	if err != nil {
		return nil, nil, err
	}

	reply, err := s.responder.Reply(ctx, history, content)
	if err != nil {
		s.logger.Warn("responder failed, using fallback reply",
			"project_id", projectID, "user_id", userID, "fallback", true, "error", err)
		reply = fallbackReply
	}

	aiMsg, err := s.AppendMessage(ctx, projectID, nil, db.SpeakerAI, reply, "")
	if err != nil {
		return nil, nil, err
	}
	return userMsg, aiMsg, nil
}

// SentimentSummary aggregates sentiment classes over one member's log.
func (s *ConversationService) SentimentSummary(ctx context.Context, projectID, userID string) (*db.SentimentSummary, error) {
	var messages []db.Message
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND author_user_id = ?", projectID, userID).
		Find(&messages).Error; err != nil {
		return nil, err
	}

	summary := &db.SentimentSummary{}
	for _, m := range messages {
		switch m.Sentiment {
		case db.SentimentPositive:
			summary.Positive++
		case db.SentimentNegative:
			summary.Negative++
		default:
			summary.Neutral++
		}
		summary.Total++
	}
	return summary, nil
}
