// Issue lifecycle: extraction, listing, grouping
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IssueService derives per-member issue sets from conversation logs.
// Issues are private to their owner until incorporated into a proposal.
type IssueService struct {
	db          *gorm.DB
	extractor   IssueExtractor
	minMessages int
	logger      *slog.Logger
}

// NewIssueService creates a new issue service. minMessages is the extraction
// precondition (spoken utterances by the member, not counting AI turns).
func NewIssueService(gdb *gorm.DB, extractor IssueExtractor, minMessages int) *IssueService {
	if minMessages < 1 {
		minMessages = 1
	}
	return &IssueService{
		db:          gdb,
		extractor:   extractor,
		minMessages: minMessages,
		logger:      utils.GetLogger(),
	}
}

// ExtractIssues re-derives the member's issue set from their conversation
// log, replacing the prior set. Nothing is written when extraction fails, so
// a failed run never leaves a partial set behind.
func (s *IssueService) ExtractIssues(ctx context.Context, projectID, userID string) ([]db.Issue, error) {
	var messages []db.Message
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND (author_user_id = ? OR author_user_id IS NULL)", projectID, userID).
		Order("timestamp ASC").
		Find(&messages).Error; err != nil {
		return nil, err
	}

	authored := 0
	for _, m := range messages {
		if m.AuthorUserID != nil {
			authored++
		}
	}
	if authored < s.minMessages {
		return nil, fmt.Errorf("%w: %d messages recorded, %d required before extraction",
			ErrInsufficientData, authored, s.minMessages)
	}

	extracted, err := s.extractor.ExtractIssues(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if len(extracted) == 0 && authored >= 3 {
		return nil, fmt.Errorf("%w: extractor returned no issues from %d messages",
			ErrExtractionFailed, authored)
	}

	issues := make([]db.Issue, 0, len(extracted))
	for _, e := range extracted {
		classification := e.Classification
		switch classification {
		case db.ClassificationAgreed, db.ClassificationDiscussing, db.ClassificationDisagreed:
		default:
			// Tie-break policy: unclassified output defaults to discussing.
			classification = db.ClassificationDiscussing
		}
		issues = append(issues, db.Issue{
			ID:             uuid.New().String(),
			ProjectID:      projectID,
			OwnerUserID:    userID,
			Topic:          e.Topic,
			Content:        e.Content,
			Classification: classification,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ? AND owner_user_id = ?", projectID, userID).
			Delete(&db.Issue{}).Error; err != nil {
			return err
		}
		if len(issues) == 0 {
			return nil
		}
		return tx.Create(&issues).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("issue set replaced",
		"project_id", projectID, "user_id", userID, "count", len(issues))
	return issues, nil
}

// ListIssues returns the member's current issue set.
func (s *IssueService) ListIssues(ctx context.Context, projectID, userID string) ([]db.Issue, error) {
	var issues []db.Issue
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND owner_user_id = ?", projectID, userID).
		Order("created_at ASC").
		Find(&issues).Error; err != nil {
		return nil, err
	}
	return issues, nil
}

// GroupedIssues buckets the member's issues by topic for display. Issues
// without a topic land in the "unclassified" group.
func (s *IssueService) GroupedIssues(ctx context.Context, projectID, userID string) ([]db.IssueGroup, error) {
	issues, err := s.ListIssues(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}

	byTopic := map[string][]db.Issue{}
	for _, issue := range issues {
		topic := issue.Topic
		if topic == "" {
			topic = db.TopicUnclassified
		}
		byTopic[topic] = append(byTopic[topic], issue)
	}

	topics := make([]string, 0, len(byTopic))
	for topic := range byTopic {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	groups := make([]db.IssueGroup, 0, len(topics))
	for _, topic := range topics {
		groups = append(groups, db.IssueGroup{Topic: topic, Issues: byTopic[topic]})
	}
	return groups, nil
}

// UpdateIssue edits one issue in place. Only the owner may edit.
func (s *IssueService) UpdateIssue(ctx context.Context, issueID, userID string, req *db.UpdateIssueRequest) (*db.Issue, error) {
	issue, err := s.getOwned(ctx, issueID, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Topic != nil {
		updates["topic"] = *req.Topic
	}
	if req.Content != nil {
		updates["content"] = *req.Content
	}
	if req.Classification != nil {
		switch *req.Classification {
		case db.ClassificationAgreed, db.ClassificationDiscussing, db.ClassificationDisagreed:
			updates["classification"] = *req.Classification
		default:
			return nil, fmt.Errorf("%w: unknown classification %q", ErrValidation, *req.Classification)
		}
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(issue).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.getOwned(ctx, issueID, userID)
}

// DeleteIssue removes one issue from the member's set.
func (s *IssueService) DeleteIssue(ctx context.Context, issueID, userID string) error {
	issue, err := s.getOwned(ctx, issueID, userID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(issue).Error
}

func (s *IssueService) getOwned(ctx context.Context, issueID, userID string) (*db.Issue, error) {
	var issue db.Issue
	err := s.db.WithContext(ctx).First(&issue, "id = ?", issueID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: issue %s", ErrNotFound, issueID)
	}
	if err != nil {
		return nil, err
	}
	if issue.OwnerUserID != userID {
		return nil, fmt.Errorf("%w: issue belongs to another member", ErrForbidden)
	}
	return &issue, nil
}
