// Workflow controller: phase entry, view refresh, long-operation guarding
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/utils"
	"gorm.io/gorm"
)

// flightGuard serializes long AI operations per (project, user, kind).
// Entries self-expire after the TTL so a crashed request cannot wedge the
// key forever.
type flightGuard struct {
	mu       sync.Mutex
	ttl      time.Duration
	inflight map[string]time.Time
}

func newFlightGuard(ttl time.Duration) *flightGuard {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &flightGuard{ttl: ttl, inflight: map[string]time.Time{}}
}

// begin claims the key or reports it busy.
func (g *flightGuard) begin(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if started, ok := g.inflight[key]; ok && time.Since(started) < g.ttl {
		return false
	}
	g.inflight[key] = time.Now()
	return true
}

func (g *flightGuard) end(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, key)
}

// ViewSnapshot is everything one member's screen needs, read in a single
// transaction so the pieces are mutually consistent.
type ViewSnapshot struct {
	Project    *db.Project         `json:"project"`
	Members    []db.ProjectMember  `json:"members"`
	Messages   []db.Message        `json:"messages"`
	Issues     []db.Issue          `json:"issues"`
	Proposals  []db.Proposal       `json:"proposals"`
	Agreement  *db.Agreement       `json:"agreement,omitempty"`
	Signatures []db.Signature      `json:"signatures,omitempty"`
	Progress   *db.SigningProgress `json:"progress,omitempty"`
}

// WorkflowService drives the negotiation phases, delegating to the stage
// services and guarding the expensive AI operations against double-submits.
type WorkflowService struct {
	db           *gorm.DB
	projects     *ProjectService
	conversation *ConversationService
	issues       *IssueService
	proposals    *ProposalService
	agreements   *AgreementService
	signatures   *SignatureService
	guard        *flightGuard
	logger       *slog.Logger
}

func NewWorkflowService(
	gdb *gorm.DB,
	projects *ProjectService,
	conversation *ConversationService,
	issues *IssueService,
	proposals *ProposalService,
	agreements *AgreementService,
	signatures *SignatureService,
	guardTTL time.Duration,
) *WorkflowService {
	return &WorkflowService{
		db:           gdb,
		projects:     projects,
		conversation: conversation,
		issues:       issues,
		proposals:    proposals,
		agreements:   agreements,
		signatures:   signatures,
		guard:        newFlightGuard(guardTTL),
		logger:       utils.GetLogger(),
	}
}

// EnterNegotiation opens the conversation phase for a member. The first
// entry seeds the AI greeting; later entries, including concurrent ones,
// observe the same single opener.
func (s *WorkflowService) EnterNegotiation(ctx context.Context, projectID, userID string) (*db.Message, bool, error) {
	if _, err := s.projects.Membership(ctx, projectID, userID); err != nil {
		return nil, false, err
	}
	var project db.Project
	if err := s.db.WithContext(ctx).First(&project, "id = ?", projectID).Error; err != nil {
		return nil, false, err
	}
	return s.conversation.EnsureOpener(ctx, &project, userID)
}

// RefreshView assembles the member's full project view in one transaction.
func (s *WorkflowService) RefreshView(ctx context.Context, projectID, userID string) (*ViewSnapshot, error) {
	if _, err := s.projects.Membership(ctx, projectID, userID); err != nil {
		return nil, err
	}

	snap := &ViewSnapshot{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project db.Project
		if err := tx.First(&project, "id = ?", projectID).Error; err != nil {
			return err
		}
		snap.Project = &project

		if err := tx.Where("project_id = ?", projectID).
			Order("created_at ASC").Find(&snap.Members).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ? AND (author_user_id = ? OR author_user_id IS NULL)", projectID, userID).
			Order("timestamp ASC").Find(&snap.Messages).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ? AND owner_user_id = ?", projectID, userID).
			Order("created_at ASC").Find(&snap.Issues).Error; err != nil {
			return err
		}
		if err := tx.Preload("Points").
			Where("project_id = ? AND owner_user_id = ?", projectID, userID).
			Order("seq DESC").Find(&snap.Proposals).Error; err != nil {
			return err
		}

		var agreement db.Agreement
		err := tx.First(&agreement, "project_id = ?", projectID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		snap.Agreement = &agreement
		if err := tx.Where("agreement_id = ?", agreement.ID).
			Order("created_at ASC").Find(&snap.Signatures).Error; err != nil {
			return err
		}

		// Counted inside the transaction so the progress numbers cannot
		// drift from the signature rows in the same snapshot.
		progress, err := signingProgress(tx, &agreement)
		if err != nil {
			return err
		}
		snap.Progress = progress
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ExtractIssues runs issue extraction, at most once in flight per member.
func (s *WorkflowService) ExtractIssues(ctx context.Context, projectID, userID string) ([]db.Issue, error) {
	if _, err := s.projects.Membership(ctx, projectID, userID); err != nil {
		return nil, err
	}
	key := flightKey(projectID, userID, "extract")
	if !s.guard.begin(key) {
		return nil, fmt.Errorf("%w: issue extraction already in progress", ErrBusy)
	}
	defer s.guard.end(key)
	return s.issues.ExtractIssues(ctx, projectID, userID)
}

// GenerateProposals runs proposal generation, at most once in flight per
// member.
func (s *WorkflowService) GenerateProposals(ctx context.Context, projectID, userID string) ([]db.Proposal, error) {
	if _, err := s.projects.Membership(ctx, projectID, userID); err != nil {
		return nil, err
	}
	key := flightKey(projectID, userID, "generate")
	if !s.guard.begin(key) {
		return nil, fmt.Errorf("%w: proposal generation already in progress", ErrBusy)
	}
	defer s.guard.end(key)
	return s.proposals.GenerateProposals(ctx, projectID, userID)
}

// DraftAgreement drafts the project agreement from a chosen proposal, at
// most once in flight per member.
func (s *WorkflowService) DraftAgreement(ctx context.Context, projectID, userID, proposalID string) (*db.Agreement, error) {
	if _, err := s.projects.Membership(ctx, projectID, userID); err != nil {
		return nil, err
	}
	key := flightKey(projectID, userID, "draft")
	if !s.guard.begin(key) {
		return nil, fmt.Errorf("%w: agreement drafting already in progress", ErrBusy)
	}
	defer s.guard.end(key)
	return s.agreements.DraftFromProposal(ctx, projectID, proposalID)
}

func flightKey(projectID, userID, kind string) string {
	return projectID + ":" + userID + ":" + kind
}
