// Proposal generation and curation
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

// maxProposalsPerRun caps how many proposals one generation run may persist.
const maxProposalsPerRun = 3

// ProposalService generates and curates division proposals for one member.
type ProposalService struct {
	db         *gorm.DB
	generator  ProposalGenerator
	comparator ProposalComparator
	logger     *slog.Logger
}

func NewProposalService(gdb *gorm.DB, generator ProposalGenerator, comparator ProposalComparator) *ProposalService {
	return &ProposalService{db: gdb, generator: generator, comparator: comparator, logger: utils.GetLogger()}
}

// GenerateProposals runs the generation collaborator against the member's
// issue set and appends the results. Prior proposals are kept; newest come
// first in listings. At most three proposals are persisted per run, the
// highest supported ones when the generator returns more.
func (s *ProposalService) GenerateProposals(ctx context.Context, projectID, userID string) ([]db.Proposal, error) {
	var issues []db.Issue
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND owner_user_id = ?", projectID, userID).
		Find(&issues).Error; err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, fmt.Errorf("%w: no issues extracted yet, run extraction first", ErrInsufficientData)
	}

	var estates []db.Estate
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Find(&estates).Error; err != nil {
		return nil, err
	}

	generated, err := s.generator.GenerateProposals(ctx, issues, estates)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(generated) == 0 {
		return nil, fmt.Errorf("%w: generator returned no proposals", ErrGenerationFailed)
	}

	sort.SliceStable(generated, func(i, j int) bool {
		return generated[i].SupportRate > generated[j].SupportRate
	})
	if len(generated) > maxProposalsPerRun {
		generated = generated[:maxProposalsPerRun]
	}

	proposals := make([]db.Proposal, 0, len(generated))
	for _, g := range generated {
		rate := g.SupportRate
		if rate < 0 {
			rate = 0
		}
		if rate > 100 {
			rate = 100
		}
		p := db.Proposal{
			ID:          uuid.New().String(),
			ProjectID:   projectID,
			OwnerUserID: userID,
			Title:       g.Title,
			Content:     g.Content,
			SupportRate: rate,
		}
		for _, pt := range g.Points {
			if !validPointType(pt.Type) {
				continue
			}
			p.Points = append(p.Points, db.ProposalPoint{
				ID:         uuid.New().String(),
				ProposalID: p.ID,
				Type:       pt.Type,
				Content:    pt.Content,
			})
		}
		proposals = append(proposals, p)
	}

	// One transaction so a mid-run failure persists nothing. Seq carries
	// the global generation order used for "newest first" listings.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lastSeq int64
		if err := tx.Model(&db.Proposal{}).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&lastSeq).Error; err != nil {
			return err
		}
		for i := range proposals {
			proposals[i].Seq = lastSeq + int64(i) + 1
			if err := tx.Create(&proposals[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("proposals generated",
		"project_id", projectID, "user_id", userID, "count", len(proposals))
	return s.ListProposals(ctx, projectID, userID)
}

// ListProposals returns the member's proposals with points, newest first.
func (s *ProposalService) ListProposals(ctx context.Context, projectID, userID string) ([]db.Proposal, error) {
	var proposals []db.Proposal
	if err := s.db.WithContext(ctx).
		Preload("Points").
		Where("project_id = ? AND owner_user_id = ?", projectID, userID).
		Order("seq DESC").
		Find(&proposals).Error; err != nil {
		return nil, err
	}
	return proposals, nil
}

// GetProposal loads one proposal with its points. Ownership is enforced.
func (s *ProposalService) GetProposal(ctx context.Context, proposalID, userID string) (*db.Proposal, error) {
	var proposal db.Proposal
	err := s.db.WithContext(ctx).Preload("Points").First(&proposal, "id = ?", proposalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: proposal %s", ErrNotFound, proposalID)
	}
	if err != nil {
		return nil, err
	}
	if proposal.OwnerUserID != userID {
		return nil, fmt.Errorf("%w: proposal belongs to another member", ErrForbidden)
	}
	return &proposal, nil
}

// UpdateProposal applies a partial edit. A non-nil point set is reconciled
// against storage by (type, content) identity: repeating the same edit set is
// a no-op. Duplicate entries within the edit set collapse to one point.
func (s *ProposalService) UpdateProposal(ctx context.Context, proposalID, userID string, req *db.UpdateProposalRequest) (*db.Proposal, error) {
	proposal, err := s.GetProposal(ctx, proposalID, userID)
	if err != nil {
		return nil, err
	}

	for _, pt := range req.Points {
		if !validPointType(pt.Type) {
			return nil, fmt.Errorf("%w: unknown point type %q", ErrValidation, pt.Type)
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{}
		if req.Title != nil {
			updates["title"] = *req.Title
		}
		if req.Content != nil {
			updates["content"] = *req.Content
		}
		if req.SupportRate != nil {
			rate := *req.SupportRate
			if rate < 0 || rate > 100 {
				return fmt.Errorf("%w: support rate %d out of range", ErrValidation, rate)
			}
			updates["support_rate"] = rate
		}
		if len(updates) > 0 {
			if err := tx.Model(&db.Proposal{}).Where("id = ?", proposalID).Updates(updates).Error; err != nil {
				return err
			}
		}
		if req.Points != nil {
			return reconcilePoints(tx, proposal, req.Points)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetProposal(ctx, proposalID, userID)
}

// reconcilePoints diffs the stored point set against the desired set keyed by
// (type, content). Survivors keep their rows; the rest are inserted or
// deleted. Point order is not significant.
func reconcilePoints(tx *gorm.DB, proposal *db.Proposal, desired []db.PointEdit) error {
	type pointKey struct{ Type, Content string }

	want := map[pointKey]struct{}{}
	for _, pt := range desired {
		want[pointKey{pt.Type, pt.Content}] = struct{}{}
	}

	have := map[pointKey]string{} // key -> row id
	for _, pt := range proposal.Points {
		have[pointKey{pt.Type, pt.Content}] = pt.ID
	}

	for key, id := range have {
		if _, keep := want[key]; !keep {
			if err := tx.Delete(&db.ProposalPoint{}, "id = ?", id).Error; err != nil {
				return err
			}
		}
	}
	for key := range want {
		if _, exists := have[key]; exists {
			continue
		}
		point := db.ProposalPoint{
			ID:         uuid.New().String(),
			ProposalID: proposal.ID,
			Type:       key.Type,
			Content:    key.Content,
		}
		if err := tx.Create(&point).Error; err != nil {
			return err
		}
	}
	return nil
}

// CompareProposals runs the comparison collaborator over the member's
// proposals, or the named subset. At least two proposals are needed for a
// comparison to mean anything.
func (s *ProposalService) CompareProposals(ctx context.Context, projectID, userID string, req *db.CompareProposalsRequest) (*ProposalComparison, error) {
	proposals, err := s.ListProposals(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if len(req.ProposalIDs) > 0 {
		keep := map[string]bool{}
		for _, id := range req.ProposalIDs {
			keep[id] = true
		}
		filtered := proposals[:0]
		for _, p := range proposals {
			if keep[p.ID] {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) != len(keep) {
			return nil, fmt.Errorf("%w: comparison names a proposal that is not yours", ErrNotFound)
		}
		proposals = filtered
	}
	if len(proposals) < 2 {
		return nil, fmt.Errorf("%w: at least two proposals are needed for comparison", ErrInsufficientData)
	}

	comparison, err := s.comparator.CompareProposals(ctx, proposals, req.Criteria)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	s.logger.Info("proposals compared",
		"project_id", projectID, "user_id", userID, "count", len(proposals))
	return comparison, nil
}

// ToggleFavorite flips the favorite flag and returns the updated proposal.
func (s *ProposalService) ToggleFavorite(ctx context.Context, proposalID, userID string) (*db.Proposal, error) {
	proposal, err := s.GetProposal(ctx, proposalID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(proposal).
		Update("is_favorite", !proposal.IsFavorite).Error; err != nil {
		return nil, err
	}
	proposal.IsFavorite = !proposal.IsFavorite
	return proposal, nil
}

// DeleteProposal removes a proposal and its points. A proposal referenced by
// the project's agreement cannot be removed while the reference stands.
func (s *ProposalService) DeleteProposal(ctx context.Context, proposalID, userID string) error {
	proposal, err := s.GetProposal(ctx, proposalID, userID)
	if err != nil {
		return err
	}

	// The reference check lives in the delete transaction so a draft landing
	// concurrently cannot slip in between the check and the delete.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Model(&db.Agreement{}).
			Where("proposal_id = ?", proposalID).
			Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: proposal is referenced by the project agreement", ErrConflict)
		}
		if err := tx.Delete(&db.ProposalPoint{}, "proposal_id = ?", proposalID).Error; err != nil {
			return err
		}
		return tx.Delete(proposal).Error
	})
}

func validPointType(t string) bool {
	switch t {
	case db.PointMerit, db.PointDemerit, db.PointCost, db.PointEffort:
		return true
	}
	return false
}
