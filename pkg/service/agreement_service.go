// Agreement drafting and editing
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AgreementService maintains the single agreement document per project.
type AgreementService struct {
	db      *gorm.DB
	drafter AgreementDrafter
	logger  *slog.Logger
}

func NewAgreementService(gdb *gorm.DB, drafter AgreementDrafter) *AgreementService {
	return &AgreementService{db: gdb, drafter: drafter, logger: utils.GetLogger()}
}

// DraftFromProposal synthesizes the agreement document from the chosen
// proposal. A project holds at most one agreement: redrafting overwrites
// the existing row in place and the chosen proposal becomes the project's
// selected proposal. Existing signatures are dropped, the document changed.
func (s *AgreementService) DraftFromProposal(ctx context.Context, projectID, proposalID string) (*db.Agreement, error) {
	var project db.Project
	err := s.db.WithContext(ctx).First(&project, "id = ?", projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	if err != nil {
		return nil, err
	}

	var proposal db.Proposal
	err = s.db.WithContext(ctx).First(&proposal, "id = ? AND project_id = ?", proposalID, projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: proposal %s", ErrNotFound, proposalID)
	}
	if err != nil {
		return nil, err
	}

	drafted, err := s.drafter.DraftAgreement(ctx, &project, &proposal)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	var agreement db.Agreement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&agreement, "project_id = ?", projectID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			agreement = db.Agreement{
				ID:         uuid.New().String(),
				ProjectID:  projectID,
				ProposalID: &proposal.ID,
				Title:      drafted.Title,
				Content:    drafted.Content,
				Status:     db.AgreementStatusDraft,
			}
			if err := tx.Create(&agreement).Error; err != nil {
				if isUniqueViolation(err) {
					// Lost the race to another drafter; their document stands.
					return tx.First(&agreement, "project_id = ?", projectID).Error
				}
				return err
			}
		case err != nil:
			return err
		default:
			if err := tx.Delete(&db.Signature{}, "agreement_id = ?", agreement.ID).Error; err != nil {
				return err
			}
			agreement.ProposalID = &proposal.ID
			agreement.Title = drafted.Title
			agreement.Content = drafted.Content
			agreement.Status = db.AgreementStatusDraft
			if err := tx.Save(&agreement).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&db.Proposal{}).
			Where("project_id = ?", projectID).
			Update("is_selected", false).Error; err != nil {
			return err
		}
		return tx.Model(&db.Proposal{}).
			Where("id = ?", proposal.ID).
			Update("is_selected", true).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("agreement drafted",
		"project_id", projectID, "proposal_id", proposalID, "agreement_id", agreement.ID)
	return &agreement, nil
}

// GetByProject loads the project's agreement, if drafted.
func (s *AgreementService) GetByProject(ctx context.Context, projectID string) (*db.Agreement, error) {
	var agreement db.Agreement
	err := s.db.WithContext(ctx).First(&agreement, "project_id = ?", projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no agreement drafted for project %s", ErrNotFound, projectID)
	}
	if err != nil {
		return nil, err
	}
	return &agreement, nil
}

// UpdateContent edits the agreement text directly. Editing after signatures
// exist is allowed but flagged: collected consent refers to the previous
// wording, so the caller should surface the stale-consent condition.
func (s *AgreementService) UpdateContent(ctx context.Context, projectID string, req *db.UpdateAgreementRequest) (*db.Agreement, bool, error) {
	agreement, err := s.GetByProject(ctx, projectID)
	if err != nil {
		return nil, false, err
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Content != nil {
		updates["content"] = *req.Content
	}
	if len(updates) == 0 {
		return agreement, false, nil
	}

	var signed int64
	if err := s.db.WithContext(ctx).Model(&db.Signature{}).
		Where("agreement_id = ? AND status = ?", agreement.ID, db.SignatureStatusSigned).
		Count(&signed).Error; err != nil {
		return nil, false, err
	}
	consentStale := signed > 0
	if consentStale {
		s.logger.Warn("agreement edited after signatures collected",
			"project_id", projectID, "agreement_id", agreement.ID, "signed", signed)
	}

	if err := s.db.WithContext(ctx).Model(agreement).Updates(updates).Error; err != nil {
		return nil, false, err
	}

	updated, err := s.GetByProject(ctx, projectID)
	if err != nil {
		return nil, false, err
	}
	return updated, consentStale, nil
}
