// Signature collection and consensus evaluation
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SignatureService records member signatures on an agreement and derives the
// project's consensus state from them.
type SignatureService struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewSignatureService(gdb *gorm.DB) *SignatureService {
	return &SignatureService{db: gdb, logger: utils.GetLogger()}
}

// Sign records one member's consent. The typed value must exactly match the
// member's registered name. Signing twice returns ErrAlreadySigned; the
// composite unique index makes concurrent duplicates race onto one row.
// When the last member signs, the agreement and project both complete.
func (s *SignatureService) Sign(ctx context.Context, agreementID, userID string, req *db.SignRequest) (*db.Signature, error) {
	agreement, err := s.getAgreement(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	member, err := s.requireMember(ctx, agreement.ProjectID, userID)
	if err != nil {
		return nil, err
	}

	if req.Value != member.Name {
		return nil, fmt.Errorf("%w: signature must match registered name %q", ErrNameMismatch, member.Name)
	}

	now := time.Now()
	signature := db.Signature{
		ID:          uuid.New().String(),
		AgreementID: agreementID,
		UserID:      userID,
		Value:       req.Value,
		Status:      db.SignatureStatusSigned,
		SignedAt:    &now,
	}
	if err := s.db.WithContext(ctx).Create(&signature).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: member has already signed", ErrAlreadySigned)
		}
		return nil, err
	}

	// Completion is re-evaluated against the current roster on every sign,
	// not cached: a member added after earlier signs reopens the count.
	// The signature row is already durable at this point, so a sync failure
	// must not surface as a failed sign; the next sign or progress read
	// reconciles the derived status.
	if err := s.syncConsensus(ctx, agreement); err != nil {
		s.logger.Warn("consensus sync failed after signing",
			"agreement_id", agreementID, "user_id", userID, "error", err)
	}

	s.logger.Info("signature recorded",
		"agreement_id", agreementID, "user_id", userID)
	return &signature, nil
}

func (s *SignatureService) getAgreement(ctx context.Context, agreementID string) (*db.Agreement, error) {
	var agreement db.Agreement
	err := s.db.WithContext(ctx).First(&agreement, "id = ?", agreementID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: agreement %s", ErrNotFound, agreementID)
	}
	if err != nil {
		return nil, err
	}
	return &agreement, nil
}

func (s *SignatureService) requireMember(ctx context.Context, projectID, userID string) (*db.ProjectMember, error) {
	var member db.ProjectMember
	err := s.db.WithContext(ctx).
		First(&member, "project_id = ? AND user_id = ?", projectID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: not a member of this project", ErrForbidden)
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (s *SignatureService) syncConsensus(ctx context.Context, agreement *db.Agreement) error {
	complete, err := s.IsComplete(ctx, agreement.ID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		status := db.AgreementStatusSigning
		if complete {
			status = db.AgreementStatusSigned
		}
		if err := tx.Model(&db.Agreement{}).
			Where("id = ?", agreement.ID).
			Update("status", status).Error; err != nil {
			return err
		}
		if !complete {
			return nil
		}
		return tx.Model(&db.Project{}).
			Where("id = ?", agreement.ProjectID).
			Update("status", db.ProjectStatusCompleted).Error
	})
}

// ListSignatures returns all signatures recorded on an agreement. The roster
// names it exposes are project-internal, so the caller must be a member.
func (s *SignatureService) ListSignatures(ctx context.Context, agreementID, userID string) ([]db.Signature, error) {
	agreement, err := s.getAgreement(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, agreement.ProjectID, userID); err != nil {
		return nil, err
	}

	var signatures []db.Signature
	if err := s.db.WithContext(ctx).
		Where("agreement_id = ?", agreementID).
		Order("created_at ASC").
		Find(&signatures).Error; err != nil {
		return nil, err
	}
	return signatures, nil
}

// IsComplete reports whether every current project member has a signed
// signature on the agreement. Computed fresh from the roster each call.
func (s *SignatureService) IsComplete(ctx context.Context, agreementID string) (bool, error) {
	agreement, err := s.getAgreement(ctx, agreementID)
	if err != nil {
		return false, err
	}
	signed, total, err := signatureCounts(s.db.WithContext(ctx), agreement)
	if err != nil {
		return false, err
	}
	return total > 0 && signed >= total, nil
}

// Progress returns the consensus view for an agreement to one of the
// project's members.
func (s *SignatureService) Progress(ctx context.Context, agreementID, userID string) (*db.SigningProgress, error) {
	agreement, err := s.getAgreement(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, agreement.ProjectID, userID); err != nil {
		return nil, err
	}
	return signingProgress(s.db.WithContext(ctx), agreement)
}

// signingProgress derives the consensus view using the given session, so a
// caller inside a transaction sees counts consistent with its other reads.
func signingProgress(dbh *gorm.DB, agreement *db.Agreement) (*db.SigningProgress, error) {
	signed, total, err := signatureCounts(dbh, agreement)
	if err != nil {
		return nil, err
	}
	return &db.SigningProgress{
		AgreementID: agreement.ID,
		Signed:      signed,
		Total:       total,
		Complete:    total > 0 && signed >= total,
	}, nil
}

// signatureCounts tallies signed signatures belonging to current members
// only, so a departed member's stale signature never counts toward consensus.
func signatureCounts(dbh *gorm.DB, agreement *db.Agreement) (signed, total int, err error) {
	var members []db.ProjectMember
	if err := dbh.
		Where("project_id = ?", agreement.ProjectID).
		Find(&members).Error; err != nil {
		return 0, 0, err
	}

	var signatures []db.Signature
	if err := dbh.
		Where("agreement_id = ? AND status = ?", agreement.ID, db.SignatureStatusSigned).
		Find(&signatures).Error; err != nil {
		return 0, 0, err
	}

	signedBy := map[string]bool{}
	for _, sig := range signatures {
		signedBy[sig.UserID] = true
	}
	for _, m := range members {
		if signedBy[m.UserID] {
			signed++
		}
	}
	return signed, len(members), nil
}
