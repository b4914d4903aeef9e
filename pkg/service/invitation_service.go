// Invitation tokens and heir onboarding
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// invitationTTL is how long an invitation token stays redeemable.
const invitationTTL = 168 * time.Hour

// InvitationService issues and redeems single-use membership invitations.
type InvitationService struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewInvitationService(gdb *gorm.DB) *InvitationService {
	return &InvitationService{db: gdb, logger: utils.GetLogger()}
}

// CreateInvitation issues a token inviting an heir by email. Owner only.
func (s *InvitationService) CreateInvitation(ctx context.Context, userID string, req *db.CreateInvitationRequest) (*db.ProjectInvitation, error) {
	if req.Email == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: email and name are required", ErrValidation)
	}

	var member db.ProjectMember
	err := s.db.WithContext(ctx).
		First(&member, "project_id = ? AND user_id = ?", req.ProjectID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: not a member of this project", ErrForbidden)
	}
	if err != nil {
		return nil, err
	}
	if member.Role != db.RoleOwner {
		return nil, fmt.Errorf("%w: only the owner may invite members", ErrForbidden)
	}

	role := req.Role
	if role == "" {
		role = db.RoleMember
	}
	if role != db.RoleMember && role != db.RoleOwner {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	token, err := newInvitationToken()
	if err != nil {
		return nil, err
	}
	invitation := db.ProjectInvitation{
		ID:        uuid.New().String(),
		ProjectID: req.ProjectID,
		Email:     req.Email,
		Token:     token,
		Name:      req.Name,
		Relation:  req.Relation,
		Role:      role,
		ExpiresAt: time.Now().Add(invitationTTL),
	}
	if err := s.db.WithContext(ctx).Create(&invitation).Error; err != nil {
		return nil, err
	}

	s.logger.Info("invitation created",
		"project_id", req.ProjectID, "invitation_id", invitation.ID)
	return &invitation, nil
}

func newInvitationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Preview resolves a token to what the invitee sees before accepting.
// Expired and used tokens still preview; only redemption is gated.
func (s *InvitationService) Preview(ctx context.Context, token string) (*db.InvitationPreview, error) {
	invitation, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	var project db.Project
	if err := s.db.WithContext(ctx).First(&project, "id = ?", invitation.ProjectID).Error; err != nil {
		return nil, err
	}
	return &db.InvitationPreview{
		ProjectID:    invitation.ProjectID,
		ProjectTitle: project.Title,
		InviteeEmail: invitation.Email,
		InviteeName:  invitation.Name,
		Relation:     invitation.Relation,
		Token:        token,
	}, nil
}

// Complete redeems a token for the authenticated user. The user's email must
// match the invitee email. Redeeming an already-used token by the same user
// returns the existing membership, so retried accepts are harmless.
func (s *InvitationService) Complete(ctx context.Context, token string, user *db.User) (*db.ProjectMember, error) {
	invitation, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if time.Now().After(invitation.ExpiresAt) {
		return nil, fmt.Errorf("%w: invitation expired at %s", ErrTokenExpired, invitation.ExpiresAt.Format(time.RFC3339))
	}
	if user.Email != invitation.Email {
		return nil, fmt.Errorf("%w: invitation was issued to a different email", ErrForbidden)
	}

	if invitation.Used {
		var member db.ProjectMember
		err := s.db.WithContext(ctx).
			First(&member, "project_id = ? AND user_id = ?", invitation.ProjectID, user.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: invitation already redeemed", ErrConflict)
		}
		if err != nil {
			return nil, err
		}
		return &member, nil
	}

	var member db.ProjectMember
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member = db.ProjectMember{
			ID:        uuid.New().String(),
			ProjectID: invitation.ProjectID,
			UserID:    user.ID,
			Role:      invitation.Role,
			Name:      invitation.Name,
			Relation:  invitation.Relation,
			Email:     invitation.Email,
		}
		if err := tx.Create(&member).Error; err != nil {
			if isUniqueViolation(err) {
				// Already a member through another route; reuse that row.
				return tx.First(&member, "project_id = ? AND user_id = ?",
					invitation.ProjectID, user.ID).Error
			}
			return err
		}
		now := time.Now()
		return tx.Model(&db.ProjectInvitation{}).
			Where("id = ?", invitation.ID).
			Updates(map[string]interface{}{"used": true, "used_at": &now}).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invitation redeemed",
		"project_id", invitation.ProjectID, "user_id", user.ID)
	return &member, nil
}

// ListInvitations returns a project's invitations. Owner only.
func (s *InvitationService) ListInvitations(ctx context.Context, projectID, userID string) ([]db.ProjectInvitation, error) {
	var member db.ProjectMember
	err := s.db.WithContext(ctx).
		First(&member, "project_id = ? AND user_id = ?", projectID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: not a member of this project", ErrForbidden)
	}
	if err != nil {
		return nil, err
	}
	if member.Role != db.RoleOwner {
		return nil, fmt.Errorf("%w: only the owner may list invitations", ErrForbidden)
	}

	var invitations []db.ProjectInvitation
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&invitations).Error; err != nil {
		return nil, err
	}
	return invitations, nil
}

func (s *InvitationService) byToken(ctx context.Context, token string) (*db.ProjectInvitation, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrValidation)
	}
	var invitation db.ProjectInvitation
	err := s.db.WithContext(ctx).First(&invitation, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: unknown invitation token", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}
