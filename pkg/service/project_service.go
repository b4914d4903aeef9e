// Project lifecycle and membership
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

// ProjectService manages consultation projects and their member rosters.
type ProjectService struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewProjectService(gdb *gorm.DB) *ProjectService {
	return &ProjectService{db: gdb, logger: utils.GetLogger()}
}

// CreateProject creates a project with the caller as owner and first member.
func (s *ProjectService) CreateProject(ctx context.Context, userID string, req *db.CreateProjectRequest) (*db.Project, error) {
	var user db.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}

	project := db.Project{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Description: req.Description,
		OwnerUserID: userID,
		Status:      db.ProjectStatusActive,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		member := db.ProjectMember{
			ID:        uuid.New().String(),
			ProjectID: project.ID,
			UserID:    userID,
			Role:      db.RoleOwner,
			Name:      user.Name,
			Email:     user.Email,
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("project created", "project_id", project.ID, "owner", userID)
	return &project, nil
}

// GetProject loads one project after checking the caller's membership.
func (s *ProjectService) GetProject(ctx context.Context, projectID, userID string) (*db.Project, error) {
	if _, err := s.Membership(ctx, projectID, userID); err != nil {
		return nil, err
	}
	var project db.Project
	if err := s.db.WithContext(ctx).First(&project, "id = ?", projectID).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// Membership resolves the caller's membership row or fails with ErrForbidden.
// Every project-scoped operation goes through this check.
func (s *ProjectService) Membership(ctx context.Context, projectID, userID string) (*db.ProjectMember, error) {
	var project db.Project
	err := s.db.WithContext(ctx).First(&project, "id = ?", projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	if err != nil {
		return nil, err
	}

	var member db.ProjectMember
	err = s.db.WithContext(ctx).
		First(&member, "project_id = ? AND user_id = ?", projectID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: not a member of this project", ErrForbidden)
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// ListProjects returns every project the user belongs to, newest first.
func (s *ProjectService) ListProjects(ctx context.Context, userID string) ([]db.Project, error) {
	var projects []db.Project
	err := s.db.WithContext(ctx).
		Joins("JOIN project_members ON project_members.project_id = projects.id").
		Where("project_members.user_id = ?", userID).
		Order("projects.created_at DESC").
		Find(&projects).Error
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// UpdateProject edits title and description. Owner only.
func (s *ProjectService) UpdateProject(ctx context.Context, projectID, userID string, req *db.UpdateProjectRequest) (*db.Project, error) {
	member, err := s.Membership(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if member.Role != db.RoleOwner {
		return nil, fmt.Errorf("%w: only the owner may edit the project", ErrForbidden)
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		if *req.Title == "" {
			return nil, fmt.Errorf("%w: title must not be empty", ErrValidation)
		}
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&db.Project{}).
			Where("id = ?", projectID).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	var project db.Project
	if err := s.db.WithContext(ctx).First(&project, "id = ?", projectID).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// DeleteProject removes an empty project. Owner only. Deletion refuses with
// a conflict while dependent records remain: estates, proposals, an
// agreement, conversation messages or members besides the owner. Only the
// owner's own membership row, invitations and leftover issues cascade.
func (s *ProjectService) DeleteProject(ctx context.Context, projectID, userID string) error {
	member, err := s.Membership(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if member.Role != db.RoleOwner {
		return fmt.Errorf("%w: only the owner may delete the project", ErrForbidden)
	}

	for _, check := range []struct {
		model any
		name  string
	}{
		{&db.Estate{}, "estates"},
		{&db.Proposal{}, "proposals"},
		{&db.Agreement{}, "an agreement"},
		{&db.Message{}, "conversation messages"},
	} {
		var n int64
		if err := s.db.WithContext(ctx).Model(check.model).
			Where("project_id = ?", projectID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: project still has %s", ErrConflict, check.name)
		}
	}

	var others int64
	if err := s.db.WithContext(ctx).Model(&db.ProjectMember{}).
		Where("project_id = ? AND user_id <> ?", projectID, userID).
		Count(&others).Error; err != nil {
		return err
	}
	if others > 0 {
		return fmt.Errorf("%w: project still has other members", ErrConflict)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&db.Issue{}, &db.ProjectInvitation{}, &db.ProjectMember{},
		} {
			if err := tx.Delete(model, "project_id = ?", projectID).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&db.Project{}, "id = ?", projectID).Error
	})
}

// ListMembers returns the project roster. Caller must be a member.
func (s *ProjectService) ListMembers(ctx context.Context, projectID, userID string) ([]db.ProjectMember, error) {
	if _, err := s.Membership(ctx, projectID, userID); err != nil {
		return nil, err
	}
	var members []db.ProjectMember
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}
