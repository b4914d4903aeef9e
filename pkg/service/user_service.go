// Local user projection of external identities
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

// UserService maintains local rows for identity-provider accounts.
// Registration is idempotent on both auth subject and email.
type UserService struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewUserService(gdb *gorm.DB) *UserService {
	return &UserService{db: gdb, logger: utils.GetLogger()}
}

// RegisterUser finds or creates the local row for an authenticated account.
// Repeated sign-ups with the same auth subject or email return the existing
// row unchanged.
func (s *UserService) RegisterUser(ctx context.Context, req *db.CreateUserRequest) (*db.User, error) {
	if req.Email == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: email and name are required", ErrValidation)
	}

	if req.AuthUID != nil {
		var existing db.User
		err := s.db.WithContext(ctx).First(&existing, "auth_uid = ?", *req.AuthUID).Error
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	var existing db.User
	err := s.db.WithContext(ctx).First(&existing, "email = ?", req.Email).Error
	if err == nil {
		// Known email, possibly from an invitation flow; attach the auth
		// subject if the row has none yet.
		if req.AuthUID != nil && existing.AuthUID == nil {
			if err := s.db.WithContext(ctx).Model(&existing).
				Update("auth_uid", *req.AuthUID).Error; err != nil {
				return nil, err
			}
			existing.AuthUID = req.AuthUID
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user := db.User{
		ID:      uuid.New().String(),
		Email:   req.Email,
		Name:    req.Name,
		AuthUID: req.AuthUID,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			// Concurrent registration of the same account.
			var raced db.User
			if rerr := s.db.WithContext(ctx).First(&raced, "email = ?", req.Email).Error; rerr == nil {
				return &raced, nil
			}
			return nil, fmt.Errorf("%w: account already registered", ErrConflict)
		}
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return &user, nil
}

// GetUser loads one user by ID.
func (s *UserService) GetUser(ctx context.Context, userID string) (*db.User, error) {
	var user db.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail loads one user by email.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*db.User, error) {
	var user db.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no user with email %s", ErrNotFound, email)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
