// Estate reference data
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aigree/aigree/pkg/db"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EstateService manages the property reference data fed to proposal
// generation.
type EstateService struct {
	db *gorm.DB
}

func NewEstateService(gdb *gorm.DB) *EstateService {
	return &EstateService{db: gdb}
}

// RegisterEstate records one property under a project.
func (s *EstateService) RegisterEstate(ctx context.Context, projectID string, req *db.RegisterEstateRequest) (*db.Estate, error) {
	if req.Address == "" {
		return nil, fmt.Errorf("%w: address is required", ErrValidation)
	}
	estate := db.Estate{
		ID:              uuid.New().String(),
		ProjectID:       projectID,
		Address:         req.Address,
		TaxValuation:    req.TaxValuation,
		FinancialAssets: req.FinancialAssets,
		IssueTags:       req.IssueTags,
	}
	if err := s.db.WithContext(ctx).Create(&estate).Error; err != nil {
		return nil, err
	}
	return &estate, nil
}

// ListEstates returns all properties registered under a project.
func (s *EstateService) ListEstates(ctx context.Context, projectID string) ([]db.Estate, error) {
	var estates []db.Estate
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&estates).Error; err != nil {
		return nil, err
	}
	return estates, nil
}

// UpdateEstate edits one property's reference data. The estate must belong
// to the given project.
func (s *EstateService) UpdateEstate(ctx context.Context, projectID, estateID string, req *db.UpdateEstateRequest) (*db.Estate, error) {
	var estate db.Estate
	err := s.db.WithContext(ctx).First(&estate, "id = ? AND project_id = ?", estateID, projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: estate %s", ErrNotFound, estateID)
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Address != nil {
		if *req.Address == "" {
			return nil, fmt.Errorf("%w: address must not be empty", ErrValidation)
		}
		updates["address"] = *req.Address
	}
	if req.TaxValuation != nil {
		updates["tax_valuation"] = *req.TaxValuation
	}
	if req.FinancialAssets != nil {
		updates["financial_assets"] = *req.FinancialAssets
	}
	if req.IssueTags != nil {
		updates["issue_tags"] = db.StringArray(req.IssueTags)
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&estate).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	if err := s.db.WithContext(ctx).First(&estate, "id = ?", estateID).Error; err != nil {
		return nil, err
	}
	return &estate, nil
}

// DeleteEstate removes one property from the given project.
func (s *EstateService) DeleteEstate(ctx context.Context, projectID, estateID string) error {
	res := s.db.WithContext(ctx).Delete(&db.Estate{}, "id = ? AND project_id = ?", estateID, projectID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: estate %s", ErrNotFound, estateID)
	}
	return nil
}
