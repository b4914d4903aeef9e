// Database model for estate reference data
package db

import "time"

// Estate is read-mostly reference data about a property in the inheritance.
// It feeds proposal generation; the workflow engine itself never mutates it.
type Estate struct {
	ID              string      `json:"id" gorm:"primaryKey;size:36"`
	ProjectID       string      `json:"project_id" gorm:"index;size:36;not null"`
	Address         string      `json:"address" gorm:"size:255;not null"`
	TaxValuation    *int64      `json:"tax_valuation,omitempty"`    // yen
	FinancialAssets *int64      `json:"financial_assets,omitempty"` // yen
	IssueTags       StringArray `json:"issue_tags,omitempty" gorm:"type:json"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (Estate) TableName() string {
	return "estates"
}

// ========== Request/Response Types ==========

// RegisterEstateRequest registers one property under a project.
type RegisterEstateRequest struct {
	Address         string   `json:"address" binding:"required"`
	TaxValuation    *int64   `json:"tax_valuation,omitempty"`
	FinancialAssets *int64   `json:"financial_assets,omitempty"`
	IssueTags       []string `json:"issue_tags,omitempty"`
}

// UpdateEstateRequest edits estate reference data.
type UpdateEstateRequest struct {
	Address         *string  `json:"address,omitempty"`
	TaxValuation    *int64   `json:"tax_valuation,omitempty"`
	FinancialAssets *int64   `json:"financial_assets,omitempty"`
	IssueTags       []string `json:"issue_tags,omitempty"`
}
