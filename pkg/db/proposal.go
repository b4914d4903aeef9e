// Database models for division proposals
package db

import "time"

// Proposal is a candidate resolution generated for one member. Regeneration
// is additive: new proposals are appended, older ones kept for comparison.
// Seq provides the "newest first" ordering across regenerations.
type Proposal struct {
	ID          string          `json:"id" gorm:"primaryKey;size:36"`
	Seq         int64           `json:"seq" gorm:"uniqueIndex;not null"`
	ProjectID   string          `json:"project_id" gorm:"index:idx_proposal_project_owner;size:36;not null"`
	OwnerUserID string          `json:"owner_user_id" gorm:"index:idx_proposal_project_owner;size:36;not null"`
	Title       string          `json:"title" gorm:"size:200;not null"`
	Content     string          `json:"content" gorm:"type:text"`
	SupportRate int             `json:"support_rate" gorm:"default:0"` // 0-100
	IsFavorite  bool            `json:"is_favorite" gorm:"default:false"`
	IsSelected  bool            `json:"is_selected" gorm:"default:false"`
	Points      []ProposalPoint `json:"points" gorm:"foreignKey:ProposalID"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (Proposal) TableName() string {
	return "proposals"
}

// ProposalPoint is an itemized merit/demerit/cost/effort line on a proposal.
// Points carry no stable identity from the generator; (Type, Content) is the
// identity used when reconciling edits.
type ProposalPoint struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	ProposalID string    `json:"proposal_id" gorm:"index;size:36;not null"`
	Type       string    `json:"type" gorm:"size:20;not null"` // merit, demerit, cost, effort
	Content    string    `json:"content" gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ProposalPoint) TableName() string {
	return "proposal_points"
}

// Point types
const (
	PointMerit   = "merit"
	PointDemerit = "demerit"
	PointCost    = "cost"
	PointEffort  = "effort"
)

// ========== Request/Response Types ==========

// PointEdit is one point in an UpdateProposalRequest edit set.
type PointEdit struct {
	Type    string `json:"type" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// UpdateProposalRequest partially updates a proposal. When Points is non-nil
// the stored point set is reconciled against it: points missing from storage
// are inserted, stored points absent from the edit set are deleted.
type UpdateProposalRequest struct {
	Title       *string     `json:"title,omitempty"`
	Content     *string     `json:"content,omitempty"`
	SupportRate *int        `json:"support_rate,omitempty"`
	Points      []PointEdit `json:"points,omitempty"`
}

// CompareProposalsRequest selects which proposals to compare and on which
// criteria. Empty ProposalIDs means all of the caller's proposals; empty
// Criteria falls back to the standard inheritance criteria.
type CompareProposalsRequest struct {
	ProposalIDs []string `json:"proposal_ids,omitempty"`
	Criteria    []string `json:"criteria,omitempty"`
}
