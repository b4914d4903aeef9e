// Database models for the agreement document and its signatures
package db

import "time"

// Agreement is the single canonical draft document for a project. The unique
// index on ProjectID enforces the at-most-one-agreement invariant; drafting
// from another proposal replaces content and source instead of adding a row.
type Agreement struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	ProjectID  string    `json:"project_id" gorm:"uniqueIndex;size:36;not null"`
	ProposalID *string   `json:"proposal_id,omitempty" gorm:"index;size:36"`
	Title      string    `json:"title" gorm:"size:200;not null"`
	Content    string    `json:"content" gorm:"type:text"`
	Status     string    `json:"status" gorm:"size:20;default:'draft'"` // draft, signing, signed
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Agreement) TableName() string {
	return "agreements"
}

// Agreement status
const (
	AgreementStatusDraft   = "draft"
	AgreementStatusSigning = "signing"
	AgreementStatusSigned  = "signed"
)

// Signature is one member's name-attested consent to an agreement. The
// composite unique index makes concurrent duplicate signs race onto one row.
// A signed row is immutable.
type Signature struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	AgreementID string     `json:"agreement_id" gorm:"index:idx_signature_agreement_user,unique;size:36;not null"`
	UserID      string     `json:"user_id" gorm:"index:idx_signature_agreement_user,unique;size:36;not null"`
	Value       string     `json:"value" gorm:"size:100;not null"` // the name the signer typed
	Status      string     `json:"status" gorm:"size:20;default:'signed'"`
	SignedAt    *time.Time `json:"signed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (Signature) TableName() string {
	return "signatures"
}

// Signature status
const (
	SignatureStatusPending = "pending"
	SignatureStatusSigned  = "signed"
)

// ========== Request/Response Types ==========

// DraftAgreementRequest drafts the project agreement from a chosen proposal.
type DraftAgreementRequest struct {
	ProposalID string `json:"proposal_id" binding:"required"`
}

// UpdateAgreementRequest edits agreement content directly.
type UpdateAgreementRequest struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// SignRequest records one member's signature. Value must exactly match the
// member's registered display name.
type SignRequest struct {
	Value string `json:"value" binding:"required"`
}

// SigningProgress is the shared consensus view polled by every member.
type SigningProgress struct {
	AgreementID string `json:"agreement_id"`
	Signed      int    `json:"signed"`
	Total       int    `json:"total"`
	Complete    bool   `json:"complete"`
}
