package handler

import (
	"log/slog"

	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/service"
	"github.com/aigree/aigree/pkg/utils"
	"github.com/gin-gonic/gin"
)

// AgreementHandler provides HTTP handlers for agreement drafting and signing
type AgreementHandler struct {
	agreements *service.AgreementService
	signatures *service.SignatureService
	workflow   *service.WorkflowService
	projects   *service.ProjectService
	logger     *slog.Logger
}

func NewAgreementHandler(
	agreements *service.AgreementService,
	signatures *service.SignatureService,
	workflow *service.WorkflowService,
	projects *service.ProjectService,
) *AgreementHandler {
	return &AgreementHandler{
		agreements: agreements,
		signatures: signatures,
		workflow:   workflow,
		projects:   projects,
		logger:     utils.GetLogger(),
	}
}

// Draft synthesizes the project agreement from a chosen proposal.
func (h *AgreementHandler) Draft(c *gin.Context) {
	projectID := c.Param("id")
	user := currentUser(c)

	var req db.DraftAgreementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request parameters: "+err.Error())
		return
	}
	agreement, err := h.workflow.DraftAgreement(c.Request.Context(), projectID, user.ID, req.ProposalID)
	if err != nil {
		h.logger.Warn("Agreement drafting failed", "projectId", projectID, "error", err)
		writeError(c, err)
		return
	}
	created(c, agreement)
}

func (h *AgreementHandler) Get(c *gin.Context) {
	projectID := c.Param("id")
	user := currentUser(c)
	if _, err := h.projects.Membership(c.Request.Context(), projectID, user.ID); err != nil {
		writeError(c, err)
		return
	}
	agreement, err := h.agreements.GetByProject(c.Request.Context(), projectID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, agreement)
}

// Update edits agreement text. Signed consent refers to the previous
// wording, so responses flag when signatures already existed.
func (h *AgreementHandler) Update(c *gin.Context) {
	projectID := c.Param("id")
	user := currentUser(c)
	if _, err := h.projects.Membership(c.Request.Context(), projectID, user.ID); err != nil {
		writeError(c, err)
		return
	}

	var req db.UpdateAgreementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request parameters: "+err.Error())
		return
	}
	agreement, consentStale, err := h.agreements.UpdateContent(c.Request.Context(), projectID, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"agreement": agreement, "consent_stale": consentStale})
}

// Sign records the caller's signature on an agreement.
func (h *AgreementHandler) Sign(c *gin.Context) {
	agreementID := c.Param("id")
	user := currentUser(c)

	var req db.SignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request parameters: "+err.Error())
		return
	}
	signature, err := h.signatures.Sign(c.Request.Context(), agreementID, user.ID, &req)
	if err != nil {
		h.logger.Warn("Signature rejected", "agreementId", agreementID, "userId", user.ID, "error", err)
		writeError(c, err)
		return
	}
	created(c, signature)
}

// ListSignatures returns the agreement's signature roster to a project
// member.
func (h *AgreementHandler) ListSignatures(c *gin.Context) {
	signatures, err := h.signatures.ListSignatures(c.Request.Context(), c.Param("id"), currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, signatures)
}

// Progress returns the shared signing progress view to a project member.
func (h *AgreementHandler) Progress(c *gin.Context) {
	progress, err := h.signatures.Progress(c.Request.Context(), c.Param("id"), currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, progress)
}
