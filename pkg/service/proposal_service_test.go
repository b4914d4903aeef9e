package service

import (
	"context"
	"errors"
	"testing"

	"github.com/aigree/aigree/pkg/db"
	"github.com/google/uuid"
)

type fixedGenerator struct {
	proposals []GeneratedProposal
}

func (f fixedGenerator) GenerateProposals(ctx context.Context, issues []db.Issue, estates []db.Estate) ([]GeneratedProposal, error) {
	return f.proposals, nil
}

func proposalFixture(t *testing.T, generator ProposalGenerator) (*ProposalService, *db.Project, *db.User) {
	t.Helper()
	gdb := newTestDB(t)
	owner := seedUser(t, gdb, "山田太郎", "taro@example.com")
	project := seedProject(t, gdb, owner, "実家の相続")
	issue := db.Issue{
		ID:          uuid.New().String(),
		ProjectID:   project.ID,
		OwnerUserID: owner.ID,
		Topic:       "実家",
		Content:     "売却か維持か",
	}
	if err := gdb.Create(&issue).Error; err != nil {
		t.Fatalf("seed issue: %v", err)
	}
	return NewProposalService(gdb, generator, NewMockAI()), project, owner
}

func TestGenerateProposals_RequiresIssues(t *testing.T) {
	gdb := newTestDB(t)
	owner := seedUser(t, gdb, "山田太郎", "taro@example.com")
	project := seedProject(t, gdb, owner, "実家の相続")
	svc := NewProposalService(gdb, NewMockAI(), NewMockAI())

	_, err := svc.GenerateProposals(context.Background(), project.ID, owner.ID)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("GenerateProposals() error = %v, want ErrInsufficientData", err)
	}
}

func TestGenerateProposals_CapsAtThreeHighestSupported(t *testing.T) {
	generator := fixedGenerator{proposals: []GeneratedProposal{
		{Title: "弱い案", SupportRate: 10},
		{Title: "最有力案", SupportRate: 90},
		{Title: "次点案", SupportRate: 70},
		{Title: "有力案", SupportRate: 80},
	}}
	svc, project, owner := proposalFixture(t, generator)

	proposals, err := svc.GenerateProposals(context.Background(), project.ID, owner.ID)
	if err != nil {
		t.Fatalf("GenerateProposals() error = %v", err)
	}
	if len(proposals) != 3 {
		t.Fatalf("len(proposals) = %d, want 3", len(proposals))
	}
	for _, p := range proposals {
		if p.Title == "弱い案" {
			t.Fatalf("lowest supported proposal should have been dropped")
		}
	}
}

func TestGenerateProposals_ClampsSupportRate(t *testing.T) {
	generator := fixedGenerator{proposals: []GeneratedProposal{
		{Title: "過大評価案", SupportRate: 150},
		{Title: "過小評価案", SupportRate: -20},
	}}
	svc, project, owner := proposalFixture(t, generator)

	proposals, err := svc.GenerateProposals(context.Background(), project.ID, owner.ID)
	if err != nil {
		t.Fatalf("GenerateProposals() error = %v", err)
	}
	for _, p := range proposals {
		if p.SupportRate < 0 || p.SupportRate > 100 {
			t.Fatalf("proposal %q SupportRate = %d, want within [0,100]", p.Title, p.SupportRate)
		}
	}
}

func TestGenerateProposals_RegenerationAppendsNewestFirst(t *testing.T) {
	svc, project, owner := proposalFixture(t, NewMockAI())

	first, err := svc.GenerateProposals(context.Background(), project.ID, owner.ID)
	if err != nil {
		t.Fatalf("GenerateProposals() error = %v", err)
	}
	second, err := svc.GenerateProposals(context.Background(), project.ID, owner.ID)
	if err != nil {
		t.Fatalf("second GenerateProposals() error = %v", err)
	}
	if len(second) != len(first)*2 {
		t.Fatalf("len after regeneration = %d, want %d (older proposals retained)", len(second), len(first)*2)
	}
	for i := 1; i < len(second); i++ {
		if second[i].Seq > second[i-1].Seq {
			t.Fatalf("proposals not ordered newest first at index %d", i)
		}
	}
}

func TestUpdateProposal_PointReconciliationIsIdempotent(t *testing.T) {
	svc, project, owner := proposalFixture(t, NewMockAI())
	proposals, err := svc.GenerateProposals(context.Background(), project.ID, owner.ID)
	if err != nil {
		t.Fatalf("GenerateProposals() error = %v", err)
	}
	target := proposals[0]

	edit := &db.UpdateProposalRequest{Points: []db.PointEdit{
		{Type: db.PointMerit, Content: "手続きが単純"},
		{Type: db.PointDemerit, Content: "将来の紛争リスク"},
		{Type: db.PointDemerit, Content: "将来の紛争リスク"}, // duplicate collapses
	}}
	updated, err := svc.UpdateProposal(context.Background(), target.ID, owner.ID, edit)
	if err != nil {
		t.Fatalf("UpdateProposal() error = %v", err)
	}
	if len(updated.Points) != 2 {
		t.Fatalf("len(points) = %d, want 2", len(updated.Points))
	}

	again, err := svc.UpdateProposal(context.Background(), target.ID, owner.ID, edit)
	if err != nil {
		t.Fatalf("repeated UpdateProposal() error = %v", err)
	}
	if len(again.Points) != 2 {
		t.Fatalf("len(points) after repeat = %d, want 2", len(again.Points))
	}

	// Surviving points keep their row identity across a repeated edit.
	ids := map[string]bool{}
	for _, p := range updated.Points {
		ids[p.ID] = true
	}
	for _, p := range again.Points {
		if !ids[p.ID] {
			t.Fatalf("point %q was recreated instead of kept", p.Content)
		}
	}
}

func TestUpdateProposal_RejectsUnknownPointType(t *testing.T) {
	svc, project, owner := proposalFixture(t, NewMockAI())
	proposals, err := svc.GenerateProposals(context.Background(), project.ID, owner.ID)
	if err != nil {
		t.Fatalf("GenerateProposals() error = %v", err)
	}

	edit := &db.UpdateProposalRequest{Points: []db.PointEdit{{Type: "bonus", Content: "x"}}}
	if _, err := svc.UpdateProposal(context.Background(), proposals[0].ID, owner.ID, edit); !errors.Is(err, ErrValidation) {
		t.Fatalf("UpdateProposal() error = %v, want ErrValidation", err)
	}
}

func TestToggleFavorite_FlipsAndRestores(t *testing.T) {
	svc, project, owner := proposalFixture(t, NewMockAI())
	proposals, err := svc.GenerateProposals(context.Background(), project.ID, owner.ID)
	if err != nil {
		t.Fatalf("GenerateProposals() error = %v", err)
	}
	id := proposals[0].ID

	on, err := svc.ToggleFavorite(context.Background(), id, owner.ID)
	if err != nil {
		t.Fatalf("ToggleFavorite() error = %v", err)
	}
	if !on.IsFavorite {
		t.Fatalf("IsFavorite after first toggle = false, want true")
	}
	off, err := svc.ToggleFavorite(context.Background(), id, owner.ID)
	if err != nil {
		t.Fatalf("second ToggleFavorite() error = %v", err)
	}
	if off.IsFavorite {
		t.Fatalf("IsFavorite after second toggle = true, want false")
	}
}

func TestDeleteProposal_RefusedWhileAgreementReferences(t *testing.T) {
	svc, project, owner := proposalFixture(t, NewMockAI())
	proposals, err := svc.GenerateProposals(context.Background(), project.ID, owner.ID)
	if err != nil {
		t.Fatalf("GenerateProposals() error = %v", err)
	}
	chosen := proposals[0]

	agreements := NewAgreementService(svc.db, NewMockAI())
	if _, err := agreements.DraftFromProposal(context.Background(), project.ID, chosen.ID); err != nil {
		t.Fatalf("DraftFromProposal() error = %v", err)
	}

	if err := svc.DeleteProposal(context.Background(), chosen.ID, owner.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("DeleteProposal() error = %v, want ErrConflict", err)
	}

	// An unreferenced sibling deletes cleanly.
	if err := svc.DeleteProposal(context.Background(), proposals[1].ID, owner.ID); err != nil {
		t.Fatalf("DeleteProposal(unreferenced) error = %v", err)
	}
	if _, err := svc.GetProposal(context.Background(), proposals[1].ID, owner.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetProposal(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestCompareProposals_RequiresAtLeastTwo(t *testing.T) {
	generator := fixedGenerator{proposals: []GeneratedProposal{
		{Title: "単独案", SupportRate: 60},
	}}
	svc, project, owner := proposalFixture(t, generator)
	if _, err := svc.GenerateProposals(context.Background(), project.ID, owner.ID); err != nil {
		t.Fatalf("GenerateProposals() error = %v", err)
	}

	_, err := svc.CompareProposals(context.Background(), project.ID, owner.ID, &db.CompareProposalsRequest{})
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("CompareProposals() error = %v, want ErrInsufficientData", err)
	}
}

func TestCompareProposals_RecommendsHighestScored(t *testing.T) {
	svc, project, owner := proposalFixture(t, NewMockAI())
	proposals, err := svc.GenerateProposals(context.Background(), project.ID, owner.ID)
	if err != nil {
		t.Fatalf("GenerateProposals() error = %v", err)
	}

	comparison, err := svc.CompareProposals(context.Background(), project.ID, owner.ID, &db.CompareProposalsRequest{})
	if err != nil {
		t.Fatalf("CompareProposals() error = %v", err)
	}
	if len(comparison.Comparison) != len(proposals) {
		t.Fatalf("len(comparison) = %d, want %d", len(comparison.Comparison), len(proposals))
	}
	if len(comparison.Criteria) == 0 {
		t.Fatalf("criteria should default when the request names none")
	}

	best := ""
	bestScore := -1
	for _, entry := range comparison.Comparison {
		for criterion, score := range entry.Scores {
			if score < 1 || score > 5 {
				t.Fatalf("score for %q = %d, want within [1,5]", criterion, score)
			}
		}
		if entry.TotalScore > bestScore {
			bestScore = entry.TotalScore
			best = entry.ProposalID
		}
	}
	if comparison.Recommendation != best {
		t.Fatalf("Recommendation = %q, want highest scored %q", comparison.Recommendation, best)
	}
}

func TestCompareProposals_RejectsForeignProposalID(t *testing.T) {
	svc, project, owner := proposalFixture(t, NewMockAI())
	if _, err := svc.GenerateProposals(context.Background(), project.ID, owner.ID); err != nil {
		t.Fatalf("GenerateProposals() error = %v", err)
	}

	req := &db.CompareProposalsRequest{ProposalIDs: []string{uuid.New().String(), uuid.New().String()}}
	if _, err := svc.CompareProposals(context.Background(), project.ID, owner.ID, req); !errors.Is(err, ErrNotFound) {
		t.Fatalf("CompareProposals(foreign ids) error = %v, want ErrNotFound", err)
	}
}
