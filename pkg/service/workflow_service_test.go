package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aigree/aigree/pkg/db"
	"github.com/google/uuid"
)

// blockingGenerator parks until released, signalling entry.
type blockingGenerator struct {
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGenerator) GenerateProposals(ctx context.Context, issues []db.Issue, estates []db.Estate) ([]GeneratedProposal, error) {
	g.entered <- struct{}{}
	<-g.release
	return []GeneratedProposal{{Title: "案", SupportRate: 50}}, nil
}

func workflowFixture(t *testing.T, generator ProposalGenerator) (*WorkflowService, *db.Project, *db.User) {
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

	projects := NewProjectService(gdb)
	conversation := NewConversationService(gdb, NewMockAI(), NewMockAI())
	issues := NewIssueService(gdb, NewMockAI(), 3)
	proposals := NewProposalService(gdb, generator, NewMockAI())
	agreements := NewAgreementService(gdb, NewMockAI())
	signatures := NewSignatureService(gdb)
	workflow := NewWorkflowService(gdb, projects, conversation, issues, proposals, agreements, signatures, time.Minute)
	return workflow, project, owner
}

func TestGenerateProposals_SecondCallWhileBusyRejected(t *testing.T) {
	generator := &blockingGenerator{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	workflow, project, owner := workflowFixture(t, generator)

	done := make(chan error, 1)
	go func() {
		_, err := workflow.GenerateProposals(context.Background(), project.ID, owner.ID)
		done <- err
	}()
	<-generator.entered

	_, err := workflow.GenerateProposals(context.Background(), project.ID, owner.ID)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("concurrent GenerateProposals() error = %v, want ErrBusy", err)
	}

	close(generator.release)
	if err := <-done; err != nil {
		t.Fatalf("first GenerateProposals() error = %v", err)
	}

	// The guard releases on completion; the next run proceeds.
	generator.entered = make(chan struct{}, 1)
	go func() {
		_, err := workflow.GenerateProposals(context.Background(), project.ID, owner.ID)
		done <- err
	}()
	<-generator.entered
	if err := <-done; err != nil {
		t.Fatalf("GenerateProposals() after release error = %v", err)
	}
}

func TestFlightGuard_ExpiredEntrySelfClears(t *testing.T) {
	guard := newFlightGuard(10 * time.Millisecond)
	if !guard.begin("k") {
		t.Fatalf("begin() on fresh key = false, want true")
	}
	if guard.begin("k") {
		t.Fatalf("begin() on held key = true, want false")
	}
	time.Sleep(20 * time.Millisecond)
	if !guard.begin("k") {
		t.Fatalf("begin() after TTL = false, want true")
	}
}

func TestFlightGuard_KeysAreIndependent(t *testing.T) {
	guard := newFlightGuard(time.Minute)
	if !guard.begin(flightKey("p", "u", "extract")) {
		t.Fatalf("begin(extract) = false, want true")
	}
	if !guard.begin(flightKey("p", "u", "generate")) {
		t.Fatalf("begin(generate) while extract held = false, want true")
	}
	if !guard.begin(flightKey("p", "other", "extract")) {
		t.Fatalf("begin(extract, other user) = false, want true")
	}
	guard.end(flightKey("p", "u", "extract"))
	if !guard.begin(flightKey("p", "u", "extract")) {
		t.Fatalf("begin(extract) after end = false, want true")
	}
}

func TestEnterNegotiation_MembershipRequired(t *testing.T) {
	workflow, project, _ := workflowFixture(t, NewMockAI())
	stranger := seedUser(t, workflow.db, "佐藤次郎", "jiro@example.com")

	if _, _, err := workflow.EnterNegotiation(context.Background(), project.ID, stranger.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("EnterNegotiation() error = %v, want ErrForbidden", err)
	}
}

func TestEnterNegotiation_ReentryKeepsSingleOpener(t *testing.T) {
	workflow, project, owner := workflowFixture(t, NewMockAI())

	first, seeded, err := workflow.EnterNegotiation(context.Background(), project.ID, owner.ID)
	if err != nil {
		t.Fatalf("EnterNegotiation() error = %v", err)
	}
	if !seeded {
		t.Fatalf("first entry seeded = false, want true")
	}
	second, seeded, err := workflow.EnterNegotiation(context.Background(), project.ID, owner.ID)
	if err != nil {
		t.Fatalf("re-entry error = %v", err)
	}
	if seeded || second.ID != first.ID {
		t.Fatalf("re-entry returned (%s, seeded=%v), want existing opener %s", second.ID, seeded, first.ID)
	}
}

func TestRefreshView_ConsistentSnapshot(t *testing.T) {
	workflow, project, owner := workflowFixture(t, NewMockAI())

	if _, _, err := workflow.EnterNegotiation(context.Background(), project.ID, owner.ID); err != nil {
		t.Fatalf("EnterNegotiation() error = %v", err)
	}
	proposals, err := workflow.GenerateProposals(context.Background(), project.ID, owner.ID)
	if err != nil {
		t.Fatalf("GenerateProposals() error = %v", err)
	}
	if _, err := workflow.DraftAgreement(context.Background(), project.ID, owner.ID, proposals[0].ID); err != nil {
		t.Fatalf("DraftAgreement() error = %v", err)
	}

	snap, err := workflow.RefreshView(context.Background(), project.ID, owner.ID)
	if err != nil {
		t.Fatalf("RefreshView() error = %v", err)
	}
	if snap.Project == nil || snap.Project.ID != project.ID {
		t.Fatalf("snap.Project = %+v, want project %s", snap.Project, project.ID)
	}
	if len(snap.Members) != 1 {
		t.Fatalf("len(snap.Members) = %d, want 1", len(snap.Members))
	}
	if len(snap.Messages) != 1 {
		t.Fatalf("len(snap.Messages) = %d, want 1 (the opener)", len(snap.Messages))
	}
	if len(snap.Proposals) != len(proposals) {
		t.Fatalf("len(snap.Proposals) = %d, want %d", len(snap.Proposals), len(proposals))
	}
	if snap.Agreement == nil {
		t.Fatalf("snap.Agreement = nil, want drafted agreement")
	}
	if snap.Progress == nil || snap.Progress.Total != 1 || snap.Progress.Signed != 0 {
		t.Fatalf("snap.Progress = %+v, want 0/1", snap.Progress)
	}
}

func TestRefreshView_ProgressMatchesSnapshotSignatures(t *testing.T) {
	workflow, project, owner := workflowFixture(t, NewMockAI())

	if _, _, err := workflow.EnterNegotiation(context.Background(), project.ID, owner.ID); err != nil {
		t.Fatalf("EnterNegotiation() error = %v", err)
	}
	proposals, err := workflow.GenerateProposals(context.Background(), project.ID, owner.ID)
	if err != nil {
		t.Fatalf("GenerateProposals() error = %v", err)
	}
	agreement, err := workflow.DraftAgreement(context.Background(), project.ID, owner.ID, proposals[0].ID)
	if err != nil {
		t.Fatalf("DraftAgreement() error = %v", err)
	}
	if _, err := workflow.signatures.Sign(context.Background(), agreement.ID, owner.ID, &db.SignRequest{Value: owner.Name}); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	snap, err := workflow.RefreshView(context.Background(), project.ID, owner.ID)
	if err != nil {
		t.Fatalf("RefreshView() error = %v", err)
	}

	// The counts come from the same transaction as the signature rows, so
	// the two views of the snapshot must agree.
	signed := 0
	for _, sig := range snap.Signatures {
		if sig.Status == db.SignatureStatusSigned {
			signed++
		}
	}
	if snap.Progress == nil || snap.Progress.Signed != signed {
		t.Fatalf("snap.Progress = %+v, want Signed = %d per snapshot signatures", snap.Progress, signed)
	}
	if !snap.Progress.Complete || snap.Progress.Total != 1 {
		t.Fatalf("snap.Progress = %+v, want 1/1 complete", snap.Progress)
	}
}
