package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aigree/aigree/pkg/db"
)

func invitationFixture(t *testing.T) (*InvitationService, *db.Project, *db.User) {
	t.Helper()
	gdb := newTestDB(t)
	owner := seedUser(t, gdb, "山田太郎", "taro@example.com")
	project := seedProject(t, gdb, owner, "実家の相続")
	return NewInvitationService(gdb), project, owner
}

func TestCreateInvitation_OwnerOnly(t *testing.T) {
	svc, project, owner := invitationFixture(t)
	sibling := seedUser(t, svc.db, "山田花子", "hanako@example.com")
	seedMember(t, svc.db, project, sibling)

	req := &db.CreateInvitationRequest{
		ProjectID: project.ID,
		Email:     "jiro@example.com",
		Name:      "山田次郎",
		Relation:  "次男",
	}
	if _, err := svc.CreateInvitation(context.Background(), sibling.ID, req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("CreateInvitation() by member error = %v, want ErrForbidden", err)
	}

	invitation, err := svc.CreateInvitation(context.Background(), owner.ID, req)
	if err != nil {
		t.Fatalf("CreateInvitation() error = %v", err)
	}
	if invitation.Token == "" {
		t.Fatalf("invitation token is empty")
	}
	if got := time.Until(invitation.ExpiresAt); got < 167*time.Hour || got > 169*time.Hour {
		t.Fatalf("expiry window = %v, want about 168h", got)
	}
}

func TestComplete_EmailMustMatch(t *testing.T) {
	svc, project, owner := invitationFixture(t)
	invitation, err := svc.CreateInvitation(context.Background(), owner.ID, &db.CreateInvitationRequest{
		ProjectID: project.ID, Email: "jiro@example.com", Name: "山田次郎",
	})
	if err != nil {
		t.Fatalf("CreateInvitation() error = %v", err)
	}

	wrong := seedUser(t, svc.db, "佐藤三郎", "saburo@example.com")
	if _, err := svc.Complete(context.Background(), invitation.Token, wrong); !errors.Is(err, ErrForbidden) {
		t.Fatalf("Complete() with wrong email error = %v, want ErrForbidden", err)
	}
}

func TestComplete_ExpiredToken(t *testing.T) {
	svc, project, owner := invitationFixture(t)
	invitation, err := svc.CreateInvitation(context.Background(), owner.ID, &db.CreateInvitationRequest{
		ProjectID: project.ID, Email: "jiro@example.com", Name: "山田次郎",
	})
	if err != nil {
		t.Fatalf("CreateInvitation() error = %v", err)
	}
	if err := svc.db.Model(&db.ProjectInvitation{}).
		Where("id = ?", invitation.ID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("age invitation: %v", err)
	}

	invitee := seedUser(t, svc.db, "山田次郎", "jiro@example.com")
	if _, err := svc.Complete(context.Background(), invitation.Token, invitee); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Complete() with expired token error = %v, want ErrTokenExpired", err)
	}
}

func TestComplete_RepeatedRedeemIsIdempotent(t *testing.T) {
	svc, project, owner := invitationFixture(t)
	invitation, err := svc.CreateInvitation(context.Background(), owner.ID, &db.CreateInvitationRequest{
		ProjectID: project.ID, Email: "jiro@example.com", Name: "山田次郎", Relation: "次男",
	})
	if err != nil {
		t.Fatalf("CreateInvitation() error = %v", err)
	}

	invitee := seedUser(t, svc.db, "山田次郎", "jiro@example.com")
	first, err := svc.Complete(context.Background(), invitation.Token, invitee)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if first.ProjectID != project.ID || first.UserID != invitee.ID {
		t.Fatalf("membership = %+v, want project %s user %s", first, project.ID, invitee.ID)
	}
	if first.Relation != "次男" {
		t.Fatalf("member.Relation = %q, want 次男", first.Relation)
	}

	second, err := svc.Complete(context.Background(), invitation.Token, invitee)
	if err != nil {
		t.Fatalf("repeated Complete() error = %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("repeated redeem created member %s, want existing %s", second.ID, first.ID)
	}

	var members int64
	if err := svc.db.Model(&db.ProjectMember{}).
		Where("project_id = ?", project.ID).Count(&members).Error; err != nil {
		t.Fatalf("count members: %v", err)
	}
	if members != 2 {
		t.Fatalf("member rows = %d, want 2 (owner + invitee)", members)
	}
}

func TestPreview_ExposesProjectAndInvitee(t *testing.T) {
	svc, project, owner := invitationFixture(t)
	invitation, err := svc.CreateInvitation(context.Background(), owner.ID, &db.CreateInvitationRequest{
		ProjectID: project.ID, Email: "jiro@example.com", Name: "山田次郎",
	})
	if err != nil {
		t.Fatalf("CreateInvitation() error = %v", err)
	}

	preview, err := svc.Preview(context.Background(), invitation.Token)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if preview.ProjectTitle != project.Title {
		t.Fatalf("preview.ProjectTitle = %q, want %q", preview.ProjectTitle, project.Title)
	}
	if preview.InviteeEmail != "jiro@example.com" {
		t.Fatalf("preview.InviteeEmail = %q", preview.InviteeEmail)
	}
}

func TestPreview_UnknownToken(t *testing.T) {
	svc, _, _ := invitationFixture(t)
	if _, err := svc.Preview(context.Background(), "no-such-token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Preview() error = %v, want ErrNotFound", err)
	}
}
