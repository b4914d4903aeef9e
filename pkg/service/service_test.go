package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aigree/aigree/pkg/db"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	return gdb
}

func seedUser(t *testing.T, gdb *gorm.DB, name, email string) *db.User {
	t.Helper()
	user := &db.User{ID: uuid.New().String(), Name: name, Email: email}
	if err := gdb.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedProject(t *testing.T, gdb *gorm.DB, owner *db.User, title string) *db.Project {
	t.Helper()
	projects := NewProjectService(gdb)
	project, err := projects.CreateProject(context.Background(), owner.ID, &db.CreateProjectRequest{Title: title})
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return project
}

func seedMember(t *testing.T, gdb *gorm.DB, project *db.Project, user *db.User) *db.ProjectMember {
	t.Helper()
	member := &db.ProjectMember{
		ID:        uuid.New().String(),
		ProjectID: project.ID,
		UserID:    user.ID,
		Role:      db.RoleMember,
		Name:      user.Name,
		Email:     user.Email,
	}
	if err := gdb.Create(member).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return member
}

func seedMessages(t *testing.T, gdb *gorm.DB, conv *ConversationService, projectID, userID string, contents ...string) {
	t.Helper()
	for _, content := range contents {
		if _, err := conv.AppendMessage(context.Background(), projectID, &userID, "テスト話者", content, ""); err != nil {
			t.Fatalf("seed message %q: %v", content, err)
		}
	}
}
