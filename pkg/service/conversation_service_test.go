package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aigree/aigree/pkg/db"
)

func newConversationService(t *testing.T) (*ConversationService, *db.Project, *db.User) {
	t.Helper()
	gdb := newTestDB(t)
	owner := seedUser(t, gdb, "山田太郎", "taro@example.com")
	project := seedProject(t, gdb, owner, "実家の相続")
	svc := NewConversationService(gdb, NewMockAI(), NewMockAI())
	return svc, project, owner
}

func TestAppendMessage_RejectsEmptyContent(t *testing.T) {
	svc, project, owner := newConversationService(t)

	_, err := svc.AppendMessage(context.Background(), project.ID, &owner.ID, "山田太郎", "   ", "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("AppendMessage() error = %v, want ErrValidation", err)
	}
}

func TestAppendMessage_RejectsUnknownSentiment(t *testing.T) {
	svc, project, owner := newConversationService(t)

	_, err := svc.AppendMessage(context.Background(), project.ID, &owner.ID, "山田太郎", "こんにちは", "angry")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("AppendMessage() error = %v, want ErrValidation", err)
	}
}

func TestAppendMessage_TimestampsStrictlyIncrease(t *testing.T) {
	svc, project, owner := newConversationService(t)

	seedMessages(t, svc.db, svc, project.ID, owner.ID, "一つ目", "二つ目", "三つ目")

	messages, err := svc.ListMessages(context.Background(), project.ID, nil)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("len(messages) = %d, want 3", len(messages))
	}
	for i := 1; i < len(messages); i++ {
		if !messages[i].Timestamp.After(messages[i-1].Timestamp) {
			t.Fatalf("timestamp %d (%v) not after %d (%v)",
				i, messages[i].Timestamp, i-1, messages[i-1].Timestamp)
		}
	}
}

func TestListMessages_FiltersOtherMembers(t *testing.T) {
	svc, project, owner := newConversationService(t)
	other := seedUser(t, svc.db, "山田花子", "hanako@example.com")
	seedMember(t, svc.db, project, other)

	seedMessages(t, svc.db, svc, project.ID, owner.ID, "太郎の発言")
	seedMessages(t, svc.db, svc, project.ID, other.ID, "花子の発言")
	if _, err := svc.AppendMessage(context.Background(), project.ID, nil, "", "AIの発言", ""); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	messages, err := svc.ListMessages(context.Background(), project.ID, &owner.ID)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2 (own + AI)", len(messages))
	}
	for _, m := range messages {
		if m.AuthorUserID != nil && *m.AuthorUserID != owner.ID {
			t.Fatalf("leaked message from author %v", *m.AuthorUserID)
		}
	}
}

func TestEnsureOpener_SecondCallReturnsExisting(t *testing.T) {
	svc, project, owner := newConversationService(t)

	first, seeded, err := svc.EnsureOpener(context.Background(), project, owner.ID)
	if err != nil {
		t.Fatalf("EnsureOpener() error = %v", err)
	}
	if !seeded {
		t.Fatalf("first EnsureOpener() seeded = false, want true")
	}

	second, seeded, err := svc.EnsureOpener(context.Background(), project, owner.ID)
	if err != nil {
		t.Fatalf("second EnsureOpener() error = %v", err)
	}
	if seeded {
		t.Fatalf("second EnsureOpener() seeded = true, want false")
	}
	if second.ID != first.ID {
		t.Fatalf("second opener ID = %s, want %s", second.ID, first.ID)
	}

	messages, err := svc.ListMessages(context.Background(), project.ID, nil)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("len(messages) = %d, want exactly one opener", len(messages))
	}
}

func TestEnsureOpener_ConcurrentCallsProduceOneRow(t *testing.T) {
	svc, project, owner := newConversationService(t)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.EnsureOpener(context.Background(), project, owner.ID)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("EnsureOpener() call %d error = %v", i, err)
		}
	}

	var count int64
	if err := svc.db.Model(&db.Message{}).Where("project_id = ?", project.ID).Count(&count).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 1 {
		t.Fatalf("opener rows = %d, want 1", count)
	}
}

func TestEnsureOpener_PerMemberOpeners(t *testing.T) {
	svc, project, owner := newConversationService(t)
	other := seedUser(t, svc.db, "山田花子", "hanako@example.com")
	seedMember(t, svc.db, project, other)

	a, _, err := svc.EnsureOpener(context.Background(), project, owner.ID)
	if err != nil {
		t.Fatalf("EnsureOpener(owner) error = %v", err)
	}
	b, _, err := svc.EnsureOpener(context.Background(), project, other.ID)
	if err != nil {
		t.Fatalf("EnsureOpener(other) error = %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("expected distinct openers per member, both %s", a.ID)
	}
}

type failingResponder struct{}

func (failingResponder) Reply(ctx context.Context, history []db.Message, latest string) (string, error) {
	return "", errors.New("model unavailable")
}

func TestReply_ResponderFailureStoresFallback(t *testing.T) {
	gdb := newTestDB(t)
	owner := seedUser(t, gdb, "山田太郎", "taro@example.com")
	project := seedProject(t, gdb, owner, "実家の相続")
	svc := NewConversationService(gdb, failingResponder{}, NewMockAI())

	userMsg, aiMsg, err := svc.Reply(context.Background(), project.ID, owner.ID, "山田太郎", "実家を売却したい", false)
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if userMsg == nil || aiMsg == nil {
		t.Fatalf("Reply() returned nil message")
	}
	if aiMsg.Content != fallbackReply {
		t.Fatalf("aiMsg.Content = %q, want fallback reply", aiMsg.Content)
	}
	if aiMsg.AuthorUserID != nil {
		t.Fatalf("AI message should have nil author")
	}
}

func TestReply_WithSentimentClassifies(t *testing.T) {
	svc, project, owner := newConversationService(t)

	userMsg, _, err := svc.Reply(context.Background(), project.ID, owner.ID, "山田太郎", "売却に賛成です", true)
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if userMsg.Sentiment != db.SentimentPositive {
		t.Fatalf("userMsg.Sentiment = %q, want %q", userMsg.Sentiment, db.SentimentPositive)
	}
}

func TestSentimentSummary_CountsClasses(t *testing.T) {
	svc, project, owner := newConversationService(t)

	cases := []struct{ content, sentiment string }{
		{"賛成です", db.SentimentPositive},
		{"反対です", db.SentimentNegative},
		{"検討します", ""},
	}
	for _, tc := range cases {
		if _, err := svc.AppendMessage(context.Background(), project.ID, &owner.ID, "山田太郎", tc.content, tc.sentiment); err != nil {
			t.Fatalf("AppendMessage(%q) error = %v", tc.content, err)
		}
	}

	summary, err := svc.SentimentSummary(context.Background(), project.ID, owner.ID)
	if err != nil {
		t.Fatalf("SentimentSummary() error = %v", err)
	}
	if summary.Positive != 1 || summary.Negative != 1 || summary.Neutral != 1 || summary.Total != 3 {
		t.Fatalf("summary = %+v, want 1/1/1 of 3", summary)
	}
}

func TestLatestMessage_NewestFirst(t *testing.T) {
	svc, project, owner := newConversationService(t)
	seedMessages(t, svc.db, svc, project.ID, owner.ID, "古い発言", "新しい発言")

	latest, err := svc.LatestMessage(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("LatestMessage() error = %v", err)
	}
	if latest.Content != "新しい発言" {
		t.Fatalf("latest.Content = %q, want newest message", latest.Content)
	}
}
