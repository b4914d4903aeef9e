// Deterministic collaborators for provider "mock" and local development.
// The extraction rules port the original rule-based pipeline that shipped
// before a real model was wired in.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/aigree/aigree/pkg/db"
)

// MockAI implements every text-generation collaborator without external
// calls. Output is a pure function of the input, which also makes it usable
// as a test double.
type MockAI struct{}

// NewMockAI returns the deterministic collaborator set.
func NewMockAI() *MockAI {
	return &MockAI{}
}

// inheritanceTopics maps a topic label to trigger keywords.
var inheritanceTopics = []struct {
	topic    string
	keywords []string
}{
	{"実家", []string{"実家", "家", "土地", "不動産", "住む", "建物"}},
	{"預貯金", []string{"預金", "貯金", "現金", "口座", "資産"}},
	{"遺言", []string{"遺言", "遺書", "意思", "希望"}},
	{"分割", []string{"分割", "分ける", "分配", "割合", "配分"}},
	{"相続税", []string{"税金", "相続税", "納税", "固定資産税"}},
}

var (
	positiveWords = []string{"賛成", "同意", "良い", "いい", "好き", "メリット", "賛同"}
	negativeWords = []string{"反対", "同意できない", "悪い", "嫌", "デメリット", "心配", "不安"}
)

// ExtractIssues derives issues by keyword presence per topic.
func (m *MockAI) ExtractIssues(ctx context.Context, messages []db.Message) ([]ExtractedIssue, error) {
	var total strings.Builder
	for _, msg := range messages {
		if msg.AuthorUserID == nil {
			continue
		}
		total.WriteString(msg.Content)
		total.WriteString(" ")
	}
	text := total.String()

	var issues []ExtractedIssue
	for _, t := range inheritanceTopics {
		mentioned := false
		for _, kw := range t.keywords {
			if strings.Contains(text, kw) {
				mentioned = true
				break
			}
		}
		if !mentioned {
			continue
		}

		classification := db.ClassificationDiscussing
		pos, neg := 0, 0
		for _, w := range positiveWords {
			pos += strings.Count(text, w)
		}
		for _, w := range negativeWords {
			neg += strings.Count(text, w)
		}
		if pos > 0 && neg == 0 {
			classification = db.ClassificationAgreed
		} else if neg > pos {
			classification = db.ClassificationDisagreed
		}

		issues = append(issues, ExtractedIssue{
			Topic:          t.topic,
			Content:        fmt.Sprintf("%sの取り扱いに関する論点", t.topic),
			Classification: classification,
		})
	}
	return issues, nil
}

// GenerateProposals produces up to three canned proposals shaped by the
// issue set and estate data.
func (m *MockAI) GenerateProposals(ctx context.Context, issues []db.Issue, estates []db.Estate) ([]GeneratedProposal, error) {
	address := "対象不動産"
	if len(estates) > 0 {
		address = estates[0].Address
	}

	disagreed := 0
	for _, issue := range issues {
		if issue.Classification == db.ClassificationDisagreed {
			disagreed++
		}
	}

	proposals := []GeneratedProposal{
		{
			Title:       "換価分割案",
			Content:     fmt.Sprintf("%sを売却し、売却代金を相続人で均等に分割する案です。", address),
			SupportRate: 70 - disagreed*5,
			Points: []GeneratedPoint{
				{Type: db.PointMerit, Content: "金額が明確で公平に分割できる"},
				{Type: db.PointDemerit, Content: "思い出のある不動産を手放すことになる"},
				{Type: db.PointCost, Content: "売却時の譲渡所得税と仲介手数料が発生する"},
				{Type: db.PointEffort, Content: "売却先の選定と名義整理の手続きが必要"},
			},
		},
		{
			Title:       "代償分割案",
			Content:     fmt.Sprintf("相続人の一人が%sを取得し、他の相続人へ代償金を支払う案です。", address),
			SupportRate: 55 - disagreed*5,
			Points: []GeneratedPoint{
				{Type: db.PointMerit, Content: "不動産を家族内に残せる"},
				{Type: db.PointDemerit, Content: "取得者にまとまった資金負担が生じる"},
				{Type: db.PointCost, Content: "代償金の原資と贈与税の検討が必要"},
				{Type: db.PointEffort, Content: "不動産鑑定と代償金額の合意形成が必要"},
			},
		},
		{
			Title:       "共有分割案",
			Content:     fmt.Sprintf("%sを相続人全員の共有名義とし、利用方法を協議し続ける案です。", address),
			SupportRate: 40 - disagreed*5,
			Points: []GeneratedPoint{
				{Type: db.PointMerit, Content: "当面の手続き負担が小さい"},
				{Type: db.PointDemerit, Content: "将来の処分に全員の同意が必要になる"},
				{Type: db.PointEffort, Content: "共有者間の管理ルールづくりが必要"},
			},
		},
	}
	for i := range proposals {
		if proposals[i].SupportRate < 0 {
			proposals[i].SupportRate = 0
		}
	}
	return proposals, nil
}

// CompareProposals scores each proposal from its support rate and point
// composition. Criteria share the base score; itemized merits and demerits
// nudge the first criterion so siblings with equal support still differ.
func (m *MockAI) CompareProposals(ctx context.Context, proposals []db.Proposal, criteria []string) (*ProposalComparison, error) {
	if len(criteria) == 0 {
		criteria = defaultComparisonCriteria
	}

	result := &ProposalComparison{Criteria: criteria}
	best := ""
	bestScore := -1
	for _, p := range proposals {
		base := 1 + p.SupportRate/25
		if base > 5 {
			base = 5
		}

		merits, demerits := 0, 0
		for _, pt := range p.Points {
			switch pt.Type {
			case db.PointMerit:
				merits++
			case db.PointDemerit:
				demerits++
			}
		}

		entry := ComparedProposal{ProposalID: p.ID, Title: p.Title, Scores: map[string]int{}}
		for i, criterion := range criteria {
			score := base
			if i == 0 {
				score += merits - demerits
			}
			if score < 1 {
				score = 1
			}
			if score > 5 {
				score = 5
			}
			entry.Scores[criterion] = score
			entry.TotalScore += score
		}
		result.Comparison = append(result.Comparison, entry)

		if entry.TotalScore > bestScore {
			bestScore = entry.TotalScore
			best = p.ID
		}
	}
	result.Recommendation = best
	return result, nil
}

// DraftAgreement composes a formulaic agreement document from the proposal.
func (m *MockAI) DraftAgreement(ctx context.Context, project *db.Project, proposal *db.Proposal) (*DraftedAgreement, error) {
	content := fmt.Sprintf(
		"被相続人に係る遺産の分割について、共同相続人全員は協議の結果、次のとおり合意した。\n\n"+
			"第1条 分割方針\n%s\n\n"+
			"第2条 本協議の成立\n本協議書に記載のない事項は、相続人全員の協議により定める。\n\n"+
			"以上の協議の成立を証するため、本協議書を作成し、相続人全員が署名する。",
		proposal.Content)
	return &DraftedAgreement{
		Title:   fmt.Sprintf("%s 遺産分割協議書", project.Title),
		Content: content,
	}, nil
}

// Reply returns an empathic canned response.
func (m *MockAI) Reply(ctx context.Context, history []db.Message, latest string) (string, error) {
	if strings.Contains(latest, "売却") || strings.Contains(latest, "売る") {
		return "売却をお考えなのですね。売却した場合の代金の分け方について、ご家族のお考えはいかがですか？", nil
	}
	if strings.Contains(latest, "住む") || strings.Contains(latest, "住み続け") {
		return "どなたかが住み続ける場合、他のご相続人への代償についてはどのようにお考えですか？", nil
	}
	return "お気持ちをお聞かせいただきありがとうございます。その点について、他のご家族はどのようにお考えでしょうか？", nil
}

// Analyze scores sentiment by keyword counting.
func (m *MockAI) Analyze(ctx context.Context, text, contextHint string) (*SentimentResult, error) {
	pos, neg := 0, 0
	for _, w := range positiveWords {
		pos += strings.Count(text, w)
	}
	for _, w := range negativeWords {
		neg += strings.Count(text, w)
	}
	score := 0.5
	if pos+neg > 0 {
		score = float64(pos) / float64(pos+neg)
	}
	return &SentimentResult{Score: score, IsPositive: score > 0.5}, nil
}

// MockTranscriber returns a canned transcript sized to the input clip.
type MockTranscriber struct{}

// NewMockTranscriber returns the stand-in speech-to-text backend.
func NewMockTranscriber() *MockTranscriber {
	return &MockTranscriber{}
}

// Transcribe implements Transcriber.
func (t *MockTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (*Transcript, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrValidation)
	}
	text := "実家は売却して、代金をきょうだいで分けるのがいいと思っています。"
	if len(audio) > 64*1024 {
		text = "実家には思い出が多いので、できれば残したい気持ちもありますが、固定資産税の負担も心配です。"
	}
	return &Transcript{Text: text, Confidence: 0.92}, nil
}
