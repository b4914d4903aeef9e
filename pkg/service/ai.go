// AI collaborator contracts and the chat-model backed implementation
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aigree/aigree/pkg/config"
	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/utils"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"google.golang.org/genai"
)

// ========== Collaborator payloads ==========

// ExtractedIssue is one issue returned by the extraction collaborator.
type ExtractedIssue struct {
	Topic          string `json:"topic"`
	Content        string `json:"content"`
	Classification string `json:"classification"`
}

// GeneratedPoint is one itemized point on a generated proposal.
type GeneratedPoint struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// GeneratedProposal is one proposal returned by the generation collaborator.
type GeneratedProposal struct {
	Title       string           `json:"title"`
	Content     string           `json:"description"`
	SupportRate int              `json:"support_rate"`
	Points      []GeneratedPoint `json:"points"`
}

// DraftedAgreement is the drafter's synthesized agreement document.
type DraftedAgreement struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ComparedProposal is one proposal's scoring in a comparison run. Scores are
// 1 to 5 per criterion, 5 best.
type ComparedProposal struct {
	ProposalID string         `json:"proposal_id"`
	Title      string         `json:"title"`
	Scores     map[string]int `json:"scores"`
	TotalScore int            `json:"total_score"`
}

// ProposalComparison is the comparator's verdict over a proposal set.
// Recommendation names the proposal id that scored best overall.
type ProposalComparison struct {
	Criteria       []string           `json:"criteria"`
	Comparison     []ComparedProposal `json:"comparison"`
	Recommendation string             `json:"recommendation"`
}

// defaultComparisonCriteria are applied when the caller names none.
var defaultComparisonCriteria = []string{"公平性", "手続きの容易さ", "現金化", "不動産維持"}

// SentimentResult is the classifier's verdict on one utterance.
type SentimentResult struct {
	Score      float64 `json:"sentiment_score"` // 0.0 (negative) .. 1.0 (positive)
	IsPositive bool    `json:"is_positive"`
}

// Transcript is the speech-to-text result for one audio clip.
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// ========== Collaborator interfaces ==========

// IssueExtractor derives discussion issues from one member's message log.
type IssueExtractor interface {
	ExtractIssues(ctx context.Context, messages []db.Message) ([]ExtractedIssue, error)
}

// ProposalGenerator produces division proposals from a member's issue set
// plus estate reference data.
type ProposalGenerator interface {
	GenerateProposals(ctx context.Context, issues []db.Issue, estates []db.Estate) ([]GeneratedProposal, error)
}

// AgreementDrafter synthesizes the agreement document from a chosen proposal.
type AgreementDrafter interface {
	DraftAgreement(ctx context.Context, project *db.Project, proposal *db.Proposal) (*DraftedAgreement, error)
}

// ProposalComparator scores a set of proposals against comparison criteria
// and picks the recommended one.
type ProposalComparator interface {
	CompareProposals(ctx context.Context, proposals []db.Proposal, criteria []string) (*ProposalComparison, error)
}

// Responder produces the conversational AI reply to the latest utterance.
type Responder interface {
	Reply(ctx context.Context, history []db.Message, latest string) (string, error)
}

// SentimentAnalyzer classifies one utterance.
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, text, contextHint string) (*SentimentResult, error)
}

// Transcriber converts recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (*Transcript, error)
}

// ========== Chat-model backed implementation ==========

// AIService implements the text-generation collaborators on top of a single
// eino chat model. All prompts demand bare JSON; models that wrap output in
// markdown fences are tolerated.
type AIService struct {
	chatModel einoModel.BaseChatModel
	logger    *slog.Logger
}

// NewAIService builds the production collaborator set for the configured
// provider. Provider "mock" is handled by the caller (see MockAI).
func NewAIService(ctx context.Context, cfg *config.AppConfig) (*AIService, error) {
	chatModel, err := newChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &AIService{chatModel: chatModel, logger: utils.GetLogger()}, nil
}

func newChatModel(ctx context.Context, cfg *config.AppConfig) (einoModel.BaseChatModel, error) {
	switch cfg.Provider() {
	case "openai":
		chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL(),
			APIKey:  cfg.APIKey(),
			Model:   cfg.Model(),
		})
		if err != nil {
			return nil, errors.Wrap(err, "create OpenAI model")
		}
		return chatModel, nil

	case "gemini":
		genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey(),
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create Gemini client")
		}
		chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client: genaiClient,
			Model:  cfg.Model(),
		})
		if err != nil {
			return nil, errors.Wrap(err, "create Gemini model")
		}
		return chatModel, nil

	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider())
	}
}

// generateJSON runs one prompt and unmarshals the JSON payload into out.
func (s *AIService) generateJSON(ctx context.Context, prompt string, out any) error {
	output, err := s.chatModel.Generate(ctx, []*schema.Message{
		{Role: schema.User, Content: prompt},
	})
	if err != nil {
		return errors.Wrap(err, "chat model generate")
	}
	raw := extractJSON(output.Content)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return errors.Wrapf(err, "parse model response as JSON: %q", truncate(raw, 200))
	}
	return nil
}

// extractJSON strips an optional markdown code fence around a JSON payload.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```json"); i >= 0 {
		text = text[i+len("```json"):]
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
		return strings.TrimSpace(text)
	}
	if i := strings.Index(text, "```"); i >= 0 {
		text = text[i+len("```"):]
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
		return strings.TrimSpace(text)
	}
	return text
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ExtractIssues implements IssueExtractor.
func (s *AIService) ExtractIssues(ctx context.Context, messages []db.Message) ([]ExtractedIssue, error) {
	var sb strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&sb, "%s: %s\n", m.Speaker, m.Content)
	}

	prompt := fmt.Sprintf(`あなたは遺産相続に関する論点抽出AIアシスタントです。以下の会話から遺産相続に関する主要な論点を抽出し、JSONフォーマットで結果を返してください。

会話:
%s

各論点について以下を含めてください：
1. topic: 論点の分類（例：「実家」「預貯金」「相続税」）
2. content: 論点の詳細説明
3. classification: "agreed"（合意済み）、"discussing"（協議中）、"disagreed"（意見対立）のいずれか

レスポンスは必ず以下のJSON形式で返してください：
{"issues": [{"topic": "...", "content": "...", "classification": "discussing"}]}

抽出する論点数は2〜5個程度が理想的です。説明などは不要です。JSONのみを返してください。`, sb.String())

	var result struct {
		Issues []ExtractedIssue `json:"issues"`
	}
	if err := s.generateJSON(ctx, prompt, &result); err != nil {
		return nil, err
	}
	return result.Issues, nil
}

// GenerateProposals implements ProposalGenerator.
func (s *AIService) GenerateProposals(ctx context.Context, issues []db.Issue, estates []db.Estate) ([]GeneratedProposal, error) {
	var sb strings.Builder
	for i, issue := range issues {
		fmt.Fprintf(&sb, "論点%d: %s - %s (状態: %s)\n", i+1, issue.Topic, issue.Content, issue.Classification)
	}

	estateText := "不動産データ: 詳細なデータなし"
	if len(estates) > 0 {
		var parts []string
		for _, e := range estates {
			item := e.Address
			if e.TaxValuation != nil {
				item += fmt.Sprintf("（固定資産税評価額 %d円）", *e.TaxValuation)
			}
			if e.FinancialAssets != nil {
				item += fmt.Sprintf("（金融資産 %d円）", *e.FinancialAssets)
			}
			parts = append(parts, item)
		}
		estateText = "不動産データ: " + strings.Join(parts, ", ")
	}

	prompt := fmt.Sprintf(`あなたは遺産相続の専門家AIアシスタントです。以下の論点と情報に基づいて、最適な遺産分割の提案を絶対に1〜3件だけ生成し、JSONフォーマットで結果を返してください。

論点情報:
%s

%s

各提案に以下を含めてください：
1. title: 提案の短いタイトル
2. description: 提案の詳細説明
3. points: メリット・デメリット等のポイント（typeは merit, demerit, cost, effort のいずれか）
4. support_rate: 想定される支持率（0〜100の整数）

必ずsupport_rateが高い順に並べて返してください。レスポンスは必ず以下のJSON形式で返してください（3件まで）：
{"proposals": [{"title": "...", "description": "...", "points": [{"type": "merit", "content": "..."}], "support_rate": 80}]}

遺産相続において公平性と各人の事情を考慮した提案をしてください。説明などは不要です。JSONのみを返してください。`, sb.String(), estateText)

	var result struct {
		Proposals []GeneratedProposal `json:"proposals"`
	}
	if err := s.generateJSON(ctx, prompt, &result); err != nil {
		return nil, err
	}
	return result.Proposals, nil
}

// CompareProposals implements ProposalComparator.
func (s *AIService) CompareProposals(ctx context.Context, proposals []db.Proposal, criteria []string) (*ProposalComparison, error) {
	if len(criteria) == 0 {
		criteria = defaultComparisonCriteria
	}

	var sb strings.Builder
	for _, p := range proposals {
		var points []string
		for _, pt := range p.Points {
			points = append(points, pt.Content)
		}
		fmt.Fprintf(&sb, "提案ID: %s\nタイトル: %s\n説明: %s\nポイント: %s\n\n",
			p.ID, p.Title, p.Content, strings.Join(points, ", "))
	}

	prompt := fmt.Sprintf(`あなたは遺産相続の専門家AIアシスタントです。以下の複数の遺産分割提案を比較分析し、JSONフォーマットで結果を返してください。

複数の提案:
%s
比較基準:
%s

各提案について、各比較基準に対して1〜5のスコアを付けてください（5が最高評価）。
また、総合スコアとそれに基づく最も推奨される提案も特定してください。

レスポンスは必ず以下のJSON形式で返してください：
{"comparison": [{"proposal_id": "提案のID", "title": "提案のタイトル", "scores": {"比較基準": 3}, "total_score": 12}], "criteria": ["比較基準"], "recommendation": "最も推奨される提案のID"}

説明などは不要です。JSONのみを返してください。`, sb.String(), strings.Join(criteria, ", "))

	var result ProposalComparison
	if err := s.generateJSON(ctx, prompt, &result); err != nil {
		return nil, err
	}
	if len(result.Comparison) == 0 || result.Recommendation == "" {
		return nil, errors.New("comparator response misses required fields")
	}
	if len(result.Criteria) == 0 {
		result.Criteria = criteria
	}
	return &result, nil
}

// DraftAgreement implements AgreementDrafter.
func (s *AIService) DraftAgreement(ctx context.Context, project *db.Project, proposal *db.Proposal) (*DraftedAgreement, error) {
	prompt := fmt.Sprintf(`あなたは遺産分割協議書の作成を支援するAIアシスタントです。以下の分割案に基づいて、遺産分割協議書のタイトルと本文を作成し、JSONフォーマットで返してください。

案件: %s
分割案タイトル: %s
分割案内容:
%s

レスポンスは必ず以下のJSON形式で返してください：
{"title": "遺産分割協議書のタイトル", "content": "協議書の本文"}

正式な協議書として通用する丁寧な文体で作成してください。説明などは不要です。JSONのみを返してください。`,
		project.Title, proposal.Title, proposal.Content)

	var result DraftedAgreement
	if err := s.generateJSON(ctx, prompt, &result); err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.Content) == "" {
		return nil, errors.New("drafter returned empty content")
	}
	return &result, nil
}

// Reply implements Responder.
func (s *AIService) Reply(ctx context.Context, history []db.Message, latest string) (string, error) {
	messages := []*schema.Message{
		{Role: schema.System, Content: "あなたは遺産相続の相談に乗るAI相談員です。共感的に、簡潔に日本語で応答し、相談者の考えを引き出す質問を添えてください。"},
	}
	// Recent turns only; the full log can be long.
	start := 0
	if len(history) > 10 {
		start = len(history) - 10
	}
	for _, m := range history[start:] {
		role := schema.User
		if m.AuthorUserID == nil {
			role = schema.Assistant
		}
		messages = append(messages, &schema.Message{Role: role, Content: m.Content})
	}
	messages = append(messages, &schema.Message{Role: schema.User, Content: latest})

	output, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", errors.Wrap(err, "chat model generate")
	}
	reply := strings.TrimSpace(output.Content)
	if reply == "" {
		return "", errors.New("responder returned empty reply")
	}
	return reply, nil
}

// Analyze implements SentimentAnalyzer.
func (s *AIService) Analyze(ctx context.Context, text, contextHint string) (*SentimentResult, error) {
	if contextHint == "" {
		contextHint = "遺産相続に関する会話"
	}
	prompt := fmt.Sprintf(`あなたは感情分析AIアシスタントです。以下のテキストの感情を分析し、JSONフォーマットで結果を返してください。

コンテキスト: %s
テキスト: %s

レスポンスは必ず以下のJSON形式で返してください：
{"sentiment_score": 0.0から1.0の数値, "is_positive": trueまたはfalse}

説明などは不要です。JSONのみを返してください。`, contextHint, text)

	var result SentimentResult
	if err := s.generateJSON(ctx, prompt, &result); err != nil {
		return nil, err
	}
	if result.Score < 0 {
		result.Score = 0
	}
	if result.Score > 1 {
		result.Score = 1
	}
	return &result, nil
}

// SentimentClass converts a classifier result into a stored sentiment label.
func SentimentClass(r *SentimentResult) string {
	switch {
	case r == nil:
		return ""
	case r.Score >= 0.6:
		return db.SentimentPositive
	case r.Score <= 0.4:
		return db.SentimentNegative
	default:
		return db.SentimentNeutral
	}
}
