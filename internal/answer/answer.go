package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"archrag/config"
	"archrag/internal/retriever"
	"archrag/pkg/logger"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// NoEvidenceAnswer is returned verbatim when retrieval yields nothing.
const NoEvidenceAnswer = "No relevant passages were found in the document corpus for this question."

// Source describes where one piece of supporting context came from.
type Source struct {
	ID         int     `json:"source_id"`
	DocID      string  `json:"doc_id"`
	Category   string  `json:"category"`
	Page       int32   `json:"page"`
	Confidence float32 `json:"confidence"`
}

// Result is a synthesized answer with its supporting sources.
type Result struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// QuestionRecorder persists answered questions.
type QuestionRecorder interface {
	RecordQuestion(question, answer string) error
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}
type chatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}
type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// Ask runs the full answer flow: embed the question, search the vector
// store, build a grounded prompt and call the chat model.
func Ask(ctx context.Context, question string, topK int, category string, rec QuestionRecorder) (Result, error) {
	embedCtx, cancelEmbed := context.WithTimeout(ctx, 15*time.Second)
	defer cancelEmbed()
	vec, err := retriever.EmbedQuestion(embedCtx, question)
	if err != nil {
		logger.Error(err, "%v: embed question failed", config.ModuleQuery)
		return Result{}, err
	}

	searchCtx, cancelSearch := context.WithTimeout(ctx, 10*time.Second)
	defer cancelSearch()
	hits, err := retriever.Search(searchCtx, vec, topK, retriever.Filters{Category: category})
	if err != nil {
		logger.Error(err, "%v: search failed", config.ModuleQuery)
		return Result{}, err
	}

	if len(hits) == 0 {
		res := Result{Answer: NoEvidenceAnswer, Sources: []Source{}}
		record(rec, question, res.Answer)
		return res, nil
	}

	sysMsg, userMsg := BuildPrompt(question, hits)
	llmCtx, cancelLLM := context.WithTimeout(ctx, 60*time.Second)
	defer cancelLLM()
	text, err := callLLM(llmCtx, sysMsg, userMsg)
	if err != nil {
		logger.Error(err, "%v: chat completion failed", config.ModuleQuery)
		return Result{}, err
	}

	res := Result{Answer: text, Sources: make([]Source, 0, len(hits))}
	for i, h := range hits {
		res.Sources = append(res.Sources, Source{
			ID:         i + 1,
			DocID:      h.DocID,
			Category:   h.Category,
			Page:       h.Page,
			Confidence: h.Score,
		})
	}
	record(rec, question, res.Answer)
	return res, nil
}

func record(rec QuestionRecorder, question, answer string) {
	if rec == nil {
		return
	}
	if err := rec.RecordQuestion(question, answer); err != nil {
		logger.Error(err, "%v: persist question failed", config.ModuleQuery)
	}
}

// BuildPrompt assembles the system and user messages from the retrieved
// context. The model is told to answer only from the numbered references
// and to say so when they are insufficient.
func BuildPrompt(question string, hits []retriever.Hit) (systemMsg, userMsg string) {
	var b strings.Builder
	b.WriteString("You are an expert assistant for architecture research and building standards. ")
	b.WriteString("Answer strictly from the numbered references below. ")
	b.WriteString("Cite references as [N] where relevant. ")
	b.WriteString("If the references do not contain the answer, say so plainly instead of guessing.\n\n")
	b.WriteString("References:\n")
	for i, h := range hits {
		b.WriteString(fmt.Sprintf("[%d] (doc=%s, category=%s, page=%d)\n%s\n\n",
			i+1, h.DocID, h.Category, h.Page, sanitize(h.Content)))
	}
	systemMsg = b.String()
	userMsg = fmt.Sprintf("Question: %s\nAnswer comprehensively, citing the relevant references.", question)
	return
}

func sanitize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

func callLLM(ctx context.Context, promptSystem, promptUser string) (string, error) {
	client := openai.NewClient(option.WithAPIKey(config.Cfg.OpenAI.Key))
	req := chatRequest{
		Model:       config.Cfg.OpenAI.Model,
		Temperature: 0.2,
		MaxTokens:   1024,
		Messages: []chatMessage{
			{Role: "system", Content: promptSystem},
			{Role: "user", Content: promptUser},
		},
	}
	var out chatResponse
	if err := client.Post(ctx, "/chat/completions", req, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
