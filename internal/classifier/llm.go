package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	infralogger "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultMaxTokens      = 512
	// Earlier turns beyond this are not sent.
	maxHistoryTurns = 10
)

var (
	errNoTextContent  = errors.New("no text content in response")
	errMalformedReply = errors.New("malformed classification reply")
)

// LLMConfig configures the Anthropic-backed classifier.
type LLMConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
	// BaseURL overrides the API endpoint. Empty uses the SDK default.
	BaseURL string
	// Categories, when set, restricts the model to these ids.
	Categories []string
}

// LLM classifies questions with the Anthropic Messages API.
type LLM struct {
	client     anthropic.Client
	model      string
	maxTokens  int64
	categories []string
	logger     infralogger.Logger
}

// NewLLM creates an LLM classifier. SDK retries are disabled; the Guard
// decides what a failure costs.
func NewLLM(cfg LLMConfig, logger infralogger.Logger) *LLM {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &LLM{
		client:     anthropic.NewClient(opts...),
		model:      model,
		maxTokens:  maxTokens,
		categories: cfg.Categories,
		logger:     logger,
	}
}

type llmReply struct {
	Categories []domain.CategoryScore `json:"categories"`
	Keywords   []string               `json:"keywords"`
}

// Classify asks the model for a JSON classification of question.
func (l *LLM) Classify(ctx context.Context, question string, history []domain.ChatMessage) (domain.Classification, error) {
	message, err := l.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(l.model),
		MaxTokens: l.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: l.systemPrompt()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(question, history))),
		},
	})
	if err != nil {
		return domain.Classification{}, fmt.Errorf("anthropic messages: %w", err)
	}

	for _, block := range message.Content {
		if block.Type != "text" {
			continue
		}
		l.logger.Debug("Classifier reply received",
			infralogger.Int("size", len(block.Text)),
			infralogger.Int64("tokens_in", message.Usage.InputTokens),
			infralogger.Int64("tokens_out", message.Usage.OutputTokens),
		)
		return parseReply(block.Text)
	}
	return domain.Classification{}, errNoTextContent
}

func (l *LLM) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You classify health questions for a pharmaceutical information service.\n")
	sb.WriteString("Reply with a single JSON object and nothing else:\n")
	sb.WriteString(`{"categories":[{"category_id":"<id>","confidence":<0..1>}],"keywords":["<keyword>"]}`)
	sb.WriteString("\nConfidences are independent relevance scores and need not sum to 1.\n")
	sb.WriteString("Use an empty categories list when no category applies.\n")
	if len(l.categories) > 0 {
		sb.WriteString("Allowed category ids: ")
		sb.WriteString(strings.Join(l.categories, ", "))
		sb.WriteString("\n")
	}
	return sb.String()
}

// userPrompt embeds earlier turns as a transcript ahead of the question.
func userPrompt(question string, history []domain.ChatMessage) string {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, msg := range history {
			fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String()
}

// parseReply extracts the outermost JSON object from text.
func parseReply(text string) (domain.Classification, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return domain.Classification{}, fmt.Errorf("%w: no JSON object", errMalformedReply)
	}

	var reply llmReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &reply); err != nil {
		return domain.Classification{}, fmt.Errorf("%w: %w", errMalformedReply, err)
	}

	return domain.Classification{
		Categories: normalizeCategories(reply.Categories),
		Keywords:   reply.Keywords,
	}, nil
}
