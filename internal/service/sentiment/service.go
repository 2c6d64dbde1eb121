package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	analysis "github.com/SluiooktueSvg/ia/internal/analysis/sentiment"
	"github.com/SluiooktueSvg/ia/pkg/logging"
)

// Service classifies the sentiment of a piece of text. When an LLM is
// available it runs a classifier chain; on any failure it falls back to the
// keyword heuristic, so Analyze degrades rather than erroring.
type Service struct {
	enabled    bool
	classifier compose.Runnable[map[string]any, *schema.Message]
	fallback   func(text string) analysis.Decision
}

// NewService builds the classifier. A nil chatModel yields a heuristic-only service.
func NewService(ctx context.Context, chatModel model.ChatModel) (*Service, error) {
	svc := &Service{
		enabled:  chatModel != nil,
		fallback: analysis.Analyze,
	}

	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage(classifierUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile sentiment classifier chain: %w", err)
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled reports whether the LLM classifier is active.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// Analyze returns the sentiment label for the text.
func (s *Service) Analyze(ctx context.Context, text string) (string, error) {
	if !s.Enabled() {
		return string(s.fallback(text).Sentiment), nil
	}

	msg, err := s.classifier.Invoke(ctx, map[string]any{"text": strings.TrimSpace(text)})
	if err != nil {
		logging.L().Warn("sentiment classifier invoke failed, using fallback", zap.Error(err))
		return string(s.fallback(text).Sentiment), nil
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return string(s.fallback(text).Sentiment), nil
	}

	label, err := parseClassifierOutput(msg.Content)
	if err != nil {
		logging.L().Warn("sentiment classifier output parse failed, using fallback", zap.Error(err))
		return string(s.fallback(text).Sentiment), nil
	}
	return label, nil
}

// parseClassifierOutput extracts the JSON object the model was asked to return.
func parseClassifierOutput(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return "", err
	}

	label := strings.ToLower(strings.TrimSpace(payload.Sentiment))
	switch label {
	case "positive", "negative", "neutral":
		return label, nil
	default:
		return "", fmt.Errorf("unexpected sentiment label %q", payload.Sentiment)
	}
}

type classifierPayload struct {
	Sentiment  string  `json:"sentiment"`
	Confidence float32 `json:"confidence"`
}

const classifierSystemPrompt = "You are a sentiment analyst. Read the text and decide its overall sentiment. " +
	"Return only a JSON object with the fields: sentiment (one of positive/negative/neutral) and " +
	"confidence (a number between 0 and 1). Do not output anything else."

const classifierUserPrompt = "Text to analyze:\n{text}\n\nReturn the JSON."
