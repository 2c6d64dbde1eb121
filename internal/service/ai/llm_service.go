package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/SluiooktueSvg/ia/internal/config"
	"github.com/SluiooktueSvg/ia/internal/model/chat"
	"github.com/SluiooktueSvg/ia/pkg/logging"
)

const systemPrompt = "You are Selene, an exceptionally friendly, empathetic, and highly informative AI assistant. " +
	"Answer the user's latest message warmly and clearly, in the language the user writes in, " +
	"keeping continuity with the conversation so far."

const historyLimit = 10

// Service generates assistant completions through an Ark-backed eino chain.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the completion chain.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chatModel: chatModel, chain: runnable}, nil
}

// GetChatModel exposes the underlying model so the sentiment classifier can
// reuse the same credentials and connection.
func (s *Service) GetChatModel() model.ChatModel {
	return s.chatModel
}

// Generate produces the assistant reply for the user's latest message given
// the reduced conversation history and, optionally, the detected sentiment of
// the user input.
func (s *Service) Generate(ctx context.Context, history []chat.HistoryEntry, userInput, userSentiment string) (string, error) {
	input := map[string]any{
		"system":  buildSystemPrompt(userSentiment),
		"history": buildHistoryMessages(history),
		"query":   userInput,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run completion chain: %w", err)
	}

	logging.L().Info("generated completion",
		zap.Int("history_len", len(history)),
		zap.Int("response_len", len(response.Content)))
	return response.Content, nil
}

func buildSystemPrompt(userSentiment string) string {
	sentiment := strings.TrimSpace(userSentiment)
	if sentiment == "" {
		return systemPrompt
	}

	var builder strings.Builder
	builder.WriteString(systemPrompt)
	builder.WriteString(fmt.Sprintf("\n\nThe user's message reads as %s.", sentiment))
	builder.WriteString(" Let that inform your tone without naming it explicitly.")
	return builder.String()
}

func buildHistoryMessages(history []chat.HistoryEntry) []*schema.Message {
	if len(history) == 0 {
		return nil
	}

	startIdx := 0
	if len(history) > historyLimit {
		startIdx = len(history) - historyLimit
	}

	messages := make([]*schema.Message, 0, len(history)-startIdx)
	for _, entry := range history[startIdx:] {
		if entry.IsUser {
			messages = append(messages, schema.UserMessage(entry.Text))
		} else {
			messages = append(messages, schema.AssistantMessage(entry.Text, nil))
		}
	}
	return messages
}
