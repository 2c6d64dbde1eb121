// Package session orchestrates a single conversational session: it turns one
// user utterance into a persisted multi-facet chat turn by sequencing the
// sentiment, completion, and speech collaborators around the message store.
package session

import (
	"context"

	"github.com/SluiooktueSvg/ia/internal/model/chat"
)

// SentimentAnalyzer classifies the sentiment of a piece of text.
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, text string) (string, error)
}

// CompletionService generates the assistant reply for the user's latest
// message. History holds every turn prior to the current input.
type CompletionService interface {
	Generate(ctx context.Context, history []chat.HistoryEntry, userInput, userSentiment string) (string, error)
}

// SpeechSynthesizer converts text to a playable audio URL.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Persistence is the durable slot for the session log and the sticky
// chat-exhaustion flag. Implementations never fail loudly; errors degrade to
// "nothing persisted".
type Persistence interface {
	SaveTurns(turns []chat.Turn)
	LoadTurns() []chat.Turn
	ClearTurns()
	SetQuotaFlag()
	QuotaFlag() bool
	ClearQuotaFlag()
}

// Player receives audio that should be played to the user.
type Player interface {
	Play(turn chat.Turn)
}

// QuotaState is the snapshot of both exhaustion flags exposed to the UI.
type QuotaState struct {
	ChatExhausted   bool `json:"chatExhausted"`
	SpeechExhausted bool `json:"speechExhausted"`
}
