package chat

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies which side of the conversation produced a turn.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// PlaceholderText is shown while the completion for an assistant turn is pending.
const PlaceholderText = "Thinking..."

// Turn is one message in the conversation log. User turns are terminal as soon
// as they are appended; assistant turns start as placeholders and are replaced
// wholesale (never mutated in place) as the completion, sentiment, and audio
// sub-results arrive. The JSON layout matches the persisted session format.
type Turn struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	Sender           Sender `json:"sender"`
	Timestamp        int64  `json:"timestamp"`
	Sentiment        string `json:"sentiment,omitempty"`
	SentimentLoading bool   `json:"sentimentLoading,omitempty"`
	Error            string `json:"error,omitempty"`
	AudioURL         string `json:"audioUrl,omitempty"`
	AudioLoading     bool   `json:"audioLoading,omitempty"`
	HasPlayedAudio   bool   `json:"hasPlayedAudio,omitempty"`
}

// HistoryEntry is the reduced view of a prior turn sent to the completion service.
type HistoryEntry struct {
	IsUser bool   `json:"isUser"`
	Text   string `json:"text"`
}

// NewUserTurn builds a terminal user turn.
func NewUserTurn(text string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    SenderUser,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewAssistantPlaceholder builds the provisional assistant turn appended before
// the completion call so the UI has an anchor id to update.
func NewAssistantPlaceholder() Turn {
	return Turn{
		ID:               uuid.NewString(),
		Text:             PlaceholderText,
		Sender:           SenderAI,
		Timestamp:        time.Now().UnixMilli(),
		SentimentLoading: true,
	}
}

// IsUser reports whether the turn was produced by the user.
func (t Turn) IsUser() bool {
	return t.Sender == SenderUser
}

// Settled reports whether an assistant turn's sentiment and audio sub-tasks
// have both finished, resolved or failed.
func (t Turn) Settled() bool {
	return !t.SentimentLoading && !t.AudioLoading
}

// HistoryView reduces a slice of turns to the shape the completion service expects.
func HistoryView(turns []Turn) []HistoryEntry {
	if len(turns) == 0 {
		return nil
	}
	history := make([]HistoryEntry, 0, len(turns))
	for _, t := range turns {
		history = append(history, HistoryEntry{IsUser: t.IsUser(), Text: t.Text})
	}
	return history
}
