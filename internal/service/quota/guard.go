package quota

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/SluiooktueSvg/ia/pkg/logging"
)

// Classification is the outcome of the error heuristic. The collaborator
// services expose no structured codes, so the message text is the only signal.
type Classification string

const (
	RateLimit Classification = "rate_limit"
	Transient Classification = "transient"
)

// Classify inspects an error message for rate-limit markers. This is the one
// place the substring heuristic lives; call sites must not repeat it.
func Classify(err error) Classification {
	if err == nil {
		return Transient
	}
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "quota") {
		return RateLimit
	}
	return Transient
}

// FlagStore is the persisted slot backing the sticky chat-exhaustion flag.
type FlagStore interface {
	SetQuotaFlag()
	QuotaFlag() bool
	ClearQuotaFlag()
}

// Guard owns the two independent exhaustion flags: chat exhaustion is sticky
// and persisted across reloads, speech exhaustion lives only in memory and
// resets with the session.
type Guard struct {
	mu    sync.Mutex
	flags FlagStore

	chatExhausted   bool
	speechExhausted bool
}

// NewGuard builds a guard, restoring the persisted chat flag if a store is given.
func NewGuard(flags FlagStore) *Guard {
	g := &Guard{flags: flags}
	if flags != nil && flags.QuotaFlag() {
		g.chatExhausted = true
	}
	return g
}

// OnChatError records a completion failure. Rate limits become sticky and are
// persisted; transient failures are surfaced to the caller but not remembered.
func (g *Guard) OnChatError(err error) Classification {
	class := Classify(err)
	if class != RateLimit {
		return class
	}

	g.mu.Lock()
	g.chatExhausted = true
	g.mu.Unlock()

	if g.flags != nil {
		g.flags.SetQuotaFlag()
	}
	logging.L().Warn("chat quota exhausted", zap.Error(err))
	return class
}

// OnSpeechError records a synthesis failure. Rate limits set the session-scoped
// speech flag; already-resolved audio stays playable either way.
func (g *Guard) OnSpeechError(err error) Classification {
	class := Classify(err)
	if class != RateLimit {
		return class
	}

	g.mu.Lock()
	g.speechExhausted = true
	g.mu.Unlock()

	logging.L().Info("speech quota exhausted for this session", zap.Error(err))
	return class
}

// ChatExhausted reports whether sends must short-circuit.
func (g *Guard) ChatExhausted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.chatExhausted
}

// SpeechExhausted reports whether on-demand audio generation must short-circuit.
func (g *Guard) SpeechExhausted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.speechExhausted
}

// Reset clears both flags and the persisted slot.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.chatExhausted = false
	g.speechExhausted = false
	g.mu.Unlock()

	if g.flags != nil {
		g.flags.ClearQuotaFlag()
	}
}
