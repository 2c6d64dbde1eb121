package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/SluiooktueSvg/ia/internal/config"
	"github.com/SluiooktueSvg/ia/internal/model/chat"
	chatstore "github.com/SluiooktueSvg/ia/internal/service/chat"
	"github.com/SluiooktueSvg/ia/internal/service/quota"
	"github.com/SluiooktueSvg/ia/pkg/logging"
)

// FallbackCompletionText replaces an empty completion so the assistant turn
// never renders blank.
const FallbackCompletionText = "I'm not sure how to respond to that."

// Pipeline sequences one user turn through sentiment analysis and completion,
// then detaches the response-sentiment and speech sub-tasks. All shared-state
// writes funnel through the store's id-keyed replace, so a clear that races a
// sub-task degrades to a no-op.
type Pipeline struct {
	store      *chatstore.Store
	guard      *quota.Guard
	sentiment  SentimentAnalyzer
	completion CompletionService
	speech     SpeechSynthesizer
	cfg        config.SessionConfig

	inFlight         atomic.Bool
	firstMessageSent atomic.Bool
	subTasks         sync.WaitGroup
}

// NewPipeline wires the send pipeline to its collaborators.
func NewPipeline(
	store *chatstore.Store,
	guard *quota.Guard,
	sentiment SentimentAnalyzer,
	completion CompletionService,
	speech SpeechSynthesizer,
	cfg config.SessionConfig,
) *Pipeline {
	return &Pipeline{
		store:      store,
		guard:      guard,
		sentiment:  sentiment,
		completion: completion,
		speech:     speech,
		cfg:        cfg,
	}
}

// Send runs one user turn through the pipeline. Empty input, an exhausted
// chat quota, and an already-running send are policy no-ops, not errors; the
// only error returned is a completion failure, already classified by the
// quota guard and cleaned out of the log.
func (p *Pipeline) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if p.guard.ChatExhausted() {
		return nil
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer p.inFlight.Store(false)

	p.firstMessageSent.Store(true)

	// History is every turn prior to this one; the new user turn travels as
	// the current input, not duplicated into history.
	history := chat.HistoryView(p.store.All())

	userTurn := chat.NewUserTurn(text)
	p.store.Append(userTurn)

	userSentiment := p.analyzeInput(ctx, text)

	// The placeholder goes in before the completion call so the UI has an
	// anchor id to update.
	placeholder := chat.NewAssistantPlaceholder()
	p.store.Append(placeholder)

	completionText, err := p.generate(ctx, history, text, userSentiment)
	if err != nil {
		p.guard.OnChatError(err)
		p.store.RemoveByID(placeholder.ID)
		logging.L().Warn("completion failed", zap.Error(err))
		return err
	}

	finalText := strings.TrimSpace(completionText)
	if finalText == "" {
		finalText = FallbackCompletionText
	}

	p.store.ReplaceByID(placeholder.ID, func(t chat.Turn) chat.Turn {
		t.Text = finalText
		t.SentimentLoading = true
		t.AudioLoading = true
		return t
	})

	p.spawnSentimentTask(ctx, placeholder.ID, finalText)
	p.spawnSpeechTask(ctx, placeholder.ID, finalText)
	return nil
}

// HasSentFirstMessage reports whether any send has been accepted this session.
func (p *Pipeline) HasSentFirstMessage() bool {
	return p.firstMessageSent.Load()
}

func (p *Pipeline) setFirstMessageSent(sent bool) {
	p.firstMessageSent.Store(sent)
}

// Wait blocks until all detached sub-tasks have settled; used on shutdown and
// in tests.
func (p *Pipeline) Wait() {
	p.subTasks.Wait()
}

// analyzeInput runs sentiment on the raw user text. Failure is non-fatal:
// the completion proceeds without sentiment, and a rate-limited sentiment
// call is never a chat-quota event.
func (p *Pipeline) analyzeInput(ctx context.Context, text string) string {
	callCtx, cancel := p.timeoutCtx(ctx, p.cfg.SentimentTimeout)
	defer cancel()

	sentiment, err := p.sentiment.Analyze(callCtx, text)
	if err != nil {
		logging.L().Warn("input sentiment analysis failed, continuing without it", zap.Error(err))
		return ""
	}
	return sentiment
}

func (p *Pipeline) generate(ctx context.Context, history []chat.HistoryEntry, text, userSentiment string) (string, error) {
	callCtx, cancel := p.timeoutCtx(ctx, p.cfg.ChatTimeout)
	defer cancel()
	return p.completion.Generate(callCtx, history, text, userSentiment)
}

// spawnSentimentTask fetches the sentiment of an assistant reply in the
// background, converging on the store by turn id.
func (p *Pipeline) spawnSentimentTask(ctx context.Context, turnID, text string) {
	detached := context.WithoutCancel(ctx)
	p.subTasks.Add(1)
	go func() {
		defer p.subTasks.Done()

		callCtx, cancel := p.timeoutCtx(detached, p.cfg.SentimentTimeout)
		defer cancel()

		sentiment, err := p.sentiment.Analyze(callCtx, text)
		if err != nil {
			logging.L().Warn("response sentiment analysis failed", zap.String("turn", turnID), zap.Error(err))
			p.store.ReplaceByID(turnID, func(t chat.Turn) chat.Turn {
				t.SentimentLoading = false
				t.Error = appendError(t.Error, "Failed to analyze sentiment")
				return t
			})
			return
		}

		p.store.ReplaceByID(turnID, func(t chat.Turn) chat.Turn {
			t.Sentiment = sentiment
			t.SentimentLoading = false
			return t
		})
	}()
}

// spawnSpeechTask synthesizes audio for an assistant reply in the background.
func (p *Pipeline) spawnSpeechTask(ctx context.Context, turnID, text string) {
	detached := context.WithoutCancel(ctx)
	p.subTasks.Add(1)
	go func() {
		defer p.subTasks.Done()

		// A session whose speech quota is already exhausted skips the call;
		// the turn simply settles without audio.
		if p.guard.SpeechExhausted() {
			p.store.ReplaceByID(turnID, func(t chat.Turn) chat.Turn {
				t.AudioLoading = false
				return t
			})
			return
		}

		callCtx, cancel := p.timeoutCtx(detached, p.cfg.SpeechTimeout)
		defer cancel()

		audioURL, err := p.speech.Synthesize(callCtx, text)
		if err != nil {
			p.guard.OnSpeechError(err)
			logging.L().Warn("speech synthesis failed", zap.String("turn", turnID), zap.Error(err))
			p.store.ReplaceByID(turnID, func(t chat.Turn) chat.Turn {
				t.AudioLoading = false
				return t
			})
			return
		}

		p.store.ReplaceByID(turnID, func(t chat.Turn) chat.Turn {
			t.AudioURL = audioURL
			t.AudioLoading = false
			t.HasPlayedAudio = false
			return t
		})
	}()
}

// spawnSentimentBackfill re-issues the sentiment sub-task for a turn loaded
// from persistence without a resolved sentiment.
func (p *Pipeline) spawnSentimentBackfill(ctx context.Context, turnID, text string) {
	p.store.ReplaceByID(turnID, func(t chat.Turn) chat.Turn {
		t.SentimentLoading = true
		return t
	})
	p.spawnSentimentTask(ctx, turnID, text)
}

func (p *Pipeline) timeoutCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func appendError(existing, msg string) string {
	if existing == "" {
		return msg
	}
	return existing + "; " + msg
}
