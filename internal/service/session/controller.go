package session

import (
	"context"
	"errors"
	"time"

	"github.com/SluiooktueSvg/ia/internal/config"
	"github.com/SluiooktueSvg/ia/internal/model/chat"
	chatstore "github.com/SluiooktueSvg/ia/internal/service/chat"
	"github.com/SluiooktueSvg/ia/internal/service/quota"
)

var (
	// ErrTurnNotFound is returned for on-demand actions against a missing id.
	ErrTurnNotFound = errors.New("turn not found")
	// ErrSpeechQuotaExhausted signals the expected daily-limit condition; the
	// UI should show a gentle notice, not an alarm.
	ErrSpeechQuotaExhausted = errors.New("speech quota exhausted for this session")
	// ErrNoAudioForUserTurn rejects audio generation for user turns.
	ErrNoAudioForUserTurn = errors.New("audio is only available for assistant turns")
)

// Controller is the façade a UI binds to. Every mutation funnels through the
// message store, which stays the single source of truth for the reactive log.
// Controllers are self-contained; independent instances can coexist.
type Controller struct {
	store       *chatstore.Store
	persistence Persistence
	guard       *quota.Guard
	pipeline    *Pipeline
	gate        *PlaybackGate
	player      Player

	autosaveCancel func()
	autosaveDone   chan struct{}
}

// NewController assembles a session around the given collaborators. player
// may be nil when no playback sink exists (e.g. headless tests).
func NewController(
	persistence Persistence,
	sentiment SentimentAnalyzer,
	completion CompletionService,
	speech SpeechSynthesizer,
	player Player,
	cfg config.SessionConfig,
) *Controller {
	store := chatstore.NewStore()
	guard := quota.NewGuard(persistence)
	pipeline := NewPipeline(store, guard, sentiment, completion, speech, cfg)

	c := &Controller{
		store:       store,
		persistence: persistence,
		guard:       guard,
		pipeline:    pipeline,
		gate:        NewPlaybackGate(store, player),
		player:      player,
	}
	c.startAutosave(cfg.AutosaveDebounce)
	return c
}

// SendMessage runs one user turn through the pipeline.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	return c.pipeline.Send(ctx, text)
}

// ClearChat empties the log, drops the persisted session, and resets both
// quota flags. Calling it twice yields the same end state as calling it once.
func (c *Controller) ClearChat() {
	c.store.Clear()
	c.persistence.ClearTurns()
	c.guard.Reset()
	c.pipeline.setFirstMessageSent(false)
}

// SaveChat forces a full-log write, bypassing the autosave debounce.
func (c *Controller) SaveChat() {
	c.persistence.SaveTurns(c.store.All())
}

// LoadChat hydrates the session from persistence. Every loaded turn is
// stamped as already played so history never autoplays, and assistant turns
// lacking a resolved sentiment get their sentiment sub-task re-issued.
func (c *Controller) LoadChat(ctx context.Context) {
	turns := c.persistence.LoadTurns()

	hydrated := make([]chat.Turn, len(turns))
	for i, t := range turns {
		t.HasPlayedAudio = true
		// Loading flags persisted mid-flight are stale; the backfill below
		// re-arms the sentiment track where needed.
		t.SentimentLoading = false
		t.AudioLoading = false
		hydrated[i] = t
	}
	c.store.Replace(hydrated)
	c.pipeline.setFirstMessageSent(len(hydrated) > 0)

	for _, t := range hydrated {
		if t.Sender == chat.SenderAI && t.Sentiment == "" && t.Text != "" {
			c.pipeline.spawnSentimentBackfill(ctx, t.ID, t.Text)
		}
	}
}

// Messages returns a snapshot of the ordered log.
func (c *Controller) Messages() []chat.Turn {
	return c.store.All()
}

// HasSentFirstMessage reports whether this session has ever accepted a send.
func (c *Controller) HasSentFirstMessage() bool {
	return c.pipeline.HasSentFirstMessage()
}

// Quota returns the current exhaustion flags.
func (c *Controller) Quota() QuotaState {
	return QuotaState{
		ChatExhausted:   c.guard.ChatExhausted(),
		SpeechExhausted: c.guard.SpeechExhausted(),
	}
}

// PlayAudio replays a turn's existing audio on demand, without touching the
// autoplay bookkeeping.
func (c *Controller) PlayAudio(id string) error {
	turn, ok := c.store.Get(id)
	if !ok {
		return ErrTurnNotFound
	}
	if turn.AudioURL == "" {
		return c.GenerateAudio(context.Background(), id)
	}
	if c.player != nil {
		c.player.Play(turn)
	}
	return nil
}

// GenerateAudio synthesizes audio on demand for an assistant turn that lacks
// it. While the speech quota is exhausted this is a policy no-op surfaced as
// ErrSpeechQuotaExhausted; already-resolved audio stays playable regardless.
func (c *Controller) GenerateAudio(ctx context.Context, id string) error {
	turn, ok := c.store.Get(id)
	if !ok {
		return ErrTurnNotFound
	}
	if turn.IsUser() {
		return ErrNoAudioForUserTurn
	}
	if turn.AudioURL != "" || turn.AudioLoading {
		return nil
	}
	if c.guard.SpeechExhausted() {
		return ErrSpeechQuotaExhausted
	}

	c.store.ReplaceByID(id, func(t chat.Turn) chat.Turn {
		t.AudioLoading = true
		return t
	})
	c.pipeline.spawnSpeechTask(ctx, id, turn.Text)
	return nil
}

// Subscribe exposes the store's mutation feed for reactive consumers.
func (c *Controller) Subscribe() (<-chan chatstore.Event, func()) {
	return c.store.Subscribe()
}

// Wait blocks until detached sub-tasks have settled.
func (c *Controller) Wait() {
	c.pipeline.Wait()
}

// Close stops the gate and the autosaver and drains in-flight sub-tasks.
func (c *Controller) Close() {
	c.autosaveCancel()
	<-c.autosaveDone
	c.gate.Close()
	c.pipeline.Wait()
}

// startAutosave debounces full-log writes behind store mutations. Nothing is
// written until the first message of the session has been sent.
func (c *Controller) startAutosave(debounce time.Duration) {
	events, cancel := c.store.Subscribe()
	c.autosaveCancel = cancel
	c.autosaveDone = make(chan struct{})

	go func() {
		defer close(c.autosaveDone)

		var timer *time.Timer
		var fire <-chan time.Time

		for {
			select {
			case _, ok := <-events:
				if !ok {
					if timer != nil && !timer.Stop() {
						<-timer.C
					}
					return
				}
				if !c.pipeline.HasSentFirstMessage() {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
					fire = timer.C
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(debounce)
				}
			case <-fire:
				timer = nil
				fire = nil
				c.persistence.SaveTurns(c.store.All())
			}
		}
	}()
}
