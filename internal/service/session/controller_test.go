package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SluiooktueSvg/ia/internal/config"
	"github.com/SluiooktueSvg/ia/internal/model/chat"
)

type controllerFixture struct {
	persistence *memPersistence
	sentiment   *stubSentiment
	completion  *stubCompletion
	speech      *stubSpeech
	player      *recordingPlayer
	controller  *Controller
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	f := &controllerFixture{
		persistence: &memPersistence{},
		sentiment:   &stubSentiment{label: "neutral"},
		completion:  &stubCompletion{reply: "hello there"},
		speech:      &stubSpeech{url: "data:audio/mp3;base64,AAAA"},
		player:      &recordingPlayer{},
	}
	f.controller = NewController(
		f.persistence,
		f.sentiment,
		f.completion,
		f.speech,
		f.player,
		config.SessionConfig{AutosaveDebounce: 10 * time.Millisecond},
	)
	t.Cleanup(f.controller.Close)
	return f
}

func TestControllerSendAndAutoplay(t *testing.T) {
	f := newControllerFixture(t)

	if err := f.controller.SendMessage(context.Background(), "hola"); err != nil {
		t.Fatalf("SendMessage returned %v", err)
	}
	f.controller.Wait()

	waitUntil(t, func() bool { return f.player.count() == 1 },
		"expected exactly one autoplay")

	waitUntil(t, func() bool {
		messages := f.controller.Messages()
		return len(messages) == 2 && messages[1].HasPlayedAudio
	}, "expected the assistant turn stamped as played")
}

func TestControllerAutosavePersistsAfterSend(t *testing.T) {
	f := newControllerFixture(t)

	if err := f.controller.SendMessage(context.Background(), "hola"); err != nil {
		t.Fatalf("SendMessage returned %v", err)
	}
	f.controller.Wait()

	waitUntil(t, func() bool {
		saved := f.persistence.saved()
		return len(saved) == 2 && saved[1].Text == "hello there"
	}, "expected the debounced autosave to persist both turns")
}

func TestControllerClearChatIsIdempotent(t *testing.T) {
	f := newControllerFixture(t)

	if err := f.controller.SendMessage(context.Background(), "hola"); err != nil {
		t.Fatalf("SendMessage returned %v", err)
	}
	f.controller.Wait()
	f.controller.SaveChat()
	f.persistence.SetQuotaFlag()

	f.controller.ClearChat()
	f.controller.ClearChat()

	if len(f.controller.Messages()) != 0 {
		t.Fatal("expected an empty log after clear")
	}
	if len(f.persistence.saved()) != 0 {
		t.Fatal("expected persistence cleared")
	}
	if f.persistence.QuotaFlag() {
		t.Fatal("expected the persisted quota flag cleared")
	}
	if f.controller.HasSentFirstMessage() {
		t.Fatal("expected hasSentFirstMessage reset")
	}
	q := f.controller.Quota()
	if q.ChatExhausted || q.SpeechExhausted {
		t.Fatal("expected both quota flags reset")
	}
}

func TestControllerLoadChatStampsPlayed(t *testing.T) {
	f := newControllerFixture(t)
	f.persistence.SaveTurns([]chat.Turn{
		{ID: "u1", Text: "hola", Sender: chat.SenderUser},
		{
			ID:           "a1",
			Text:         "hello there",
			Sender:       chat.SenderAI,
			Sentiment:    "positive",
			AudioURL:     "data:audio/mp3;base64,AAAA",
			AudioLoading: true,
		},
	})

	f.controller.LoadChat(context.Background())
	f.controller.Wait()

	messages := f.controller.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected 2 loaded turns, got %d", len(messages))
	}
	for _, m := range messages {
		if !m.HasPlayedAudio {
			t.Fatalf("loaded turn %s must be stamped as played", m.ID)
		}
		if m.SentimentLoading || m.AudioLoading {
			t.Fatalf("loaded turn %s must not carry stale loading flags", m.ID)
		}
	}
	if !f.controller.HasSentFirstMessage() {
		t.Fatal("a non-empty load must mark the first message as sent")
	}

	// Stamped turns never autoplay.
	time.Sleep(50 * time.Millisecond)
	if f.player.count() != 0 {
		t.Fatalf("loaded history must not autoplay, got %d plays", f.player.count())
	}
}

func TestControllerLoadChatEmpty(t *testing.T) {
	f := newControllerFixture(t)

	f.controller.LoadChat(context.Background())

	if len(f.controller.Messages()) != 0 {
		t.Fatal("expected an empty log")
	}
	if f.controller.HasSentFirstMessage() {
		t.Fatal("an empty load must not mark the first message as sent")
	}
}

func TestControllerLoadChatBackfillsSentiment(t *testing.T) {
	f := newControllerFixture(t)
	f.persistence.SaveTurns([]chat.Turn{
		{ID: "a1", Text: "hello there", Sender: chat.SenderAI},
	})

	f.controller.LoadChat(context.Background())
	f.controller.Wait()

	waitUntil(t, func() bool {
		messages := f.controller.Messages()
		return len(messages) == 1 && messages[0].Sentiment == "neutral" && !messages[0].SentimentLoading
	}, "expected the loaded assistant turn to regain its sentiment")
}

func TestControllerGenerateAudio(t *testing.T) {
	f := newControllerFixture(t)
	f.persistence.SaveTurns([]chat.Turn{
		{ID: "u1", Text: "hola", Sender: chat.SenderUser, Sentiment: "neutral"},
		{ID: "a1", Text: "hello there", Sender: chat.SenderAI, Sentiment: "neutral"},
	})
	f.controller.LoadChat(context.Background())
	f.controller.Wait()

	if err := f.controller.GenerateAudio(context.Background(), "missing"); !errors.Is(err, ErrTurnNotFound) {
		t.Fatalf("expected ErrTurnNotFound, got %v", err)
	}
	if err := f.controller.GenerateAudio(context.Background(), "u1"); !errors.Is(err, ErrNoAudioForUserTurn) {
		t.Fatalf("expected ErrNoAudioForUserTurn, got %v", err)
	}

	if err := f.controller.GenerateAudio(context.Background(), "a1"); err != nil {
		t.Fatalf("GenerateAudio returned %v", err)
	}
	f.controller.Wait()

	turn, _ := f.controller.store.Get("a1")
	if turn.AudioURL == "" || turn.AudioLoading {
		t.Fatalf("expected synthesized audio on the turn: %+v", turn)
	}

	// A second request finds the audio already resolved and does nothing.
	calls := f.speech.calls.Load()
	if err := f.controller.GenerateAudio(context.Background(), "a1"); err != nil {
		t.Fatalf("GenerateAudio returned %v", err)
	}
	if f.speech.calls.Load() != calls {
		t.Fatal("resolved audio must not be synthesized again")
	}
}

func TestControllerGenerateAudioWhileExhausted(t *testing.T) {
	f := newControllerFixture(t)
	f.persistence.SaveTurns([]chat.Turn{
		{ID: "a1", Text: "hello there", Sender: chat.SenderAI, Sentiment: "neutral"},
	})
	f.controller.LoadChat(context.Background())
	f.controller.Wait()
	f.controller.guard.OnSpeechError(errors.New("quota exceeded"))

	err := f.controller.GenerateAudio(context.Background(), "a1")
	if !errors.Is(err, ErrSpeechQuotaExhausted) {
		t.Fatalf("expected ErrSpeechQuotaExhausted, got %v", err)
	}
	if f.speech.calls.Load() != 0 {
		t.Fatal("speech must not be called while its quota is exhausted")
	}
}

func TestControllerPlayAudio(t *testing.T) {
	f := newControllerFixture(t)
	f.persistence.SaveTurns([]chat.Turn{
		{
			ID:        "a1",
			Text:      "hello there",
			Sender:    chat.SenderAI,
			Sentiment: "neutral",
			AudioURL:  "data:audio/mp3;base64,AAAA",
		},
	})
	f.controller.LoadChat(context.Background())
	f.controller.Wait()

	if err := f.controller.PlayAudio("a1"); err != nil {
		t.Fatalf("PlayAudio returned %v", err)
	}
	waitUntil(t, func() bool { return f.player.count() == 1 },
		"expected the existing audio replayed")

	if err := f.controller.PlayAudio("missing"); !errors.Is(err, ErrTurnNotFound) {
		t.Fatalf("expected ErrTurnNotFound, got %v", err)
	}
}

func TestControllerPlayAudioGeneratesWhenMissing(t *testing.T) {
	f := newControllerFixture(t)
	f.persistence.SaveTurns([]chat.Turn{
		{ID: "a1", Text: "hello there", Sender: chat.SenderAI, Sentiment: "neutral"},
	})
	f.controller.LoadChat(context.Background())
	f.controller.Wait()

	if err := f.controller.PlayAudio("a1"); err != nil {
		t.Fatalf("PlayAudio returned %v", err)
	}
	f.controller.Wait()

	turn, _ := f.controller.store.Get("a1")
	if turn.AudioURL == "" {
		t.Fatalf("expected audio synthesized on demand: %+v", turn)
	}
}
