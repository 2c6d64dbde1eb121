package session

import (
	"go.uber.org/zap"

	"github.com/SluiooktueSvg/ia/internal/model/chat"
	chatstore "github.com/SluiooktueSvg/ia/internal/service/chat"
	"github.com/SluiooktueSvg/ia/pkg/logging"
)

// PlaybackGate observes store mutations and autoplays newly synthesized audio
// exactly once per turn. Turns hydrated from persistence are stamped as played
// before they reach the store, so a reload never re-triggers playback.
type PlaybackGate struct {
	store  *chatstore.Store
	player Player

	events <-chan chatstore.Event
	cancel func()
	done   chan struct{}
}

// NewPlaybackGate subscribes the gate to the store and starts watching.
func NewPlaybackGate(store *chatstore.Store, player Player) *PlaybackGate {
	events, cancel := store.Subscribe()
	gate := &PlaybackGate{
		store:  store,
		player: player,
		events: events,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go gate.run()
	return gate
}

// Close stops the gate.
func (g *PlaybackGate) Close() {
	g.cancel()
	<-g.done
}

func (g *PlaybackGate) run() {
	defer close(g.done)

	// Local bookkeeping guards against replaying a turn whose stamped flag
	// has not landed in the store yet (e.g. a sentiment replace arriving
	// between play and stamp).
	played := make(map[string]struct{})

	for event := range g.events {
		switch event.Type {
		case chatstore.EventClear:
			played = make(map[string]struct{})
		case chatstore.EventRemove:
			delete(played, event.Turn.ID)
		case chatstore.EventAppend, chatstore.EventReplace:
			g.maybePlay(event.Turn, played)
		}
	}
}

func (g *PlaybackGate) maybePlay(turn chat.Turn, played map[string]struct{}) {
	if turn.Sender != chat.SenderAI || turn.AudioURL == "" || turn.HasPlayedAudio {
		return
	}
	if _, done := played[turn.ID]; done {
		return
	}
	played[turn.ID] = struct{}{}

	if g.player != nil {
		g.player.Play(turn)
	}
	logging.L().Debug("autoplaying synthesized audio", zap.String("turn", turn.ID))

	g.store.ReplaceByID(turn.ID, func(t chat.Turn) chat.Turn {
		t.HasPlayedAudio = true
		return t
	})
}
