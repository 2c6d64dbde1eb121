package speech

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/SluiooktueSvg/ia/internal/config"
	"github.com/SluiooktueSvg/ia/pkg/logging"
)

// Service synthesizes assistant replies to audio. The result is returned as a
// data: URL so the frontend can feed it straight into an <audio> element and
// the whole turn, audio included, survives a JSON round-trip through storage.
type Service struct {
	cfg    config.SpeechConfig
	client *volcengineTTSClient
}

// NewService creates the speech service.
func NewService(cfg config.SpeechConfig) *Service {
	return &Service{
		cfg:    cfg,
		client: newVolcengineTTSClient(cfg),
	}
}

// Synthesize converts text to speech and returns a playable data URL.
func (s *Service) Synthesize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("tts text is empty")
	}
	if !s.cfg.Enabled {
		return "", fmt.Errorf("speech service is not configured")
	}

	audio, err := s.client.synthesize(ctx, text)
	if err != nil {
		return "", err
	}

	logging.L().Info("synthesized speech",
		zap.Int("text_len", len(text)),
		zap.Int("audio_bytes", len(audio)))

	return "data:audio/mp3;base64," + base64.StdEncoding.EncodeToString(audio), nil
}
