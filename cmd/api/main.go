package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"

	"github.com/SluiooktueSvg/ia/internal/config"
	"github.com/SluiooktueSvg/ia/internal/handler"
	"github.com/SluiooktueSvg/ia/internal/handler/stream"
	chatModel "github.com/SluiooktueSvg/ia/internal/model/chat"
	"github.com/SluiooktueSvg/ia/internal/service/ai"
	"github.com/SluiooktueSvg/ia/internal/service/sentiment"
	"github.com/SluiooktueSvg/ia/internal/service/session"
	"github.com/SluiooktueSvg/ia/internal/service/speech"
	"github.com/SluiooktueSvg/ia/internal/storage"
	"github.com/SluiooktueSvg/ia/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logging.Sync()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Persistence degrades to in-memory when the storage file is unusable.
	var persistence session.Persistence
	boltStore, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Printf("warning: failed to open storage at %s: %v", cfg.Storage.Path, err)
		log.Println("continuing without persistence - session will not survive restarts")
		persistence = storage.Noop{}
	} else {
		defer boltStore.Close()
		persistence = boltStore
	}

	// Initialize AI completion service
	var (
		aiSvc      *ai.Service
		llm        model.ChatModel
		completion session.CompletionService
	)
	if cfg.AI.Enabled() {
		aiSvc, err = ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
		} else {
			llm = aiSvc.GetChatModel()
			completion = aiSvc
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("Ark credentials not configured, skipping AI initialization")
	}
	if completion == nil {
		completion = unavailableCompletion{}
	}

	// Sentiment falls back to the keyword heuristic when no model is available.
	sentimentSvc, err := sentiment.NewService(ctx, llm)
	if err != nil {
		log.Printf("warning: failed to initialize sentiment classifier: %v", err)
		sentimentSvc, _ = sentiment.NewService(ctx, nil)
	} else if sentimentSvc.Enabled() {
		log.Println("LLM sentiment classifier enabled")
	} else {
		log.Println("Sentiment running on keyword heuristics")
	}

	speechSvc := speech.NewService(cfg.Speech)
	if cfg.Speech.Enabled {
		log.Println("Speech service initialized successfully")
	} else {
		log.Println("Speech credentials not configured, synthesis will be skipped")
	}

	hub := stream.NewPlayerHub()
	controller := session.NewController(persistence, sentimentSvc, completion, speechSvc, hub, cfg.Session)
	defer controller.Close()

	// Hydrate the previous session; loaded turns never autoplay.
	controller.LoadChat(ctx)

	router := handler.NewRouter(controller, hub)

	startServer(ctx, cfg.Server, router)
}

// unavailableCompletion keeps the pipeline functional when no model is
// configured; every send surfaces a transient error.
type unavailableCompletion struct{}

func (unavailableCompletion) Generate(context.Context, []chatModel.HistoryEntry, string, string) (string, error) {
	return "", fmt.Errorf("ai service unavailable")
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Selene backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
