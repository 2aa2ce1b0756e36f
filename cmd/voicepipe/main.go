// Command voicepipe is the main entry point for the voice pipeline server.
//
// It terminates two inbound media transports — a telephony media-stream
// WebSocket and a WebRTC peer connection — and runs every call through the
// same pipeline: decode, voice activity detection, utterance segmentation,
// transcription, conversation turn, synthesis, and reply playback.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lokv010/voiceagent-sub001/internal/config"
	"github.com/lokv010/voiceagent-sub001/internal/health"
	"github.com/lokv010/voiceagent-sub001/internal/observe"
	"github.com/lokv010/voiceagent-sub001/internal/pipeline"
	"github.com/lokv010/voiceagent-sub001/internal/resilience"
	"github.com/lokv010/voiceagent-sub001/internal/transcript"
	"github.com/lokv010/voiceagent-sub001/internal/transport/telephony"
	"github.com/lokv010/voiceagent-sub001/internal/transport/webrtcmedia"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/conversation"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/conversation/llmturn"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/conversation/memory"
	pgstore "github.com/lokv010/voiceagent-sub001/pkg/provider/conversation/postgres"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/stt"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/stt/deepgram"
	sttopenai "github.com/lokv010/voiceagent-sub001/pkg/provider/stt/openai"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/tts"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/tts/elevenlabs"
	ttsopenai "github.com/lokv010/voiceagent-sub001/pkg/provider/tts/openai"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/vad"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/vad/energy"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicepipe: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicepipe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voicepipe starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voicepipe",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Turn history store ────────────────────────────────────────────────────
	store, closeStore, err := buildTurnStore(ctx, cfg.Conversation)
	if err != nil {
		slog.Error("failed to open turn store", "err", err)
		return 1
	}
	defer closeStore()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, store)

	sttProvider, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		slog.Error("failed to create stt provider", "name", cfg.Providers.STT.Name, "err", err)
		return 1
	}
	ttsProvider, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		slog.Error("failed to create tts provider", "name", cfg.Providers.TTS.Name, "err", err)
		return 1
	}
	convProvider, err := reg.CreateConversation(cfg.Providers.LLM, cfg.Conversation)
	if err != nil {
		slog.Error("failed to create conversation provider", "name", cfg.Providers.LLM.Name, "err", err)
		return 1
	}
	vadEntry := cfg.Providers.VAD
	if vadEntry.Name == "" {
		vadEntry.Name = "energy"
	}
	vadEngine, err := reg.CreateVAD(vadEntry)
	if err != nil {
		slog.Error("failed to create vad engine", "name", vadEntry.Name, "err", err)
		return 1
	}

	// Circuit breakers around every remote collaborator. With a single
	// backend per kind the breaker sheds load during provider outages
	// instead of hammering a failing API on every utterance.
	fbCfg := resilience.FallbackConfig{}
	sttGuarded := resilience.NewSTTFallback(sttProvider, cfg.Providers.STT.Name, fbCfg)
	ttsGuarded := resilience.NewTTSFallback(ttsProvider, cfg.Providers.TTS.Name, fbCfg)
	convGuarded := resilience.NewConversationFallback(convProvider, cfg.Providers.LLM.Name, fbCfg)

	// ── Transcript corrector ──────────────────────────────────────────────────
	var corrector pipeline.Corrector
	if len(cfg.Conversation.Vocabulary) > 0 {
		corrector = transcript.NewCorrector(cfg.Conversation.Vocabulary)
		slog.Info("transcript corrector enabled", "vocabulary_terms", len(cfg.Conversation.Vocabulary))
	}

	// ── Pipeline manager ──────────────────────────────────────────────────────
	manager, err := pipeline.NewManager(pipeline.ManagerConfig{
		VAD:                vadEngine,
		STT:                sttGuarded,
		Conversation:       convGuarded,
		TTS:                ttsGuarded,
		Corrector:          corrector,
		Voice:              cfg.Conversation.Voice,
		FallbackPhrase:     cfg.Conversation.FallbackPhrase,
		SpeechThreshold:    cfg.Pipeline.SpeechThreshold,
		SilenceHold:        time.Duration(cfg.Pipeline.SilenceHoldMs) * time.Millisecond,
		MaxUtterance:       time.Duration(cfg.Pipeline.MaxUtteranceMs) * time.Millisecond,
		MinUtteranceFrames: cfg.Pipeline.MinUtteranceFrames,
		FrameQueue:         cfg.Pipeline.FrameQueue,
		Metrics:            metrics,
	})
	if err != nil {
		slog.Error("failed to create pipeline manager", "err", err)
		return 1
	}
	defer manager.Close()

	// ── HTTP routes ───────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.Handle("/v1/telephony/stream", telephony.NewHandler(manager))
	mux.Handle("/v1/webrtc/offer", webrtcmedia.NewHandler(manager, cfg.WebRTC.ICEServers))
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(readinessChecks(cfg, manager)...).Register(mux)

	handler := observe.Middleware(metrics)(mux)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(cfg, addr)

	// ── Serve ─────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if cfg.Server.TLS != nil {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("server ready — press Ctrl+C to shut down", "addr", addr)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// The conversation factories capture the turn store, which main owns.
func registerBuiltinProviders(reg *config.Registry, store conversation.Store) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.Model != "" {
			opts = append(opts, sttopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, sttopenai.WithLanguage(lang))
		}
		return sttopenai.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.Model != "" {
			opts = append(opts, ttsopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		return ttsopenai.New(entry.APIKey, opts...)
	})

	// ── Conversation ──────────────────────────────────────────────────────────
	// All LLM backends go through llmturn; the backend name is the registry
	// key and the rest of the entry configures the any-llm client.
	for _, providerName := range config.ValidProviderNames["llm"] {
		reg.RegisterConversation(providerName, func(entry config.ProviderEntry, conv config.ConversationConfig) (conversation.Provider, error) {
			var backendOpts []anyllmlib.Option
			if entry.APIKey != "" {
				backendOpts = append(backendOpts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				backendOpts = append(backendOpts, anyllmlib.WithBaseURL(entry.BaseURL))
			}

			opts := []llmturn.Option{llmturn.WithBackendOptions(backendOpts...)}
			if conv.SystemPrompt != "" {
				opts = append(opts, llmturn.WithSystemPrompt(conv.SystemPrompt))
			}
			if conv.MaxHistoryTurns > 0 {
				opts = append(opts, llmturn.WithMaxHistory(conv.MaxHistoryTurns))
			}
			return llmturn.New(entry.Name, entry.Model, store, opts...)
		})
	}

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})
}

// buildTurnStore opens the configured conversation history backend. The
// returned close function is a no-op for the in-memory store.
func buildTurnStore(ctx context.Context, cfg config.ConversationConfig) (conversation.Store, func(), error) {
	if cfg.HistoryStore == config.HistoryPostgres {
		store, pool, err := pgstore.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("turn history store ready", "backend", "postgres")
		return store, pool.Close, nil
	}

	slog.Info("turn history store ready", "backend", "memory")
	return memory.New(cfg.MaxHistoryTurns), func() {}, nil
}

// readinessChecks assembles the /readyz probes. The pipeline check reports
// the session count; it fails only when the manager has been closed.
func readinessChecks(cfg *config.Config, manager *pipeline.Manager) []health.Checker {
	checks := []health.Checker{
		{
			Name: "pipeline",
			Check: func(context.Context) error {
				slog.Debug("readiness probe", "active_sessions", manager.ActiveSessions())
				return nil
			},
		},
	}
	if cfg.Conversation.HistoryStore == config.HistoryPostgres {
		dsn := cfg.Conversation.PostgresDSN
		checks = append(checks, health.Checker{
			Name: "postgres",
			Check: func(ctx context.Context) error {
				// A fresh short-lived pool keeps the probe independent of
				// the store's pool state.
				pool, err := pgxpool.New(ctx, dsn)
				if err != nil {
					return err
				}
				defer pool.Close()
				return pool.Ping(ctx)
			},
		})
	}
	return checks
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, addr string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        voicepipe — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	printProvider("History", string(cfg.Conversation.HistoryStore), "")
	fmt.Printf("║  Vocabulary terms: %-19d ║\n", len(cfg.Conversation.Vocabulary))
	fmt.Printf("║  ICE servers     : %-19d ║\n", len(cfg.WebRTC.ICEServers))
	fmt.Printf("║  Listen addr     : %-19s ║\n", addr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(default)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
