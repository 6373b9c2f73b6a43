package main

import (
	"RahimBot/internal/adapter/chat/twitch"
	"RahimBot/internal/adapter/telegram"
	"RahimBot/internal/adapter/trendstore"
	"RahimBot/internal/ai"
	"RahimBot/internal/app/dispatcher"
	"RahimBot/internal/app/scheduler"
	"RahimBot/internal/config"
	"RahimBot/internal/service/metrics"
	"RahimBot/internal/service/session"
	"RahimBot/internal/service/trends"
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

func main() {
	cfg := config.NewConfig()

	// В режиме дебага — человекочитаемые логи уровня Debug
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.DebugMode {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	sugar := logger.Sugar()
	//сброс буфера логгера
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, sugar); err != nil && !errors.Is(err, context.Canceled) {
		sugar.Errorw("Bot stopped with error", "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, sugar *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infow("Starting app",
		"DebugMode", cfg.DebugMode,
		"ChatModel", cfg.ChatModel,
		"TrendsBackend", cfg.Trends.Backend,
		"MaxHistory", cfg.Session.MaxHistory,
	)

	completer, classifier := newAIClients(cfg, sugar)
	m := metrics.New()

	cache := session.New(session.Options{
		MaxHistory:     cfg.Session.MaxHistory,
		DefaultDialect: cfg.Session.DefaultDialect,
		SystemPrompt:   cfg.Session.SystemPrompt,
		ReplyLabel:     cfg.Session.ReplyLabel,
		OnClassify:     m.ObserveClassification,
	}, classifier, sugar.Named("session"))

	store, closer, err := trendstore.Open(cfg.Trends)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			sugar.Warnw("Failed to close trend store", "error", err)
		}
	}()
	rotator, err := trends.New(ctx, store, sugar.Named("trends"))
	if err != nil {
		return err
	}
	sugar.Infow("Trends loaded", "categories", rotator.Categories())

	disp := dispatcher.New(cfg, cache, rotator, completer, m, sugar.Named("dispatcher"))

	janitor, err := scheduler.New(cache, cfg.Session.SweepSchedule, cfg.Session.IdleTTL, m, sugar.Named("janitor"))
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, m, sugar.Named("metrics"))
		if err := srv.Start(ctx); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 3)
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				sugar.Errorw("Component stopped", "component", name, "error", err)
				errCh <- err
				stop()
			}
		}()
	}

	spawn("janitor", janitor.Run)

	if cfg.Twitch.Enabled() {
		tw := twitch.Config{Username: cfg.Twitch.Username, OAuth: cfg.Twitch.OAuthToken, Channel: cfg.Twitch.Channel}
		spawn("twitch", func(ctx context.Context) error {
			return twitch.Run(ctx, sugar.Named("twitch"), tw, disp)
		})
	}

	if cfg.BotToken != "" {
		tg, err := telegram.New(cfg.BotToken, disp, sugar.Named("telegram"))
		if err != nil {
			stop()
			wg.Wait()
			return err
		}
		spawn("telegram", tg.Run)
	} else {
		sugar.Warnw("BOT_TOKEN not set, Telegram transport disabled")
	}

	<-ctx.Done()
	wg.Wait()
	sugar.Infow("App stopped")

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// newAIClients: без ключа в режиме дебага работаем на заглушке.
func newAIClients(cfg *config.Config, sugar *zap.SugaredLogger) (ai.Completer, ai.Classifier) {
	if cfg.OpenAIKey == "" && cfg.DebugMode {
		sugar.Warnw("OPENAI_API_KEY not set, using stub client")
		stub := ai.NewStubClient()
		return stub, stub
	}
	opts := []option.RequestOption{}
	if cfg.OpenAIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.OpenAIKey))
	}
	// без явного ключа клиент берёт OPENAI_API_KEY из окружения
	oClient := openai.NewClient(opts...)
	return ai.NewChatClient(&oClient, cfg.ChatModel, sugar.Named("openai")),
		ai.NewDialectClient(&oClient, cfg.DialectModel, sugar.Named("openai"))
}
