package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"floor-oracle/internal/alerting"
	"floor-oracle/internal/config"
	"floor-oracle/internal/fetcher"
	"floor-oracle/internal/floorcalc"
	"floor-oracle/internal/guard"
	"floor-oracle/internal/oracle"
	"floor-oracle/internal/service"
	"floor-oracle/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	exit func(int)
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		exit:   os.Exit,
	}
}

func (a *App) openStore() (*storage.Store, *storage.Repository, error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn is required")
	}

	normalizer := storage.NewNormalizer(a.Config.Query.Defaults)
	store := storage.NewStore(a.Config.Database.DSN, normalizer, a.Logger)
	repo := storage.NewRepository(store, a.Logger)
	return store, repo, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

// Run executes one orchestration pass. A non-nil return means the pass hit a
// write-path persistence failure and the process should exit non-zero.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.startWatchdog()

	store, repo, err := a.openStore()
	if err != nil {
		return err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	coins := fetcher.NewCoinFeed(fetcher.CoinFeedOptions{
		BaseURL:   a.Config.CoinFeed.BaseURL,
		Timeout:   a.Config.CoinFeed.RequestTimeout,
		UserAgent: a.Config.CoinFeed.UserAgent,
	}, a.Logger)

	floors := fetcher.NewFloor(fetcher.FloorOptions{
		Endpoints: a.Config.Providers.Endpoints,
		Timeout:   a.Config.Providers.RequestTimeout,
		UserAgent: a.Config.CoinFeed.UserAgent,
	}, a.Logger)

	propagator := guard.New(a.Config.Guard.Attempts, a.Config.Guard.Backoff, a.newNotifier(), a.Logger)

	var submitter oracle.Submitter
	if a.Config.LedgerLinked() {
		submitter = oracle.NewClient(oracle.Options{
			RPCURL:       a.Config.Ethereum.RPCURL,
			PrivateKey:   a.Config.Ethereum.PrivateKey,
			ChainID:      a.Config.Ethereum.ChainID,
			DecimalScale: a.Config.Ethereum.DecimalScale,
			GasLimit:     a.Config.Ethereum.GasLimit,
			Timeout:      a.Config.Ethereum.RequestTimeout,
		}, a.Logger)
	}

	svc := service.New(a.Config, repo, coins, floors, floorcalc.LowestCredible{}, propagator, submitter, a.Logger)

	a.Logger.Info().Int("collections", len(a.Config.Collections)).Msg("starting orchestration pass")
	if err := svc.RunPass(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("pass aborted")
		return err
	}

	a.Logger.Info().Msg("orchestration pass complete")
	return nil
}

// startWatchdog arms a blunt kill timer bounding worst-case hangs from stuck
// external calls. In-flight writes at that boundary may be lost.
func (a *App) startWatchdog() {
	ceiling := a.Config.Watchdog.Ceiling
	if ceiling <= 0 {
		return
	}
	time.AfterFunc(ceiling, func() {
		a.Logger.Error().Dur("ceiling", ceiling).Msg("watchdog ceiling reached; terminating")
		a.exit(1)
	})
}
