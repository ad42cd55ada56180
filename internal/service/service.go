package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"floor-oracle/internal/config"
	"floor-oracle/internal/fetcher"
	"floor-oracle/internal/floorcalc"
	"floor-oracle/internal/guard"
	"floor-oracle/internal/oracle"
	"floor-oracle/internal/storage"
)

// zeroTimestamp substitutes for a missing prior record; it sorts before any
// real store timestamp.
const zeroTimestamp = "0"

// Service runs one orchestration pass: refresh the coin price snapshot, then
// per collection load prior state, collect observations, derive and persist
// the canonical floor, and propagate it when the collection is ledger-linked.
type Service struct {
	repo       storage.PriceRepository
	coins      fetcher.CoinPriceFetcher
	floors     fetcher.FloorFetcher
	calc       floorcalc.Calculator
	propagator guard.Propagator
	submitter  oracle.Submitter
	logger     zerolog.Logger

	collections []config.CollectionConfig
	concurrent  bool

	propagations sync.WaitGroup
}

// New constructs the orchestration service.
func New(cfg *config.Config, repo storage.PriceRepository, coins fetcher.CoinPriceFetcher, floors fetcher.FloorFetcher, calc floorcalc.Calculator, propagator guard.Propagator, submitter oracle.Submitter, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		coins:       coins,
		floors:      floors,
		calc:        calc,
		propagator:  propagator,
		submitter:   submitter,
		logger:      logger.With().Str("component", "service").Logger(),
		collections: cfg.Collections,
		concurrent:  cfg.Providers.ConcurrentFetch,
	}
}

// RunPass executes one full pass over all configured collections. A returned
// error means a write-path persistence failure; the process must exit
// non-zero. Individual provider failures and propagation failures never
// surface here. Propagations run detached so one collection's retry cycle
// never delays another collection's writes; they are drained before RunPass
// returns so their alerts land before the process exits.
func (s *Service) RunPass(ctx context.Context) error {
	defer s.propagations.Wait()

	prices, err := s.refreshCoinSnapshot(ctx)
	if err != nil {
		return err
	}

	for _, collection := range s.collections {
		if err := s.processCollection(ctx, collection, prices); err != nil {
			return err
		}
	}

	return s.summarize(ctx)
}

// refreshCoinSnapshot loads the prior coin snapshot (degrading to zero on
// absence or error), fetches a fresh one, and persists it only when both
// coins were reported. An incomplete fetch keeps the prior values for the
// whole pass so derivations never mix snapshots.
func (s *Service) refreshCoinSnapshot(ctx context.Context) (fetcher.CoinPrices, error) {
	prior, found, err := s.repo.LastCoinPrice(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load previous coin prices; using zero snapshot")
	}
	if err != nil || !found {
		prior = storage.CoinPriceRecord{Timestamp: zeroTimestamp}
	}
	prices := fetcher.CoinPrices{ETH: prior.ETHPrice, SOL: prior.SOLPrice}

	fresh, err := s.coins.FetchCoinPrices(ctx)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Msg("coin price fetch failed; continuing with previous snapshot")
	case !fresh.Complete():
		s.logger.Warn().
			Str("eth", fresh.ETH.String()).
			Str("sol", fresh.SOL.String()).
			Msg("coin price fetch incomplete; nothing persisted, continuing with previous snapshot")
	default:
		if _, err := s.repo.SaveCoinPrice(ctx, fresh.ETH, fresh.SOL); err != nil {
			return fetcher.CoinPrices{}, fmt.Errorf("persist coin prices: %w", err)
		}
		prices = fresh
	}

	return prices, nil
}

func (s *Service) processCollection(ctx context.Context, collection config.CollectionConfig, prices fetcher.CoinPrices) error {
	prior, found, err := s.repo.LastCanonicalRecord(ctx, collection.Name)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("collection", collection.Name).
			Msg("failed to load prior canonical record; using zero state")
	}
	if err != nil || !found {
		prior = storage.CanonicalRecord{Collection: collection.Name, Timestamp: zeroTimestamp}
	}

	observations, err := s.collect(ctx, collection, prices)
	if err != nil {
		return err
	}

	floor := s.calc.Compute(observations, prior.OraclePrice, prior.Timestamp)
	s.logger.Info().
		Str("collection", collection.Name).
		Str("prior", prior.OraclePrice.String()).
		Int("observations", len(observations)).
		Str("floor", floor.String()).
		Msg("derived canonical floor")

	// Even an all-missing pass records a canonical value; the calculator's
	// carry-forward is itself state worth persisting.
	if _, err := s.repo.SaveCanonicalRecord(ctx, collection.Name, floor); err != nil {
		return fmt.Errorf("persist canonical floor for %q: %w", collection.Name, err)
	}

	if collection.Oracle != "" && s.propagator != nil && s.submitter != nil {
		oracleRef := collection.Oracle
		value := floor
		label := collection.DisplayName()
		s.propagations.Add(1)
		go func() {
			defer s.propagations.Done()
			s.propagator.Call(ctx, func(ctx context.Context) error {
				return s.submitter.SubmitOracleUpdate(ctx, oracleRef, value)
			}, label)
		}()
	}

	return nil
}

// collect fetches every configured provider floor for the collection and
// persists each non-missing result. Fetch failures are isolated per
// provider; persistence failures abort the pass.
func (s *Service) collect(ctx context.Context, collection config.CollectionConfig, prices fetcher.CoinPrices) ([]floorcalc.Observation, error) {
	if s.concurrent {
		return s.collectConcurrent(ctx, collection, prices)
	}

	observations := make([]floorcalc.Observation, 0, len(collection.Providers))
	for _, provider := range collection.Providers {
		value, ok, err := s.fetchOne(ctx, provider, collection.Name, prices)
		if err != nil {
			return nil, err
		}
		if ok {
			observations = append(observations, floorcalc.Observation{Provider: provider, Value: value})
		}
	}
	return observations, nil
}

func (s *Service) collectConcurrent(ctx context.Context, collection config.CollectionConfig, prices fetcher.CoinPrices) ([]floorcalc.Observation, error) {
	var mu sync.Mutex
	observations := make([]floorcalc.Observation, 0, len(collection.Providers))

	group, groupCtx := errgroup.WithContext(ctx)
	for _, provider := range collection.Providers {
		group.Go(func() error {
			value, ok, err := s.fetchOne(groupCtx, provider, collection.Name, prices)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				observations = append(observations, floorcalc.Observation{Provider: provider, Value: value})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return observations, nil
}

// fetchOne returns the persisted observation value, false when the provider
// had nothing credible or the fetch failed, and an error only when
// persistence failed.
func (s *Service) fetchOne(ctx context.Context, provider, collection string, prices fetcher.CoinPrices) (decimal.Decimal, bool, error) {
	value, ok, err := s.floors.FetchFloor(ctx, provider, collection, prices)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("collection", collection).
			Str("provider", provider).
			Msg("provider fetch failed; excluded from derivation")
		return decimal.Decimal{}, false, nil
	}
	if !ok {
		s.logger.Debug().
			Str("collection", collection).
			Str("provider", provider).
			Msg("provider floor missing; excluded from derivation")
		return decimal.Decimal{}, false, nil
	}

	if _, err := s.repo.SaveProviderObservation(ctx, provider, collection, value); err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("persist observation from %q for %q: %w", provider, collection, err)
	}
	return value, true, nil
}

// summarize re-reads what the pass stored and logs it, so a run can be
// audited without replaying it. Read failures here are fatal: they mean the
// store cannot confirm the state the pass just wrote.
func (s *Service) summarize(ctx context.Context) error {
	coin, found, err := s.repo.LastCoinPrice(ctx)
	if err != nil {
		return fmt.Errorf("read back coin prices: %w", err)
	}
	if found {
		s.logger.Info().
			Str("eth", coin.ETHPrice.String()).
			Str("sol", coin.SOLPrice.String()).
			Str("timestamp", coin.Timestamp).
			Msg("stored coin prices")
	}

	for _, collection := range s.collections {
		for _, provider := range collection.Providers {
			obs, found, err := s.repo.LastProviderObservation(ctx, provider, collection.Name)
			if err != nil {
				return fmt.Errorf("read back observation from %q for %q: %w", provider, collection.Name, err)
			}
			if !found {
				continue
			}
			s.logger.Info().
				Str("collection", collection.Name).
				Str("provider", provider).
				Str("floor", obs.Floor.String()).
				Msg("stored provider floor")
		}

		canonical, found, err := s.repo.LastCanonicalRecord(ctx, collection.Name)
		if err != nil {
			return fmt.Errorf("read back canonical record for %q: %w", collection.Name, err)
		}
		if found {
			s.logger.Info().
				Str("collection", collection.Name).
				Str("oracle_price", canonical.OraclePrice.String()).
				Msg("stored canonical floor")
		}
	}

	return nil
}
