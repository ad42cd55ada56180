package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"floor-oracle/internal/config"
	"floor-oracle/internal/fetcher"
	"floor-oracle/internal/floorcalc"
	"floor-oracle/internal/storage"
)

type fakeRepo struct {
	coin      storage.CoinPriceRecord
	coinFound bool
	coinErr   error

	canonical map[string]storage.CanonicalRecord
	// canonicalReadErrs makes the next N prior-state reads fail.
	canonicalReadErrs int

	savedObservations []storage.ProviderObservation
	savedCanonicals   []storage.CanonicalRecord
	savedCoins        []storage.CoinPriceRecord

	saveObservationErr error
	saveCanonicalErr   error
	saveCoinErr        error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{canonical: make(map[string]storage.CanonicalRecord)}
}

func (r *fakeRepo) LastCoinPrice(context.Context) (storage.CoinPriceRecord, bool, error) {
	return r.coin, r.coinFound, r.coinErr
}

func (r *fakeRepo) LastCanonicalRecord(_ context.Context, collection string) (storage.CanonicalRecord, bool, error) {
	if r.canonicalReadErrs > 0 {
		r.canonicalReadErrs--
		return storage.CanonicalRecord{}, false, errors.New("store unreachable")
	}
	rec, ok := r.canonical[collection]
	return rec, ok, nil
}

func (r *fakeRepo) LastProviderObservation(_ context.Context, provider, collection string) (storage.ProviderObservation, bool, error) {
	for i := len(r.savedObservations) - 1; i >= 0; i-- {
		obs := r.savedObservations[i]
		if obs.Provider == provider && obs.Collection == collection {
			return obs, true, nil
		}
	}
	return storage.ProviderObservation{}, false, nil
}

func (r *fakeRepo) SaveCoinPrice(_ context.Context, eth, sol decimal.Decimal) (int64, error) {
	if r.saveCoinErr != nil {
		return 0, r.saveCoinErr
	}
	r.savedCoins = append(r.savedCoins, storage.CoinPriceRecord{ETHPrice: eth, SOLPrice: sol})
	return int64(len(r.savedCoins)), nil
}

func (r *fakeRepo) SaveProviderObservation(_ context.Context, provider, collection string, floor decimal.Decimal) (int64, error) {
	if r.saveObservationErr != nil {
		return 0, r.saveObservationErr
	}
	r.savedObservations = append(r.savedObservations, storage.ProviderObservation{
		Collection: collection,
		Provider:   provider,
		Floor:      floor,
	})
	return int64(len(r.savedObservations)), nil
}

func (r *fakeRepo) SaveCanonicalRecord(_ context.Context, collection string, price decimal.Decimal) (int64, error) {
	if r.saveCanonicalErr != nil {
		return 0, r.saveCanonicalErr
	}
	rec := storage.CanonicalRecord{Collection: collection, OraclePrice: price}
	r.savedCanonicals = append(r.savedCanonicals, rec)
	r.canonical[collection] = rec
	return int64(len(r.savedCanonicals)), nil
}

type fakeCoinFetcher struct {
	prices fetcher.CoinPrices
	err    error
}

func (f *fakeCoinFetcher) FetchCoinPrices(context.Context) (fetcher.CoinPrices, error) {
	return f.prices, f.err
}

type floorResult struct {
	value decimal.Decimal
	ok    bool
	err   error
}

type fakeFloorFetcher struct {
	mu         sync.Mutex
	results    map[string]floorResult
	seenPrices []fetcher.CoinPrices
}

func (f *fakeFloorFetcher) FetchFloor(_ context.Context, provider, _ string, prices fetcher.CoinPrices) (decimal.Decimal, bool, error) {
	f.mu.Lock()
	f.seenPrices = append(f.seenPrices, prices)
	f.mu.Unlock()
	result := f.results[provider]
	return result.value, result.ok, result.err
}

type fakePropagator struct {
	mu     sync.Mutex
	labels []string
	run    bool
}

func (p *fakePropagator) Call(ctx context.Context, action func(context.Context) error, label string) {
	p.mu.Lock()
	p.labels = append(p.labels, label)
	p.mu.Unlock()
	if p.run {
		_ = action(ctx)
	}
}

// blockingPropagator parks every call until released, exposing whether the
// pass waits on propagation outcomes.
type blockingPropagator struct {
	started chan string
	release chan struct{}
}

func (p *blockingPropagator) Call(_ context.Context, _ func(context.Context) error, label string) {
	p.started <- label
	<-p.release
}

type fakeSubmitter struct {
	mu      sync.Mutex
	oracles []string
	values  []decimal.Decimal
	err     error
}

func (s *fakeSubmitter) SubmitOracleUpdate(_ context.Context, oracleAddress string, value decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oracles = append(s.oracles, oracleAddress)
	s.values = append(s.values, value)
	return s.err
}

func testConfig(collections ...config.CollectionConfig) *config.Config {
	return &config.Config{Collections: collections}
}

func newTestService(cfg *config.Config, repo *fakeRepo, coins *fakeCoinFetcher, floors *fakeFloorFetcher, propagator *fakePropagator, submitter *fakeSubmitter) *Service {
	return New(cfg, repo, coins, floors, floorcalc.LowestCredible{}, propagator, submitter, zerolog.Nop())
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRunPassPersistsOnlyNonMissingObservations(t *testing.T) {
	repo := newFakeRepo()
	coins := &fakeCoinFetcher{prices: fetcher.CoinPrices{ETH: dec("1800"), SOL: dec("150")}}
	floors := &fakeFloorFetcher{results: map[string]floorResult{
		"p1": {value: dec("1.5"), ok: true},
		"p2": {ok: false},
	}}
	propagator := &fakePropagator{}

	cfg := testConfig(config.CollectionConfig{Name: "x", Providers: []string{"p1", "p2"}})
	svc := newTestService(cfg, repo, coins, floors, propagator, &fakeSubmitter{})

	require.NoError(t, svc.RunPass(context.Background()))

	require.Len(t, repo.savedObservations, 1)
	require.Equal(t, "p1", repo.savedObservations[0].Provider)
	require.True(t, repo.savedObservations[0].Floor.Equal(dec("1.5")))

	// Derivation input was [p1 -> 1.5]; LowestCredible therefore stores 1.5.
	require.Len(t, repo.savedCanonicals, 1)
	require.True(t, repo.savedCanonicals[0].OraclePrice.Equal(dec("1.5")))

	// Not ledger-linked, so nothing was propagated.
	require.Empty(t, propagator.labels)
}

func TestRunPassSkipsCoinPersistenceOnPartialSnapshot(t *testing.T) {
	repo := newFakeRepo()
	repo.coin = storage.CoinPriceRecord{ETHPrice: dec("1700"), SOLPrice: dec("140"), Timestamp: "2024-03-07 08:05:01"}
	repo.coinFound = true

	// SOL missing from the feed this pass.
	coins := &fakeCoinFetcher{prices: fetcher.CoinPrices{ETH: dec("1800")}}
	floors := &fakeFloorFetcher{results: map[string]floorResult{"p1": {value: dec("2"), ok: true}}}

	cfg := testConfig(config.CollectionConfig{Name: "x", Providers: []string{"p1"}})
	svc := newTestService(cfg, repo, coins, floors, &fakePropagator{}, &fakeSubmitter{})

	require.NoError(t, svc.RunPass(context.Background()))

	require.Empty(t, repo.savedCoins)
	require.Len(t, floors.seenPrices, 1)
	require.True(t, floors.seenPrices[0].ETH.Equal(dec("1700")), "prior snapshot values must be used")
	require.True(t, floors.seenPrices[0].SOL.Equal(dec("140")))
}

func TestRunPassPersistsCompleteCoinSnapshot(t *testing.T) {
	repo := newFakeRepo()
	coins := &fakeCoinFetcher{prices: fetcher.CoinPrices{ETH: dec("1800"), SOL: dec("150")}}
	floors := &fakeFloorFetcher{results: map[string]floorResult{}}

	svc := newTestService(testConfig(), repo, coins, floors, &fakePropagator{}, &fakeSubmitter{})
	require.NoError(t, svc.RunPass(context.Background()))

	require.Len(t, repo.savedCoins, 1)
	require.True(t, repo.savedCoins[0].ETHPrice.Equal(dec("1800")))
}

func TestRunPassSurvivesCanonicalReadFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.canonicalReadErrs = 1
	coins := &fakeCoinFetcher{err: errors.New("feed down")}
	floors := &fakeFloorFetcher{results: map[string]floorResult{"p1": {value: dec("3"), ok: true}}}

	cfg := testConfig(config.CollectionConfig{Name: "x", Providers: []string{"p1"}})
	svc := newTestService(cfg, repo, coins, floors, &fakePropagator{}, &fakeSubmitter{})

	require.NoError(t, svc.RunPass(context.Background()))
	require.Len(t, repo.savedCanonicals, 1)
	require.True(t, repo.savedCanonicals[0].OraclePrice.Equal(dec("3")))
}

func TestRunPassIsolatesProviderFetchFailure(t *testing.T) {
	repo := newFakeRepo()
	coins := &fakeCoinFetcher{prices: fetcher.CoinPrices{ETH: dec("1800"), SOL: dec("150")}}
	floors := &fakeFloorFetcher{results: map[string]floorResult{
		"p1": {err: errors.New("provider down")},
		"p2": {value: dec("4"), ok: true},
	}}

	cfg := testConfig(config.CollectionConfig{Name: "x", Providers: []string{"p1", "p2"}})
	svc := newTestService(cfg, repo, coins, floors, &fakePropagator{}, &fakeSubmitter{})

	require.NoError(t, svc.RunPass(context.Background()))
	require.Len(t, repo.savedObservations, 1)
	require.Equal(t, "p2", repo.savedObservations[0].Provider)
}

func TestRunPassAbortsOnCanonicalPersistFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.saveCanonicalErr = errors.New("disk full")
	coins := &fakeCoinFetcher{prices: fetcher.CoinPrices{ETH: dec("1800"), SOL: dec("150")}}
	floors := &fakeFloorFetcher{results: map[string]floorResult{}}

	cfg := testConfig(config.CollectionConfig{Name: "x"})
	svc := newTestService(cfg, repo, coins, floors, &fakePropagator{}, &fakeSubmitter{})

	require.Error(t, svc.RunPass(context.Background()))
}

func TestRunPassAbortsOnObservationPersistFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.saveObservationErr = errors.New("disk full")
	coins := &fakeCoinFetcher{prices: fetcher.CoinPrices{ETH: dec("1800"), SOL: dec("150")}}
	floors := &fakeFloorFetcher{results: map[string]floorResult{"p1": {value: dec("1"), ok: true}}}

	cfg := testConfig(config.CollectionConfig{Name: "x", Providers: []string{"p1"}})
	svc := newTestService(cfg, repo, coins, floors, &fakePropagator{}, &fakeSubmitter{})

	require.Error(t, svc.RunPass(context.Background()))
}

func TestRunPassPropagatesLedgerLinkedCollections(t *testing.T) {
	repo := newFakeRepo()
	coins := &fakeCoinFetcher{prices: fetcher.CoinPrices{ETH: dec("1800"), SOL: dec("150")}}
	floors := &fakeFloorFetcher{results: map[string]floorResult{"p1": {value: dec("2.5"), ok: true}}}
	propagator := &fakePropagator{run: true}
	submitter := &fakeSubmitter{}

	cfg := testConfig(
		config.CollectionConfig{Name: "linked", Display: "Linked Apes", Providers: []string{"p1"}, Oracle: "0xabc"},
		config.CollectionConfig{Name: "unlinked", Providers: []string{"p1"}},
	)
	svc := newTestService(cfg, repo, coins, floors, propagator, submitter)

	require.NoError(t, svc.RunPass(context.Background()))

	require.Equal(t, []string{"Linked Apes"}, propagator.labels)
	require.Equal(t, []string{"0xabc"}, submitter.oracles)
	require.Len(t, submitter.values, 1)
	require.True(t, submitter.values[0].Equal(dec("2.5")))
}

func TestRunPassDoesNotBlockOnPropagation(t *testing.T) {
	repo := newFakeRepo()
	coins := &fakeCoinFetcher{prices: fetcher.CoinPrices{ETH: dec("1800"), SOL: dec("150")}}
	floors := &fakeFloorFetcher{results: map[string]floorResult{"p1": {value: dec("2"), ok: true}}}
	propagator := &blockingPropagator{started: make(chan string, 2), release: make(chan struct{})}

	cfg := testConfig(
		config.CollectionConfig{Name: "first", Providers: []string{"p1"}, Oracle: "0xaaa"},
		config.CollectionConfig{Name: "second", Providers: []string{"p1"}, Oracle: "0xbbb"},
	)
	svc := New(cfg, repo, coins, floors, floorcalc.LowestCredible{}, propagator, &fakeSubmitter{}, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- svc.RunPass(context.Background()) }()

	// Both propagations start while neither has finished: the second
	// collection's writes were not held up by the first's retry cycle.
	for i := 0; i < 2; i++ {
		select {
		case <-propagator.started:
		case <-time.After(5 * time.Second):
			t.Fatal("pass blocked on an unfinished propagation")
		}
	}

	close(propagator.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pass did not drain propagations")
	}

	require.Len(t, repo.savedCanonicals, 2)
}

func TestRunPassConcurrentCollectMatchesSequential(t *testing.T) {
	repo := newFakeRepo()
	coins := &fakeCoinFetcher{prices: fetcher.CoinPrices{ETH: dec("1800"), SOL: dec("150")}}
	floors := &fakeFloorFetcher{results: map[string]floorResult{
		"p1": {value: dec("1.6"), ok: true},
		"p2": {value: dec("1.4"), ok: true},
		"p3": {ok: false},
	}}

	cfg := testConfig(config.CollectionConfig{Name: "x", Providers: []string{"p1", "p2", "p3"}})
	cfg.Providers.ConcurrentFetch = true
	svc := newTestService(cfg, repo, coins, floors, &fakePropagator{}, &fakeSubmitter{})

	require.NoError(t, svc.RunPass(context.Background()))
	require.Len(t, repo.savedObservations, 2)
	require.Len(t, repo.savedCanonicals, 1)
	require.True(t, repo.savedCanonicals[0].OraclePrice.Equal(dec("1.4")))
}
