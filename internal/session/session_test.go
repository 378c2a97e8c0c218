package session_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopboost/shopboost/internal/generator"
	"github.com/shopboost/shopboost/internal/session"
	"github.com/shopboost/shopboost/internal/shopify"
	"github.com/shopboost/shopboost/internal/store"
)

type fakeTimer struct {
	clock   *fakeClock
	f       func()
	d       time.Duration
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) session.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, f: f, d: d}
	c.timers = append(c.timers, t)
	return t
}

// Fire runs every pending timer, as if their delay had elapsed.
func (c *fakeClock) Fire() int {
	c.mu.Lock()
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
	return len(due)
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// countingStore records every page the session writes.
type countingStore struct {
	store.Store
	mu       sync.Mutex
	saves    []store.Page
	fail     error
	credFail error
	// beforeSave runs ahead of each write, standing in for a beacon that
	// commits while the session is saving.
	beforeSave func(ctx context.Context)
}

func (s *countingStore) SavePageContent(ctx context.Context, page store.Page) (*store.Page, error) {
	s.mu.Lock()
	if s.fail != nil {
		s.mu.Unlock()
		return nil, s.fail
	}
	s.saves = append(s.saves, page.Clone())
	hook := s.beforeSave
	s.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	return s.Store.SavePageContent(ctx, page)
}

func (s *countingStore) SaveCredential(ctx context.Context, domain, token string) error {
	if s.credFail != nil {
		return s.credFail
	}
	return s.Store.SaveCredential(ctx, domain, token)
}

func (s *countingStore) Saves() []store.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Page(nil), s.saves...)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("b%d", n)
	}
}

func setup(t *testing.T, id string) (*session.Session, *countingStore, *fakeClock) {
	t.Helper()
	st := &countingStore{Store: store.NewMemory()}
	clock := &fakeClock{}
	s, err := session.Load(context.Background(), st, id,
		session.WithClock(clock),
		session.WithLogger(discard()),
		session.WithIDs(sequentialIDs()),
	)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, st, clock
}

func TestLoad_NewDraft(t *testing.T) {
	s, st, clock := setup(t, "p1")

	page := s.Page()
	assert.Equal(t, "p1", page.ID)
	assert.Equal(t, session.DefaultTitle, page.Title)
	assert.Equal(t, store.StatusDraft, page.Status)
	assert.Empty(t, page.Blocks)
	assert.Zero(t, page.Views)
	assert.True(t, page.Revenue.IsZero())
	assert.Equal(t, shopify.DemoProducts, s.Products())

	require.Equal(t, 1, clock.Fire())
	require.Len(t, st.Saves(), 1)

	saved, err := st.GetPage(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, session.DefaultTitle, saved.Title)
}

func TestLoad_ExistingPage(t *testing.T) {
	st := store.NewMemory()
	page := store.NewDraft("p1", "Spring Sale")
	_, err := st.SavePage(context.Background(), page)
	require.NoError(t, err)

	clock := &fakeClock{}
	s, err := session.Load(context.Background(), st, "p1", session.WithClock(clock))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "Spring Sale", s.Page().Title)
	assert.Zero(t, clock.Pending())
	assert.False(t, s.Dirty())
}

func TestAddBlock(t *testing.T) {
	s, _, _ := setup(t, "p1")

	id, err := s.AddBlock(store.BlockHero)
	require.NoError(t, err)

	page := s.Page()
	require.Len(t, page.Blocks, 1)
	b := page.Blocks[0]
	assert.Equal(t, id, b.ID)
	assert.Equal(t, store.BlockHero, b.Type)
	assert.Equal(t, store.Copy{Title: "", Subtitle: "", ButtonText: "Buy Now"}, store.CopyOf(b.Content))
}

func TestAddBlock_UnknownType(t *testing.T) {
	s, _, _ := setup(t, "p1")

	_, err := s.AddBlock(store.BlockType("CAROUSEL"))
	assert.ErrorIs(t, err, store.ErrUnknownBlockType)
	assert.Empty(t, s.Page().Blocks)
}

func TestUpdateBlockContent(t *testing.T) {
	s, _, _ := setup(t, "p1")
	a, _ := s.AddBlock(store.BlockHero)
	b, _ := s.AddBlock(store.BlockCTA)

	require.NoError(t, s.UpdateBlockContent(a, "title", "Glow"))

	page := s.Page()
	assert.Equal(t, store.Copy{Title: "Glow", ButtonText: "Buy Now"}, store.CopyOf(page.Blocks[0].Content))
	assert.Equal(t, b, page.Blocks[1].ID)
	assert.Equal(t, store.Copy{ButtonText: "Buy Now"}, store.CopyOf(page.Blocks[1].Content))
}

func TestUpdateBlockContent_MissingBlockIsNoop(t *testing.T) {
	s, _, _ := setup(t, "p1")
	s.AddBlock(store.BlockHero)
	before := s.Page()

	require.NoError(t, s.UpdateBlockContent("nope", "title", "x"))
	assert.Equal(t, before.Blocks, s.Page().Blocks)
}

func TestUpdateBlockContent_UnknownField(t *testing.T) {
	s, _, _ := setup(t, "p1")
	id, _ := s.AddBlock(store.BlockCTA)

	err := s.UpdateBlockContent(id, "items", []string{"a"})
	assert.ErrorIs(t, err, store.ErrUnknownField)
}

func TestReplaceBlocks_FreshDistinctIDs(t *testing.T) {
	s, _, _ := setup(t, "p1")
	old, _ := s.AddBlock(store.BlockHero)

	hero, _ := store.DefaultContent(store.BlockHero)
	drafts := []generator.BlockDraft{
		{Type: store.BlockHero, Content: hero},
		{Type: store.BlockFeatures},
		{Type: store.BlockCTA},
	}
	require.NoError(t, s.ReplaceBlocks(drafts))

	page := s.Page()
	require.Len(t, page.Blocks, 3)
	seen := map[string]bool{}
	for i, b := range page.Blocks {
		assert.NotEqual(t, old, b.ID)
		assert.False(t, seen[b.ID], "duplicate id %s", b.ID)
		seen[b.ID] = true
		assert.Equal(t, drafts[i].Type, b.Type)
		assert.NotNil(t, b.Content)
	}
}

func TestReplaceBlocks_RetriesCollidingIDs(t *testing.T) {
	st := store.NewMemory()
	ids := []string{"x", "x", "y"}
	next := func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	s, err := session.Load(context.Background(), st, "p1", session.WithClock(&fakeClock{}), session.WithIDs(next))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.ReplaceBlocks([]generator.BlockDraft{{Type: store.BlockHero}, {Type: store.BlockCTA}}))
	page := s.Page()
	assert.Equal(t, "x", page.Blocks[0].ID)
	assert.Equal(t, "y", page.Blocks[1].ID)
}

func TestRemoveAndMoveBlock(t *testing.T) {
	s, _, _ := setup(t, "p1")
	a, _ := s.AddBlock(store.BlockHero)
	b, _ := s.AddBlock(store.BlockFeatures)
	c, _ := s.AddBlock(store.BlockCTA)

	order := func() []string {
		var ids []string
		for _, blk := range s.Page().Blocks {
			ids = append(ids, blk.ID)
		}
		return ids
	}

	require.NoError(t, s.MoveBlock(c, -1))
	assert.Equal(t, []string{a, c, b}, order())

	require.NoError(t, s.MoveBlock(a, -5))
	assert.Equal(t, []string{a, c, b}, order())

	require.NoError(t, s.MoveBlock(a, 10))
	assert.Equal(t, []string{c, b, a}, order())

	require.NoError(t, s.MoveBlock("nope", 1))
	require.NoError(t, s.RemoveBlock("nope"))
	assert.Equal(t, []string{c, b, a}, order())

	require.NoError(t, s.RemoveBlock(b))
	assert.Equal(t, []string{c, a}, order())
}

func TestTitleAndStatus(t *testing.T) {
	s, _, _ := setup(t, "p1")

	require.NoError(t, s.SetTitle("Summer Drop"))
	require.NoError(t, s.Publish())
	page := s.Page()
	assert.Equal(t, "Summer Drop", page.Title)
	assert.Equal(t, store.StatusPublished, page.Status)

	require.NoError(t, s.Unpublish())
	assert.Equal(t, store.StatusDraft, s.Page().Status)
}

func TestAutosave_DebouncesBursts(t *testing.T) {
	s, st, clock := setup(t, "p1")

	id, _ := s.AddBlock(store.BlockHero)
	for _, title := range []string{"G", "Gl", "Glo", "Glow"} {
		require.NoError(t, s.UpdateBlockContent(id, "title", title))
	}
	require.NoError(t, s.SetTitle("Final"))

	assert.Equal(t, 1, clock.Pending())
	assert.Empty(t, st.Saves())

	require.Equal(t, 1, clock.Fire())

	saves := st.Saves()
	require.Len(t, saves, 1)
	assert.Equal(t, "Final", saves[0].Title)
	assert.Equal(t, "Glow", store.CopyOf(saves[0].Blocks[0].Content).Title)
	assert.False(t, s.Dirty())
}

func TestAutosave_UsesConfiguredDelay(t *testing.T) {
	clock := &fakeClock{}
	s, err := session.Load(context.Background(), store.NewMemory(), "p1",
		session.WithClock(clock), session.WithAutosaveDelay(2*time.Second))
	require.NoError(t, err)
	defer s.Close()

	clock.mu.Lock()
	defer clock.mu.Unlock()
	require.NotEmpty(t, clock.timers)
	assert.Equal(t, 2*time.Second, clock.timers[len(clock.timers)-1].d)
}

func TestAutosave_SupersededCallbackDoesNotSave(t *testing.T) {
	s, st, clock := setup(t, "p1")

	clock.mu.Lock()
	stale := clock.timers[0]
	clock.mu.Unlock()

	require.NoError(t, s.SetTitle("x"))
	stale.f()
	assert.Empty(t, st.Saves())

	clock.Fire()
	assert.Len(t, st.Saves(), 1)
}

func TestAutosave_FailureKeepsDirty(t *testing.T) {
	s, st, clock := setup(t, "p1")
	st.fail = errors.New("disk full")

	clock.Fire()
	assert.True(t, s.Dirty())
	assert.Error(t, s.LastSaveError())
}

func TestManualSave(t *testing.T) {
	s, st, clock := setup(t, "p1")
	require.NoError(t, s.SetTitle("Now"))

	require.NoError(t, s.ManualSave(context.Background()))
	require.Len(t, st.Saves(), 1)
	assert.Equal(t, "Now", st.Saves()[0].Title)

	assert.Zero(t, clock.Pending())
	assert.Zero(t, clock.Fire())
	assert.Len(t, st.Saves(), 1)
	assert.False(t, s.Page().LastModified.IsZero())
}

func TestSimulateSale(t *testing.T) {
	s, st, _ := setup(t, "p1")
	require.NoError(t, s.ManualSave(context.Background()))

	require.NoError(t, s.SimulateSale(context.Background()))

	page := s.Page()
	assert.True(t, page.Revenue.Equal(decimal.NewFromInt(49)))
	assert.EqualValues(t, 1, page.Views)

	analytics, err := st.GetAnalytics(context.Background())
	require.NoError(t, err)
	assert.True(t, analytics["p1"].Revenue.Equal(decimal.NewFromInt(49)))
	assert.EqualValues(t, 1, analytics["p1"].Sales)
}

func TestSimulateSale_UnsavedPage(t *testing.T) {
	s, st, _ := setup(t, "p1")

	require.NoError(t, s.SimulateSale(context.Background()))
	assert.True(t, s.Page().Revenue.IsZero())

	analytics, err := st.GetAnalytics(context.Background())
	require.NoError(t, err)
	assert.True(t, analytics["p1"].Revenue.Equal(decimal.NewFromInt(49)))
}

func TestSave_KeepsStoredCounters(t *testing.T) {
	s, st, _ := setup(t, "p1")
	require.NoError(t, s.ManualSave(context.Background()))

	// a beacon sale lands while the page is open
	require.NoError(t, st.RecordSale(context.Background(), "p1", decimal.NewFromInt(20)))

	require.NoError(t, s.SetTitle("Edited"))
	require.NoError(t, s.ManualSave(context.Background()))

	saved, err := st.GetPage(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, saved.Revenue.Equal(decimal.NewFromInt(20)))
	assert.True(t, s.Page().Revenue.Equal(decimal.NewFromInt(20)))
}

func TestSave_BeaconDuringSaveIsKept(t *testing.T) {
	s, st, _ := setup(t, "p1")
	ctx := context.Background()
	require.NoError(t, s.ManualSave(ctx))

	st.beforeSave = func(ctx context.Context) {
		require.NoError(t, st.RecordView(ctx, "p1"))
		require.NoError(t, st.RecordSale(ctx, "p1", decimal.NewFromInt(49)))
	}
	require.NoError(t, s.SetTitle("Edited"))
	require.NoError(t, s.ManualSave(ctx))

	saved, err := st.GetPage(ctx, "p1")
	require.NoError(t, err)
	analytics, err := st.GetAnalytics(ctx)
	require.NoError(t, err)

	assert.Equal(t, "Edited", saved.Title)
	assert.True(t, saved.Revenue.Equal(analytics["p1"].Revenue), "page %s vs analytics %s", saved.Revenue, analytics["p1"].Revenue)
	assert.True(t, saved.Revenue.Equal(decimal.NewFromInt(49)))
	assert.EqualValues(t, 2, saved.Views)
	assert.EqualValues(t, 2, s.Page().Views)
}

func TestSave_ConcurrentBeacons(t *testing.T) {
	s, st, _ := setup(t, "p1")
	ctx := context.Background()
	require.NoError(t, s.ManualSave(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, st.RecordSale(ctx, "p1", decimal.NewFromInt(5)))
		}()
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.SetTitle(fmt.Sprintf("Edit %d", i)))
			assert.NoError(t, s.ManualSave(ctx))
		}(i)
	}
	wg.Wait()

	saved, err := st.GetPage(ctx, "p1")
	require.NoError(t, err)
	analytics, err := st.GetAnalytics(ctx)
	require.NoError(t, err)
	assert.True(t, saved.Revenue.Equal(decimal.NewFromInt(100)), "page revenue %s", saved.Revenue)
	assert.True(t, analytics["p1"].Revenue.Equal(saved.Revenue))
	assert.EqualValues(t, 20, saved.Views)
}

// flakyReads fails GetPage once readErr is set.
type flakyReads struct {
	*countingStore
	readErr error
}

func (f *flakyReads) GetPage(ctx context.Context, id string) (*store.Page, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.countingStore.GetPage(ctx, id)
}

func TestSave_KeepsCountersWhenReadsFail(t *testing.T) {
	ctx := context.Background()
	st := &flakyReads{countingStore: &countingStore{Store: store.NewMemory()}}
	_, err := st.SavePage(ctx, store.NewDraft("p1", "Launch"))
	require.NoError(t, err)

	s, err := session.Load(ctx, st, "p1", session.WithClock(&fakeClock{}), session.WithLogger(discard()))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, st.RecordSale(ctx, "p1", decimal.NewFromInt(49)))
	st.readErr = errors.New("connection reset")

	require.NoError(t, s.SetTitle("Edited"))
	require.NoError(t, s.ManualSave(ctx))
	assert.True(t, s.Page().Revenue.Equal(decimal.NewFromInt(49)))

	st.readErr = nil
	saved, err := st.GetPage(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Edited", saved.Title)
	assert.True(t, saved.Revenue.Equal(decimal.NewFromInt(49)))
	assert.EqualValues(t, 1, saved.Views)
}

type layoutFunc func(ctx context.Context, prompt string) ([]generator.BlockDraft, error)

func (f layoutFunc) GenerateLayout(ctx context.Context, prompt string) ([]generator.BlockDraft, error) {
	return f(ctx, prompt)
}

func TestGenerate(t *testing.T) {
	s, _, _ := setup(t, "p1")
	gen := layoutFunc(func(ctx context.Context, prompt string) ([]generator.BlockDraft, error) {
		return []generator.BlockDraft{{Type: store.BlockHero}, {Type: store.BlockPricing}}, nil
	})

	require.NoError(t, s.Generate(context.Background(), gen, "serum"))
	page := s.Page()
	require.Len(t, page.Blocks, 2)
	assert.Equal(t, store.BlockPricing, page.Blocks[1].Type)
	assert.True(t, s.Dirty())
}

func TestGenerate_AbsentLeavesBlocks(t *testing.T) {
	s, _, _ := setup(t, "p1")
	s.AddBlock(store.BlockHero)
	before := s.Page().Blocks

	gen := layoutFunc(func(ctx context.Context, prompt string) ([]generator.BlockDraft, error) {
		return nil, generator.ErrNoLayout
	})
	err := s.Generate(context.Background(), gen, "serum")
	assert.ErrorIs(t, err, generator.ErrNoLayout)
	assert.Equal(t, before, s.Page().Blocks)
	assert.False(t, s.Generating())
}

func TestGenerate_BusyAndStale(t *testing.T) {
	s, _, _ := setup(t, "p1")
	s.AddBlock(store.BlockHero)
	before := s.Page().Blocks

	started := make(chan struct{})
	release := make(chan struct{})
	gen := layoutFunc(func(ctx context.Context, prompt string) ([]generator.BlockDraft, error) {
		close(started)
		<-release
		return []generator.BlockDraft{{Type: store.BlockCTA}}, nil
	})

	done := make(chan error, 1)
	go func() { done <- s.Generate(context.Background(), gen, "first") }()
	<-started

	assert.True(t, s.Generating())
	assert.ErrorIs(t, s.Generate(context.Background(), gen, "second"), session.ErrBusy)

	s.Close()
	close(release)

	assert.ErrorIs(t, <-done, session.ErrStale)
	assert.Equal(t, before, s.Page().Blocks)
}

type productsFunc func(ctx context.Context, domain, token string) ([]shopify.Product, error)

func (f productsFunc) FetchProducts(ctx context.Context, domain, token string) ([]shopify.Product, error) {
	return f(ctx, domain, token)
}

func TestConnectProducts(t *testing.T) {
	s, st, _ := setup(t, "p1")
	want := []shopify.Product{{ID: "gid://1", Title: "Serum", Price: "49.0 USD", Image: shopify.PlaceholderImage}}
	src := productsFunc(func(ctx context.Context, domain, token string) ([]shopify.Product, error) {
		return want, nil
	})

	require.NoError(t, s.ConnectProducts(context.Background(), src, "shop.myshopify.com", "tok"))
	assert.Equal(t, want, s.Products())

	cred, err := st.GetCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &store.Credential{Domain: "shop.myshopify.com", Token: "tok"}, cred)
}

func TestConnectProducts_FailureLeavesList(t *testing.T) {
	s, st, _ := setup(t, "p1")
	src := productsFunc(func(ctx context.Context, domain, token string) ([]shopify.Product, error) {
		return nil, fmt.Errorf("%w: status 401", shopify.ErrFetch)
	})

	err := s.ConnectProducts(context.Background(), src, "shop.myshopify.com", "bad")
	assert.ErrorIs(t, err, shopify.ErrFetch)
	assert.Equal(t, shopify.DemoProducts, s.Products())

	_, err = st.GetCredential(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConnectProducts_CredentialFailureLeavesList(t *testing.T) {
	s, st, _ := setup(t, "p1")
	st.credFail = errors.New("disk full")
	src := productsFunc(func(ctx context.Context, domain, token string) ([]shopify.Product, error) {
		return []shopify.Product{{ID: "gid://1", Title: "Serum"}}, nil
	})

	err := s.ConnectProducts(context.Background(), src, "shop.myshopify.com", "tok")
	assert.Error(t, err)
	assert.Equal(t, shopify.DemoProducts, s.Products())
}

func TestReconnect(t *testing.T) {
	s, st, _ := setup(t, "p1")
	var calls int
	src := productsFunc(func(ctx context.Context, domain, token string) ([]shopify.Product, error) {
		calls++
		assert.Equal(t, "shop.myshopify.com", domain)
		return []shopify.Product{{ID: "1"}}, nil
	})

	require.NoError(t, s.Reconnect(context.Background(), src))
	assert.Zero(t, calls)

	require.NoError(t, st.SaveCredential(context.Background(), "shop.myshopify.com", "tok"))
	require.NoError(t, s.Reconnect(context.Background(), src))
	assert.Equal(t, 1, calls)
	assert.Len(t, s.Products(), 1)
}

func TestClose(t *testing.T) {
	s, st, clock := setup(t, "p1")
	require.NoError(t, s.SetTitle("x"))

	s.Close()
	assert.Zero(t, clock.Pending())
	assert.Zero(t, clock.Fire())
	assert.Empty(t, st.Saves())

	assert.ErrorIs(t, s.SetTitle("y"), session.ErrStale)
	_, err := s.AddBlock(store.BlockHero)
	assert.ErrorIs(t, err, session.ErrStale)
	assert.ErrorIs(t, s.ManualSave(context.Background()), session.ErrStale)
}
