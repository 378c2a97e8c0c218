package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/shopboost/shopboost/internal/store"
)

// storeFactories lists every backend the shared tests run against. Postgres
// and Redis only join when their connection settings are in the environment.
func storeFactories(t *testing.T) map[string]func(t *testing.T) *store.KVStore {
	t.Helper()
	factories := map[string]func(t *testing.T) *store.KVStore{
		"sqlite": setupTestDB,
		"memory": func(t *testing.T) *store.KVStore { return store.NewMemory() },
	}

	if dsn := os.Getenv("SHOPBOOST_TEST_POSTGRES"); dsn != "" {
		factories["postgres"] = func(t *testing.T) *store.KVStore {
			s, err := store.OpenPostgres(dsn)
			if err != nil {
				t.Fatalf("failed to open postgres: %v", err)
			}
			b, _ := store.NewPostgresBackend(dsn)
			if _, err := b.DB().Exec(`DELETE FROM kv`); err != nil {
				t.Fatalf("failed to clear kv: %v", err)
			}
			b.Close()
			t.Cleanup(func() { s.Close() })
			return s
		}
	}

	if addr := os.Getenv("SHOPBOOST_TEST_REDIS"); addr != "" {
		factories["redis"] = func(t *testing.T) *store.KVStore {
			client := redis.NewClient(&redis.Options{Addr: addr})
			prefix := "shopboost-test:" + strconv.FormatInt(time.Now().UnixNano(), 36) + ":"
			s := store.New(store.NewRedisBackend(client, prefix))
			t.Cleanup(func() {
				ctx := context.Background()
				keys, _ := client.Keys(ctx, prefix+"*").Result()
				if len(keys) > 0 {
					client.Del(ctx, keys...)
				}
				s.Close()
			})
			return s
		}
	}

	return factories
}

func setupTestDB(t *testing.T) *store.KVStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s *store.KVStore)) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func TestListPages_Empty(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *store.KVStore) {
		pages, err := s.ListPages(context.Background())
		if err != nil {
			t.Fatalf("failed to list pages: %v", err)
		}
		if pages == nil || len(pages) != 0 {
			t.Errorf("got %v, want empty non-nil slice", pages)
		}
	})
}

func TestSavePage_Upsert(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *store.KVStore) {
		ctx := context.Background()

		page := store.NewDraft("p1", "Spring Sale")
		if _, err := s.SavePage(ctx, page); err != nil {
			t.Fatalf("failed to save page: %v", err)
		}
		page.Title = "Summer Sale"
		if _, err := s.SavePage(ctx, page); err != nil {
			t.Fatalf("failed to save page again: %v", err)
		}
		if _, err := s.SavePage(ctx, store.NewDraft("p2", "Other")); err != nil {
			t.Fatalf("failed to save second page: %v", err)
		}

		pages, err := s.ListPages(ctx)
		if err != nil {
			t.Fatalf("failed to list pages: %v", err)
		}
		if len(pages) != 2 {
			t.Fatalf("got %d pages, want 2", len(pages))
		}
		if pages[0].ID != "p1" || pages[0].Title != "Summer Sale" {
			t.Errorf("got first page %s/%q, want p1/\"Summer Sale\"", pages[0].ID, pages[0].Title)
		}
		if pages[1].ID != "p2" {
			t.Errorf("got second page %s, want p2", pages[1].ID)
		}
	})
}

func TestSavePage_StampsLastModified(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	s := store.NewMemory(store.WithClock(func() time.Time { return fixed }))

	saved, err := s.SavePage(context.Background(), store.NewDraft("p1", "Launch"))
	if err != nil {
		t.Fatalf("failed to save page: %v", err)
	}
	if !saved.LastModified.Equal(fixed) {
		t.Errorf("got LastModified %v, want %v", saved.LastModified, fixed)
	}

	got, err := s.GetPage(context.Background(), "p1")
	if err != nil {
		t.Fatalf("failed to get page: %v", err)
	}
	if !got.LastModified.Equal(fixed) {
		t.Errorf("stored LastModified %v, want %v", got.LastModified, fixed)
	}
}

func TestSavePage_Invalid(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	if _, err := s.SavePage(ctx, store.Page{}); !errors.Is(err, store.ErrInvalidPage) {
		t.Errorf("empty id: got %v, want ErrInvalidPage", err)
	}

	page := store.NewDraft("p1", "x")
	page.Blocks = []store.Block{{ID: "b1", Type: "CAROUSEL"}}
	if _, err := s.SavePage(ctx, page); !errors.Is(err, store.ErrInvalidPage) {
		t.Errorf("unknown block type: got %v, want ErrInvalidPage", err)
	}

	page.Blocks = []store.Block{{ID: "b1", Type: store.BlockHero, Content: &store.CTAContent{}}}
	if _, err := s.SavePage(ctx, page); !errors.Is(err, store.ErrInvalidPage) {
		t.Errorf("mismatched content: got %v, want ErrInvalidPage", err)
	}
}

func TestSavePage_KeepsBlocks(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *store.KVStore) {
		ctx := context.Background()

		page := store.NewDraft("p1", "Serum")
		page.Blocks = []store.Block{
			{ID: "b1", Type: store.BlockHero, Content: &store.HeroContent{Copy: store.Copy{Title: "Glow", ButtonText: "Buy Now"}}},
			{ID: "b2", Type: store.BlockFeatures, Content: &store.FeaturesContent{Items: []string{"Vegan", "Cruelty free"}}},
			{ID: "b3", Type: store.BlockCTA},
		}
		if _, err := s.SavePage(ctx, page); err != nil {
			t.Fatalf("failed to save page: %v", err)
		}

		got, err := s.GetPage(ctx, "p1")
		if err != nil {
			t.Fatalf("failed to get page: %v", err)
		}
		if len(got.Blocks) != 3 {
			t.Fatalf("got %d blocks, want 3", len(got.Blocks))
		}
		hero, ok := got.Blocks[0].Content.(*store.HeroContent)
		if !ok {
			t.Fatalf("got %T, want *HeroContent", got.Blocks[0].Content)
		}
		if hero.Title != "Glow" {
			t.Errorf("got hero title %q, want Glow", hero.Title)
		}
		features := got.Blocks[1].Content.(*store.FeaturesContent)
		if len(features.Items) != 2 || features.Items[1] != "Cruelty free" {
			t.Errorf("got features %v", features.Items)
		}
		if _, ok := got.Blocks[2].Content.(*store.CTAContent); !ok {
			t.Errorf("got %T, want *CTAContent for block without content", got.Blocks[2].Content)
		}
	})
}

func TestSavePageContent_KeepsStoredCounters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *store.KVStore) {
		ctx := context.Background()

		if _, err := s.SavePage(ctx, store.NewDraft("p1", "Launch")); err != nil {
			t.Fatalf("failed to save page: %v", err)
		}
		// the editor's copy was taken before these landed
		stale, _ := s.GetPage(ctx, "p1")
		s.RecordView(ctx, "p1")
		s.RecordSale(ctx, "p1", decimal.NewFromInt(49))

		stale.Title = "Launch v2"
		saved, err := s.SavePageContent(ctx, *stale)
		if err != nil {
			t.Fatalf("failed to save content: %v", err)
		}
		if saved.Views != 2 || !saved.Revenue.Equal(decimal.NewFromInt(49)) {
			t.Errorf("got returned counters %d/%s, want 2/49", saved.Views, saved.Revenue)
		}

		page, _ := s.GetPage(ctx, "p1")
		if page.Title != "Launch v2" {
			t.Errorf("got title %q, want \"Launch v2\"", page.Title)
		}
		if page.Views != 2 || !page.Revenue.Equal(decimal.NewFromInt(49)) {
			t.Errorf("got stored counters %d/%s, want 2/49", page.Views, page.Revenue)
		}
	})
}

func TestSavePageContent_NewPage(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	page := store.NewDraft("p1", "Fresh")
	page.Views = 3
	if _, err := s.SavePageContent(ctx, page); err != nil {
		t.Fatalf("failed to save content: %v", err)
	}
	got, err := s.GetPage(ctx, "p1")
	if err != nil {
		t.Fatalf("failed to get page: %v", err)
	}
	if got.Views != 3 {
		t.Errorf("got views %d, want 3 from the inserted page", got.Views)
	}
}

func TestGetPage_NotFound(t *testing.T) {
	s := store.NewMemory()
	if _, err := s.GetPage(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestDeletePage(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *store.KVStore) {
		ctx := context.Background()
		s.SavePage(ctx, store.NewDraft("p1", "a"))
		s.SavePage(ctx, store.NewDraft("p2", "b"))

		if err := s.DeletePage(ctx, "p1"); err != nil {
			t.Fatalf("failed to delete page: %v", err)
		}

		pages, _ := s.ListPages(ctx)
		if len(pages) != 1 || pages[0].ID != "p2" {
			t.Errorf("got %v, want only p2", pages)
		}
	})
}

func TestDeletePage_NonexistentIsNoop(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *store.KVStore) {
		ctx := context.Background()
		s.SavePage(ctx, store.NewDraft("p1", "a"))
		before, _ := s.ListPages(ctx)

		if err := s.DeletePage(ctx, "nope"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		after, _ := s.ListPages(ctx)
		if len(after) != len(before) || after[0].ID != before[0].ID || !after[0].LastModified.Equal(before[0].LastModified) {
			t.Errorf("pages changed: before %v, after %v", before, after)
		}
	})
}

func TestDeletePage_DropsAnalytics(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	s.SavePage(ctx, store.NewDraft("p1", "a"))
	s.RecordSale(ctx, "p1", decimal.NewFromInt(10))

	if err := s.DeletePage(ctx, "p1"); err != nil {
		t.Fatalf("failed to delete page: %v", err)
	}

	stats, _ := s.GetAnalytics(ctx)
	if _, ok := stats["p1"]; ok {
		t.Error("expected analytics record to be removed with the page")
	}
}

func TestRecordSale(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *store.KVStore) {
		ctx := context.Background()
		s.SavePage(ctx, store.NewDraft("p1", "Serum"))

		if err := s.RecordSale(ctx, "p1", decimal.NewFromInt(49)); err != nil {
			t.Fatalf("failed to record sale: %v", err)
		}

		stats, err := s.GetAnalytics(ctx)
		if err != nil {
			t.Fatalf("failed to get analytics: %v", err)
		}
		rec := stats["p1"]
		if !rec.Revenue.Equal(decimal.NewFromInt(49)) {
			t.Errorf("got analytics revenue %s, want 49", rec.Revenue)
		}
		if rec.Sales != 1 {
			t.Errorf("got sales %d, want 1", rec.Sales)
		}

		page, _ := s.GetPage(ctx, "p1")
		if !page.Revenue.Equal(decimal.NewFromInt(49)) {
			t.Errorf("got page revenue %s, want 49", page.Revenue)
		}
		if page.Views != 1 {
			t.Errorf("got page views %d, want 1", page.Views)
		}
	})
}

func TestRecordSale_Cumulative(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *store.KVStore) {
		ctx := context.Background()
		s.SavePage(ctx, store.NewDraft("p1", "Serum"))

		s.RecordSale(ctx, "p1", decimal.NewFromInt(49))
		s.RecordSale(ctx, "p1", decimal.NewFromInt(29))

		stats, _ := s.GetAnalytics(ctx)
		rec := stats["p1"]
		if !rec.Revenue.Equal(decimal.NewFromInt(78)) {
			t.Errorf("got revenue %s, want 78", rec.Revenue)
		}
		if rec.Sales != 2 {
			t.Errorf("got sales %d, want 2", rec.Sales)
		}

		page, _ := s.GetPage(ctx, "p1")
		if !page.Revenue.Equal(decimal.NewFromInt(78)) || page.Views != 2 {
			t.Errorf("got page revenue %s views %d, want 78 and 2", page.Revenue, page.Views)
		}
	})
}

func TestRecordSale_UnknownPage(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	if err := s.RecordSale(ctx, "ghost", decimal.NewFromInt(5)); err != nil {
		t.Fatalf("failed to record sale: %v", err)
	}

	stats, _ := s.GetAnalytics(ctx)
	if stats["ghost"].Sales != 1 {
		t.Errorf("got sales %d, want 1", stats["ghost"].Sales)
	}
	pages, _ := s.ListPages(ctx)
	if len(pages) != 0 {
		t.Errorf("expected no page to be created, got %d", len(pages))
	}
}

func TestRecordSale_NegativeAmount(t *testing.T) {
	s := store.NewMemory()
	err := s.RecordSale(context.Background(), "p1", decimal.NewFromInt(-1))
	if !errors.Is(err, store.ErrInvalidAmount) {
		t.Errorf("got %v, want ErrInvalidAmount", err)
	}
}

func TestRecordView(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *store.KVStore) {
		ctx := context.Background()
		s.SavePage(ctx, store.NewDraft("p1", "Serum"))

		s.RecordView(ctx, "p1")
		s.RecordView(ctx, "p1")

		stats, _ := s.GetAnalytics(ctx)
		if stats["p1"].Views != 2 || stats["p1"].Sales != 0 {
			t.Errorf("got %+v, want 2 views and no sales", stats["p1"])
		}
		page, _ := s.GetPage(ctx, "p1")
		if page.Views != 2 {
			t.Errorf("got page views %d, want 2", page.Views)
		}
	})
}

func TestCredential(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *store.KVStore) {
		ctx := context.Background()

		if _, err := s.GetCredential(ctx); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}

		s.SaveCredential(ctx, "one.myshopify.com", "tok1")
		if err := s.SaveCredential(ctx, "two.myshopify.com", "tok2"); err != nil {
			t.Fatalf("failed to save credential: %v", err)
		}

		cred, err := s.GetCredential(ctx)
		if err != nil {
			t.Fatalf("failed to get credential: %v", err)
		}
		if cred.Domain != "two.myshopify.com" || cred.Token != "tok2" {
			t.Errorf("got %+v, want the second credential", cred)
		}
	})
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := store.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	s.SavePage(ctx, store.NewDraft("p1", "Serum"))
	s.RecordSale(ctx, "p1", decimal.RequireFromString("19.99"))
	s.Close()

	s, err = store.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer s.Close()

	page, err := s.GetPage(ctx, "p1")
	if err != nil {
		t.Fatalf("failed to get page: %v", err)
	}
	if !page.Revenue.Equal(decimal.RequireFromString("19.99")) {
		t.Errorf("got revenue %s, want 19.99", page.Revenue)
	}
}

func TestCorruptValue_TreatedAsEmptyAndSetAside(t *testing.T) {
	backend := store.NewMemoryBackend()
	fixed := time.Unix(1700000000, 0)
	s := store.New(backend, store.WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	backend.SetRaw(store.PagesKey, []byte(`[{"id":`))

	pages, err := s.ListPages(ctx)
	if err != nil {
		t.Fatalf("expected corrupt value to read as empty, got %v", err)
	}
	if len(pages) != 0 {
		t.Errorf("got %d pages, want 0", len(pages))
	}

	if _, err := s.SavePage(ctx, store.NewDraft("p1", "fresh")); err != nil {
		t.Fatalf("failed to save over corrupt value: %v", err)
	}

	backup := backend.Raw(store.PagesKey + ".corrupt.1700000000")
	if string(backup) != `[{"id":` {
		t.Errorf("got backup %q, want original corrupt bytes", backup)
	}
	pages, _ = s.ListPages(ctx)
	if len(pages) != 1 {
		t.Errorf("got %d pages after save, want 1", len(pages))
	}
}

func TestListPages_SkipsUnreadableEntries(t *testing.T) {
	backend := store.NewMemoryBackend()
	fixed := time.Unix(1700000000, 0)
	s := store.New(backend, store.WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	legacy := `[{"id":"old","title":"Old","status":"draft","blocks":[],"views":0,"revenue":"0","lastModified":"10:32:01 AM"},` +
		`{"id":"p2","title":"Kept","status":"draft","blocks":[],"views":3,"revenue":"12","lastModified":"2024-01-01T00:00:00Z"},` +
		`{"id":"odd","title":"Odd","status":"draft","blocks":[{"id":"b1","type":"CAROUSEL","content":{}}],"views":0,"revenue":"0","lastModified":"2024-01-01T00:00:00Z"}]`
	backend.SetRaw(store.PagesKey, []byte(legacy))

	pages, err := s.ListPages(ctx)
	if err != nil {
		t.Fatalf("failed to list pages: %v", err)
	}
	if len(pages) != 1 || pages[0].ID != "p2" || pages[0].Views != 3 {
		t.Fatalf("got pages %+v, want only p2", pages)
	}

	if _, err := s.SavePage(ctx, store.NewDraft("p3", "New")); err != nil {
		t.Fatalf("failed to save page: %v", err)
	}
	if backup := backend.Raw(store.PagesKey + ".corrupt.1700000000"); string(backup) != legacy {
		t.Errorf("got backup %q, want the original list", backup)
	}
	pages, _ = s.ListPages(ctx)
	if len(pages) != 2 || pages[0].ID != "p2" || pages[1].ID != "p3" {
		t.Errorf("got pages %+v, want p2 and p3", pages)
	}
}

var errConflict = errors.New("watched key changed")

// conflictBackend aborts the first attempt of every Update and then runs it
// again, the way the Redis backend retries after a WATCH conflict.
type conflictBackend struct {
	*store.MemoryBackend
}

func (b conflictBackend) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	err := b.MemoryBackend.Update(ctx, func(tx store.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errConflict
	})
	if !errors.Is(err, errConflict) {
		return err
	}
	return b.MemoryBackend.Update(ctx, fn)
}

func TestReconcile_RetriedTransaction(t *testing.T) {
	backend := store.NewMemoryBackend()
	s := store.New(conflictBackend{backend})
	ctx := context.Background()

	legacy := store.NewDraft("p1", "legacy")
	legacy.Revenue = decimal.NewFromInt(30)
	if _, err := s.SavePage(ctx, legacy); err != nil {
		t.Fatalf("failed to save page: %v", err)
	}

	drifts, err := s.Reconcile(ctx, true)
	if err != nil {
		t.Fatalf("failed to reconcile: %v", err)
	}
	if len(drifts) != 1 || drifts[0].PageID != "p1" {
		t.Errorf("got drifts %+v, want p1 once", drifts)
	}
}

func TestReconcile(t *testing.T) {
	backend := store.NewMemoryBackend()
	s := store.New(backend)
	ctx := context.Background()

	s.SavePage(ctx, store.NewDraft("p1", "in sync"))
	s.RecordSale(ctx, "p1", decimal.NewFromInt(49))

	legacy := store.NewDraft("p2", "legacy")
	legacy.Revenue = decimal.NewFromInt(30)
	s.SavePage(ctx, legacy)

	s.SavePage(ctx, store.NewDraft("p3", "lagging"))
	backend.SetRaw(store.AnalyticsKey,
		[]byte(`{"p1":{"views":0,"revenue":"49","sales":1},"p3":{"views":0,"revenue":"12.5","sales":1}}`))

	drifts, err := s.Reconcile(ctx, false)
	if err != nil {
		t.Fatalf("failed to reconcile: %v", err)
	}
	if len(drifts) != 2 || drifts[0].PageID != "p2" || drifts[1].PageID != "p3" {
		t.Fatalf("got drifts %+v, want p2 and p3", drifts)
	}

	if _, err := s.Reconcile(ctx, true); err != nil {
		t.Fatalf("failed to fix drift: %v", err)
	}

	drifts, _ = s.Reconcile(ctx, false)
	if len(drifts) != 0 {
		t.Errorf("got %d drifts after fix, want 0", len(drifts))
	}
	p3, _ := s.GetPage(ctx, "p3")
	if !p3.Revenue.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("got p3 revenue %s, want 12.5 from analytics", p3.Revenue)
	}
	stats, _ := s.GetAnalytics(ctx)
	if !stats["p2"].Revenue.Equal(decimal.NewFromInt(30)) {
		t.Errorf("got p2 analytics revenue %s, want 30 from page", stats["p2"].Revenue)
	}
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	s, err := store.Open(ctx, "memory", "")
	if err != nil {
		t.Fatalf("failed to open memory store: %v", err)
	}
	s.Close()

	s, err = store.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "x.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	s.Close()

	if _, err := store.Open(ctx, "mongo", ""); err == nil {
		t.Error("expected error for unknown driver")
	}
}
