package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Namespace keys. Pages from earlier builds are decoded one by one; an
// entry that no longer decodes is skipped and the raw list is backed up on
// the next write.
const (
	PagesKey      = "shopboost_pages"
	AnalyticsKey  = "shopboost_analytics"
	CredentialKey = "shopboost_shopify_config"
)

var ErrInvalidPage = errors.New("invalid page")

// Tx is a unit of work against a Backend.
type Tx interface {
	// Get returns nil, nil when key is absent.
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
}

// Backend is the raw key-value layer under KVStore. Update must apply all
// Puts made by fn atomically, or none of them when fn returns an error.
type Backend interface {
	View(ctx context.Context, fn func(tx Tx) error) error
	Update(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// KVStore implements Store as whole-value JSON documents under the three
// namespace keys. Every mutation is read, modify, write inside one
// Backend transaction.
type KVStore struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
}

var _ Store = (*KVStore)(nil)

type Option func(*KVStore)

func WithLogger(logger *slog.Logger) Option {
	return func(s *KVStore) { s.logger = logger }
}

// WithClock overrides the time source used for LastModified stamps.
func WithClock(now func() time.Time) Option {
	return func(s *KVStore) { s.now = now }
}

func New(b Backend, opts ...Option) *KVStore {
	s := &KVStore{
		backend: b,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *KVStore) Close() error {
	return s.backend.Close()
}

// slot is one decoded namespace value. A value that failed to decode is
// kept as raw bytes so the next write can set it aside instead of losing it.
type slot[T any] struct {
	key     string
	raw     []byte
	corrupt bool
	val     T
}

func load[T any](s *KVStore, tx Tx, key string) (*slot[T], error) {
	data, err := tx.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	sl := &slot[T]{key: key, raw: data}
	if len(data) == 0 {
		return sl, nil
	}
	if err := json.Unmarshal(data, &sl.val); err != nil {
		s.logger.Warn("stored value is corrupt, treating as empty", "key", key, "error", err)
		var zero T
		sl.val = zero
		sl.corrupt = true
	}
	return sl, nil
}

func save[T any](s *KVStore, tx Tx, sl *slot[T]) error {
	if sl.corrupt {
		backup := fmt.Sprintf("%s.corrupt.%d", sl.key, s.now().Unix())
		if err := tx.Put(backup, sl.raw); err != nil {
			return fmt.Errorf("failed to set aside corrupt %s: %w", sl.key, err)
		}
		s.logger.Warn("moved corrupt value aside", "key", sl.key, "backup", backup)
		sl.corrupt = false
	}
	data, err := json.Marshal(sl.val)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", sl.key, err)
	}
	if err := tx.Put(sl.key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", sl.key, err)
	}
	sl.raw = data
	return nil
}

// loadPages reads the page list entry by entry, so one page that no longer
// decodes does not hide the rest. Any skipped entry marks the slot corrupt.
func loadPages(s *KVStore, tx Tx) (*slot[[]Page], error) {
	data, err := tx.Get(PagesKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", PagesKey, err)
	}
	sl := &slot[[]Page]{key: PagesKey, raw: data}
	if len(data) == 0 {
		return sl, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("stored value is corrupt, treating as empty", "key", PagesKey, "error", err)
		sl.corrupt = true
		return sl, nil
	}
	for i, raw := range entries {
		var p Page
		if err := json.Unmarshal(raw, &p); err != nil {
			s.logger.Warn("skipping unreadable page", "key", PagesKey, "index", i, "error", err)
			sl.corrupt = true
			continue
		}
		sl.val = append(sl.val, p)
	}
	return sl, nil
}

func (s *KVStore) ListPages(ctx context.Context) ([]Page, error) {
	var pages []Page
	err := s.backend.View(ctx, func(tx Tx) error {
		sl, err := loadPages(s, tx)
		if err != nil {
			return err
		}
		pages = sl.val
		return nil
	})
	if err != nil {
		return nil, err
	}
	if pages == nil {
		pages = []Page{}
	}
	return pages, nil
}

func (s *KVStore) GetPage(ctx context.Context, id string) (*Page, error) {
	pages, err := s.ListPages(ctx)
	if err != nil {
		return nil, err
	}
	for i := range pages {
		if pages[i].ID == id {
			return &pages[i], nil
		}
	}
	return nil, ErrNotFound
}

// SavePage inserts page or replaces the stored page with the same ID, and
// stamps LastModified. The stored copy is returned.
func (s *KVStore) SavePage(ctx context.Context, page Page) (*Page, error) {
	return s.upsert(ctx, page, false)
}

// SavePageContent saves page like SavePage, except that a page already in
// the store keeps its Views and Revenue. The counters are read and written
// in the same transaction, so a view or sale recorded concurrently is never
// overwritten.
func (s *KVStore) SavePageContent(ctx context.Context, page Page) (*Page, error) {
	return s.upsert(ctx, page, true)
}

func (s *KVStore) upsert(ctx context.Context, page Page, keepCounters bool) (*Page, error) {
	page = page.Clone()
	if err := validatePage(&page); err != nil {
		return nil, err
	}
	page.LastModified = s.now().UTC()

	var stored Page
	err := s.backend.Update(ctx, func(tx Tx) error {
		sl, err := loadPages(s, tx)
		if err != nil {
			return err
		}
		next := page
		replaced := false
		for i := range sl.val {
			if sl.val[i].ID == next.ID {
				if keepCounters {
					next.Views, next.Revenue = sl.val[i].Views, sl.val[i].Revenue
				}
				sl.val[i] = next
				replaced = true
				break
			}
		}
		if !replaced {
			sl.val = append(sl.val, next)
		}
		if err := save(s, tx, sl); err != nil {
			return err
		}
		stored = next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save page: %w", err)
	}
	return &stored, nil
}

func validatePage(p *Page) error {
	if p.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPage)
	}
	if p.Status == "" {
		p.Status = StatusDraft
	}
	if p.Status != StatusDraft && p.Status != StatusPublished {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidPage, p.Status)
	}
	if p.Views < 0 || p.Revenue.IsNegative() {
		return fmt.Errorf("%w: counters must be non-negative", ErrInvalidPage)
	}
	if p.Blocks == nil {
		p.Blocks = []Block{}
	}
	for i := range p.Blocks {
		b := &p.Blocks[i]
		if !b.Type.Valid() {
			return fmt.Errorf("%w: block %s: %w", ErrInvalidPage, b.ID, ErrUnknownBlockType)
		}
		if b.Content == nil {
			c, err := NewContent(b.Type)
			if err != nil {
				return err
			}
			b.Content = c
		}
		if b.Content.BlockType() != b.Type {
			return fmt.Errorf("%w: block %s has %s content for type %s", ErrInvalidPage, b.ID, b.Content.BlockType(), b.Type)
		}
	}
	return nil
}

// DeletePage removes the page and its analytics record. Deleting an unknown
// id writes nothing.
func (s *KVStore) DeletePage(ctx context.Context, id string) error {
	err := s.backend.Update(ctx, func(tx Tx) error {
		pages, err := loadPages(s, tx)
		if err != nil {
			return err
		}
		kept := pages.val[:0:0]
		for _, p := range pages.val {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		if len(kept) != len(pages.val) {
			pages.val = kept
			if err := save(s, tx, pages); err != nil {
				return err
			}
		}

		stats, err := load[map[string]AnalyticsRecord](s, tx, AnalyticsKey)
		if err != nil {
			return err
		}
		if _, ok := stats.val[id]; ok {
			delete(stats.val, id)
			return save(s, tx, stats)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete page: %w", err)
	}
	return nil
}

// RecordView counts one view for the page.
func (s *KVStore) RecordView(ctx context.Context, pageID string) error {
	return s.record(ctx, pageID, func(rec *AnalyticsRecord, page *Page) {
		rec.Views++
		if page != nil {
			page.Views++
		}
	})
}

// RecordSale adds amount to the page's revenue and counts one sale. A sale
// also counts as a view on the page itself. The analytics record and the
// page are written in the same transaction; the analytics side is written
// even when the page does not exist.
func (s *KVStore) RecordSale(ctx context.Context, pageID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	return s.record(ctx, pageID, func(rec *AnalyticsRecord, page *Page) {
		rec.Revenue = rec.Revenue.Add(amount)
		rec.Sales++
		if page != nil {
			page.Revenue = page.Revenue.Add(amount)
			page.Views++
		}
	})
}

func (s *KVStore) record(ctx context.Context, pageID string, apply func(rec *AnalyticsRecord, page *Page)) error {
	if pageID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPage)
	}
	err := s.backend.Update(ctx, func(tx Tx) error {
		stats, err := load[map[string]AnalyticsRecord](s, tx, AnalyticsKey)
		if err != nil {
			return err
		}
		pages, err := loadPages(s, tx)
		if err != nil {
			return err
		}
		if stats.val == nil {
			stats.val = map[string]AnalyticsRecord{}
		}

		rec := stats.val[pageID]
		var page *Page
		for i := range pages.val {
			if pages.val[i].ID == pageID {
				page = &pages.val[i]
				break
			}
		}

		apply(&rec, page)
		stats.val[pageID] = rec

		if err := save(s, tx, stats); err != nil {
			return err
		}
		if page != nil {
			return save(s, tx, pages)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (s *KVStore) GetAnalytics(ctx context.Context) (map[string]AnalyticsRecord, error) {
	var stats map[string]AnalyticsRecord
	err := s.backend.View(ctx, func(tx Tx) error {
		sl, err := load[map[string]AnalyticsRecord](s, tx, AnalyticsKey)
		if err != nil {
			return err
		}
		stats = sl.val
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = map[string]AnalyticsRecord{}
	}
	return stats, nil
}

// Reconcile reports pages whose revenue disagrees with their analytics
// record. With fix set, the analytics record wins; a page that has revenue
// but no record gets a record built from the page instead.
func (s *KVStore) Reconcile(ctx context.Context, fix bool) ([]Drift, error) {
	var drifts []Drift
	run := s.backend.View
	if fix {
		run = s.backend.Update
	}

	err := run(ctx, func(tx Tx) error {
		drifts = drifts[:0]
		stats, err := load[map[string]AnalyticsRecord](s, tx, AnalyticsKey)
		if err != nil {
			return err
		}
		pages, err := loadPages(s, tx)
		if err != nil {
			return err
		}
		if stats.val == nil {
			stats.val = map[string]AnalyticsRecord{}
		}

		statsChanged := false
		for i := range pages.val {
			p := &pages.val[i]
			rec, ok := stats.val[p.ID]
			if rec.Revenue.Equal(p.Revenue) {
				continue
			}
			drifts = append(drifts, Drift{
				PageID:           p.ID,
				PageRevenue:      p.Revenue,
				AnalyticsRevenue: rec.Revenue,
			})
			if !fix {
				continue
			}
			if ok {
				p.Revenue = rec.Revenue
			} else {
				stats.val[p.ID] = AnalyticsRecord{Views: p.Views, Revenue: p.Revenue}
				statsChanged = true
			}
		}

		if !fix || len(drifts) == 0 {
			return nil
		}
		if err := save(s, tx, pages); err != nil {
			return err
		}
		if statsChanged {
			return save(s, tx, stats)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile analytics: %w", err)
	}

	sort.Slice(drifts, func(i, j int) bool { return drifts[i].PageID < drifts[j].PageID })
	return drifts, nil
}

func (s *KVStore) SaveCredential(ctx context.Context, domain, token string) error {
	err := s.backend.Update(ctx, func(tx Tx) error {
		sl, err := load[*Credential](s, tx, CredentialKey)
		if err != nil {
			return err
		}
		sl.val = &Credential{Domain: domain, Token: token}
		return save(s, tx, sl)
	})
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (s *KVStore) GetCredential(ctx context.Context) (*Credential, error) {
	var cred *Credential
	err := s.backend.View(ctx, func(tx Tx) error {
		sl, err := load[*Credential](s, tx, CredentialKey)
		if err != nil {
			return err
		}
		cred = sl.val
		return nil
	})
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrNotFound
	}
	return cred, nil
}
