// Package session holds the working copy of a page while it is edited and
// writes it back to the store after edits settle.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopboost/shopboost/internal/generator"
	"github.com/shopboost/shopboost/internal/shopify"
	"github.com/shopboost/shopboost/internal/store"
)

const (
	DefaultTitle         = "New Landing Funnel"
	DefaultAutosaveDelay = 5 * time.Second

	saveTimeout = 10 * time.Second
)

// DemoSaleAmount is what SimulateSale records.
var DemoSaleAmount = decimal.NewFromInt(49)

var (
	// ErrBusy is returned while a generation or product fetch is in flight.
	ErrBusy = errors.New("operation already in progress")

	// ErrStale is returned for work on, or results arriving at, a closed
	// session.
	ErrStale = errors.New("session is closed")
)

// ProductSource fetches storefront products.
type ProductSource interface {
	FetchProducts(ctx context.Context, domain, token string) ([]shopify.Product, error)
}

type Option func(*Session)

func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithAutosaveDelay sets the quiet period before an edit is persisted.
func WithAutosaveDelay(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.delay = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithIDs replaces the block id generator.
func WithIDs(fn func() string) Option {
	return func(s *Session) { s.newID = fn }
}

// Session is one page being edited. All methods are safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	store    store.Store
	clock    Clock
	delay    time.Duration
	logger   *slog.Logger
	newID    func() string
	page     store.Page
	products []shopify.Product

	timer Timer
	// seq identifies the current autosave timer; a callback whose seq is
	// behind has been superseded.
	seq     uint64
	dirty   bool
	lastErr error

	closed     bool
	generating bool
	connecting bool
}

// Load opens the page with id, or a fresh draft when the store has none.
// A fresh draft is scheduled for autosave right away.
func Load(ctx context.Context, st store.Store, id string, opts ...Option) (*Session, error) {
	if id == "" {
		return nil, errors.New("page id is required")
	}

	s := &Session{
		store:    st,
		clock:    RealClock,
		delay:    DefaultAutosaveDelay,
		logger:   slog.Default(),
		newID:    store.NewID,
		products: append([]shopify.Product(nil), shopify.DemoProducts...),
	}
	for _, opt := range opts {
		opt(s)
	}

	page, err := st.GetPage(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.page = store.NewDraft(id, DefaultTitle)
		s.mu.Lock()
		s.touch()
		s.mu.Unlock()
	case err != nil:
		return nil, fmt.Errorf("failed to load page: %w", err)
	default:
		s.page = page.Clone()
	}
	return s, nil
}

// Page returns a copy of the working page.
func (s *Session) Page() store.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page.Clone()
}

// Products returns the product list shown alongside the page.
func (s *Session) Products() []shopify.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shopify.Product(nil), s.products...)
}

// Dirty reports whether the working page has unsaved edits.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// LastSaveError is the error of the most recent autosave, if it failed.
func (s *Session) LastSaveError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// touch marks the page dirty and restarts the autosave timer. Callers hold mu.
func (s *Session) touch() {
	s.dirty = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.seq++
	seq := s.seq
	s.timer = s.clock.AfterFunc(s.delay, func() { s.autosave(seq) })
}

func (s *Session) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.seq++
}

func (s *Session) autosave(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.seq {
		return
	}
	s.timer = nil

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.persist(ctx); err != nil {
		s.lastErr = err
		s.logger.Error("autosave failed", "page", s.page.ID, "error", err)
		return
	}
	s.logger.Debug("autosaved", "page", s.page.ID, "blocks", len(s.page.Blocks))
}

// persist writes the working page. Views and revenue are owned by the
// analytics path; the store keeps its own counters and hands them back.
func (s *Session) persist(ctx context.Context) error {
	saved, err := s.store.SavePageContent(ctx, s.page)
	if err != nil {
		return fmt.Errorf("failed to save page: %w", err)
	}
	s.page.Views, s.page.Revenue = saved.Views, saved.Revenue
	s.page.LastModified = saved.LastModified
	s.dirty = false
	s.lastErr = nil
	return nil
}

func (s *Session) edit(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStale
	}
	if err := fn(); err != nil {
		return err
	}
	s.touch()
	return nil
}

// AddBlock appends a block of type t with default content and returns its id.
func (s *Session) AddBlock(t store.BlockType) (string, error) {
	content, err := store.DefaultContent(t)
	if err != nil {
		return "", err
	}
	var id string
	err = s.edit(func() error {
		id = s.newID()
		s.page.Blocks = append(s.page.Blocks, store.Block{ID: id, Type: t, Content: content})
		return nil
	})
	return id, err
}

// UpdateBlockContent sets one content field of a block. An unknown block id
// is a no-op.
func (s *Session) UpdateBlockContent(blockID, field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStale
	}

	i := s.indexOf(blockID)
	if i < 0 {
		return nil
	}
	content, err := store.SetField(s.page.Blocks[i].Content, field, value)
	if err != nil {
		return err
	}
	s.page.Blocks[i].Content = content
	s.touch()
	return nil
}

// ReplaceBlocks swaps the whole block list, giving every block a fresh id.
func (s *Session) ReplaceBlocks(drafts []generator.BlockDraft) error {
	return s.edit(func() error {
		s.replace(drafts)
		return nil
	})
}

func (s *Session) replace(drafts []generator.BlockDraft) {
	blocks := make([]store.Block, 0, len(drafts))
	seen := make(map[string]bool, len(drafts))
	for _, d := range drafts {
		id := s.newID()
		for seen[id] {
			id = s.newID()
		}
		seen[id] = true

		content := d.Content
		if content == nil {
			content, _ = store.NewContent(d.Type)
		}
		blocks = append(blocks, store.Block{ID: id, Type: d.Type, Content: content})
	}
	s.page.Blocks = blocks
}

// RemoveBlock deletes a block. An unknown id is a no-op.
func (s *Session) RemoveBlock(blockID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStale
	}

	i := s.indexOf(blockID)
	if i < 0 {
		return nil
	}
	s.page.Blocks = append(s.page.Blocks[:i], s.page.Blocks[i+1:]...)
	s.touch()
	return nil
}

// MoveBlock shifts a block by delta positions, clamped to the list bounds.
func (s *Session) MoveBlock(blockID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStale
	}

	from := s.indexOf(blockID)
	if from < 0 {
		return nil
	}
	to := min(max(from+delta, 0), len(s.page.Blocks)-1)
	if to == from {
		return nil
	}

	b := s.page.Blocks[from]
	blocks := append(s.page.Blocks[:from:from], s.page.Blocks[from+1:]...)
	blocks = append(blocks[:to], append([]store.Block{b}, blocks[to:]...)...)
	s.page.Blocks = blocks
	s.touch()
	return nil
}

func (s *Session) indexOf(blockID string) int {
	for i, b := range s.page.Blocks {
		if b.ID == blockID {
			return i
		}
	}
	return -1
}

func (s *Session) SetTitle(title string) error {
	return s.edit(func() error {
		s.page.Title = title
		return nil
	})
}

func (s *Session) Publish() error {
	return s.setStatus(store.StatusPublished)
}

func (s *Session) Unpublish() error {
	return s.setStatus(store.StatusDraft)
}

func (s *Session) setStatus(status store.PageStatus) error {
	return s.edit(func() error {
		s.page.Status = status
		return nil
	})
}

// ManualSave persists the page now, cancelling any pending autosave.
func (s *Session) ManualSave(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStale
	}
	s.cancelTimer()
	return s.persist(ctx)
}

// Flush persists the page if it has unsaved edits.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.dirty {
		return nil
	}
	s.cancelTimer()
	return s.persist(ctx)
}

// SimulateSale records a demo sale for the page and refreshes its counters.
func (s *Session) SimulateSale(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStale
	}

	if err := s.store.RecordSale(ctx, s.page.ID, DemoSaleAmount); err != nil {
		return fmt.Errorf("failed to record sale: %w", err)
	}
	page, err := s.store.GetPage(ctx, s.page.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to refresh page: %w", err)
	}
	s.page.Views, s.page.Revenue = page.Views, page.Revenue
	return nil
}

// Generate replaces the blocks with a generated layout. The session stays
// usable while the generator runs; a second Generate meanwhile gets ErrBusy.
// On failure the blocks are left as they were.
func (s *Session) Generate(ctx context.Context, gen generator.Layouter, prompt string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStale
	}
	if s.generating {
		s.mu.Unlock()
		return ErrBusy
	}
	s.generating = true
	s.mu.Unlock()

	drafts, err := gen.GenerateLayout(ctx, prompt)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generating = false
	if s.closed {
		s.logger.Info("discarding layout for closed session", "page", s.page.ID)
		return ErrStale
	}
	if err != nil {
		return err
	}
	s.replace(drafts)
	s.touch()
	return nil
}

// Generating reports whether a layout generation is in flight.
func (s *Session) Generating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generating
}

// ConnectProducts fetches the storefront's products. On success the
// credential is saved and the products replace the list; if either step
// fails nothing changes.
func (s *Session) ConnectProducts(ctx context.Context, src ProductSource, domain, token string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStale
	}
	if s.connecting {
		s.mu.Unlock()
		return ErrBusy
	}
	s.connecting = true
	s.mu.Unlock()

	products, err := src.FetchProducts(ctx, domain, token)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.connecting = false
	if s.closed {
		return ErrStale
	}
	if err != nil {
		return err
	}
	if err := s.store.SaveCredential(ctx, domain, token); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	s.products = products
	return nil
}

// Reconnect runs ConnectProducts with the stored credential, if there is one.
func (s *Session) Reconnect(ctx context.Context, src ProductSource) error {
	cred, err := s.store.GetCredential(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read credential: %w", err)
	}
	return s.ConnectProducts(ctx, src, cred.Domain, cred.Token)
}

// Close stops the autosave timer. Unsaved edits are dropped; call Flush first
// to keep them. Results of in-flight calls are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimer()
	s.closed = true
}
