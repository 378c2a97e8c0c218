package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidAmount = errors.New("amount must be a non-negative number")
)

// Store defines the persistence operations for pages, analytics and the
// storefront credential.
type Store interface {
	// Page operations
	ListPages(ctx context.Context) ([]Page, error)
	GetPage(ctx context.Context, id string) (*Page, error)
	SavePage(ctx context.Context, page Page) (*Page, error)
	SavePageContent(ctx context.Context, page Page) (*Page, error)
	DeletePage(ctx context.Context, id string) error

	// Analytics operations
	RecordView(ctx context.Context, pageID string) error
	RecordSale(ctx context.Context, pageID string, amount decimal.Decimal) error
	GetAnalytics(ctx context.Context) (map[string]AnalyticsRecord, error)
	Reconcile(ctx context.Context, fix bool) ([]Drift, error)

	// Credential operations
	SaveCredential(ctx context.Context, domain, token string) error
	GetCredential(ctx context.Context) (*Credential, error)

	// Lifecycle
	Close() error
}
