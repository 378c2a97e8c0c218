package store

import (
	"time"

	"github.com/shopspring/decimal"
)

type PageStatus string

const (
	StatusDraft     PageStatus = "draft"
	StatusPublished PageStatus = "published"
)

type Page struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Status       PageStatus      `json:"status"`
	Blocks       []Block         `json:"blocks"`
	Views        int64           `json:"views"`
	Revenue      decimal.Decimal `json:"revenue"`
	LastModified time.Time       `json:"lastModified"`
	ABTesting    *ABTesting      `json:"abTesting,omitempty"`
}

// ABTesting describes a page taking part in a split test. Nothing in the
// editor populates it yet; it round-trips through storage untouched.
type ABTesting struct {
	Enabled        bool    `json:"enabled"`
	VariantName    string  `json:"variantName"`
	ConversionRate float64 `json:"conversionRate"`
}

// Block is a single content section of a page. Its Content variant always
// matches Type.
type Block struct {
	ID      string    `json:"id"`
	Type    BlockType `json:"type"`
	Content Content   `json:"content"`
}

type AnalyticsRecord struct {
	Views   int64           `json:"views"`
	Revenue decimal.Decimal `json:"revenue"`
	Sales   int64           `json:"sales"`
}

// Credential is the storefront connection. Only one is kept at a time.
type Credential struct {
	Domain string `json:"domain"`
	Token  string `json:"token"`
}

// Drift is a page whose own revenue disagrees with its analytics record.
type Drift struct {
	PageID           string
	PageRevenue      decimal.Decimal
	AnalyticsRevenue decimal.Decimal
}

// NewDraft returns an empty draft page with zeroed counters.
func NewDraft(id, title string) Page {
	return Page{
		ID:      id,
		Title:   title,
		Status:  StatusDraft,
		Blocks:  []Block{},
		Revenue: decimal.Zero,
	}
}

// Clone returns a deep copy of p so callers can mutate it freely.
func (p Page) Clone() Page {
	out := p
	out.Blocks = make([]Block, len(p.Blocks))
	for i, b := range p.Blocks {
		out.Blocks[i] = b.Clone()
	}
	if p.ABTesting != nil {
		ab := *p.ABTesting
		out.ABTesting = &ab
	}
	return out
}

func (b Block) Clone() Block {
	out := b
	if b.Content != nil {
		out.Content = b.Content.clone()
	}
	return out
}
