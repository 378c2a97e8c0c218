package dashboard

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/shopboost/shopboost/internal/stats"
	"github.com/shopboost/shopboost/internal/store"
)

// NewPageTitle is the title of pages created from the dashboard.
const NewPageTitle = "New Shopify Funnel"

// Row is one page in the list.
type Row struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Status           string          `json:"status"`
	Live             bool            `json:"live"`
	Blocks           int             `json:"blocks"`
	Views            int64           `json:"views"`
	ViewsText        string          `json:"-"`
	Revenue          decimal.Decimal `json:"revenue"`
	RevenueText      string          `json:"-"`
	LastModified     time.Time       `json:"lastModified"`
	LastModifiedText string          `json:"lastModifiedText"`
}

// Summary folds the page list into the dashboard totals.
type Summary struct {
	Pages            []Row           `json:"pages"`
	TotalViews       int64           `json:"totalViews"`
	TotalViewsText   string          `json:"-"`
	TotalRevenue     decimal.Decimal `json:"totalRevenue"`
	TotalRevenueText string          `json:"-"`
	// AvgConversion is the share of pages with any revenue, as a percentage
	// with one decimal. It is "0.0" until some page has a view.
	AvgConversion string `json:"avgConversion"`
}

func Summarize(pages []store.Page, now time.Time) Summary {
	s := Summary{
		Pages:        make([]Row, len(pages)),
		TotalRevenue: decimal.Zero,
	}

	earning := 0
	for i, p := range pages {
		s.Pages[i] = NewRow(p, now)
		s.TotalViews += p.Views
		s.TotalRevenue = s.TotalRevenue.Add(p.Revenue)
		if p.Revenue.IsPositive() {
			earning++
		}
	}

	s.AvgConversion = "0.0"
	if s.TotalViews > 0 {
		s.AvgConversion = fmt.Sprintf("%.1f", float64(earning)/float64(len(pages))*100)
	}
	s.TotalViewsText = humanize.Comma(s.TotalViews)
	s.TotalRevenueText = FormatMoney(s.TotalRevenue)
	return s
}

func NewRow(p store.Page, now time.Time) Row {
	return Row{
		ID:               p.ID,
		Title:            p.Title,
		Status:           string(p.Status),
		Live:             p.Status == store.StatusPublished,
		Blocks:           len(p.Blocks),
		Views:            p.Views,
		ViewsText:        humanize.Comma(p.Views),
		Revenue:          p.Revenue,
		RevenueText:      FormatMoney(p.Revenue),
		LastModified:     p.LastModified,
		LastModifiedText: FormatModified(p.LastModified, now),
	}
}

// FormatMoney renders an amount as dollars with thousands separators.
func FormatMoney(d decimal.Decimal) string {
	whole := d.Truncate(0)
	cents := d.Sub(whole).Abs().Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if cents == 100 {
		whole = whole.Add(decimal.NewFromInt(int64(d.Sign())))
		cents = 0
	}
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return fmt.Sprintf("%s$%s.%02d", sign, humanize.Comma(whole.Abs().IntPart()), cents)
}

// FormatModified renders a timestamp relative to now.
func FormatModified(t, now time.Time) string {
	switch {
	case t.IsZero():
		return "never"
	case now.Sub(t) < time.Minute:
		return "Just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// CreatePage saves a fresh draft with a new id.
func CreatePage(ctx context.Context, st store.Store) (*store.Page, error) {
	return st.SavePage(ctx, store.NewDraft(store.NewID(), NewPageTitle))
}

// BlockRow is one block in the page detail view.
type BlockRow struct {
	Label string
	Title string
}

// Detail is the single-page view.
type Detail struct {
	Row            Row
	Sales          int64
	RatePercent    float64
	CILowerPercent float64
	CIUpperPercent float64
	Drift          string
	BlockRows      []BlockRow
}

func NewDetail(p store.Page, rec store.AnalyticsRecord, now time.Time) Detail {
	r := stats.Summarize(p, rec)
	d := Detail{
		Row:            NewRow(p, now),
		Sales:          r.Sales,
		RatePercent:    r.Rate * 100,
		CILowerPercent: r.CILower * 100,
		CIUpperPercent: r.CIUpper * 100,
		BlockRows:      make([]BlockRow, len(p.Blocks)),
	}
	if !rec.Revenue.Equal(p.Revenue) {
		d.Drift = fmt.Sprintf("page %s, analytics %s", FormatMoney(p.Revenue), FormatMoney(rec.Revenue))
	}
	for i, b := range p.Blocks {
		d.BlockRows[i] = BlockRow{Label: store.Label(b.Type), Title: store.CopyOf(b.Content).Title}
	}
	return d
}

type layoutData struct {
	Title   string
	CSS     template.CSS
	Content template.HTML
}

// Renderer executes the embedded templates.
type Renderer struct {
	layout  *template.Template
	content map[string]*template.Template
	css     template.CSS
}

// NewRenderer parses every embedded template once.
func NewRenderer() (*Renderer, error) {
	css, err := Assets.ReadFile("assets/style.css")
	if err != nil {
		return nil, fmt.Errorf("failed to load styles: %w", err)
	}
	layout, err := template.ParseFS(Templates, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	r := &Renderer{layout: layout, content: map[string]*template.Template{}, css: template.CSS(css)}
	for _, name := range []string{"list.html", "page.html"} {
		t, err := template.ParseFS(Templates, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		r.content[name] = t
	}
	return r, nil
}

// Render writes content wrapped in the layout to w.
func (r *Renderer) Render(w io.Writer, title, content string, data any) error {
	t, ok := r.content[content]
	if !ok {
		return fmt.Errorf("unknown template %q", content)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", content, err)
	}
	return r.layout.Execute(w, layoutData{
		Title:   title,
		CSS:     r.css,
		Content: template.HTML(buf.String()),
	})
}
