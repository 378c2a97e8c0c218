package stats

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/shopboost/shopboost/internal/store"
)

// Confidence is the level at which a comparison is called.
const Confidence = 0.95

// PageResult is the conversion picture of one page.
type PageResult struct {
	PageID  string
	Title   string
	Views   int64
	Sales   int64
	Revenue decimal.Decimal
	Rate    float64
	CILower float64
	CIUpper float64
	// RevenuePerView is zero for pages without views.
	RevenuePerView decimal.Decimal
}

// Result compares a set of pages. Pages[0] is the control.
type Result struct {
	Pages           []PageResult
	Leading         int
	ConfidenceLevel float64
	Confident       bool
}

// SignificanceTest runs a two-proportion z-test and returns the confidence
// (0-1) that A converts better than B. Without data on both sides it
// returns 0.5.
func SignificanceTest(aSales, aViews, bSales, bViews int64) float64 {
	if aViews <= 0 || bViews <= 0 {
		return 0.5
	}

	pA := float64(aSales) / float64(aViews)
	pB := float64(bSales) / float64(bViews)
	pooled := float64(aSales+bSales) / float64(aViews+bViews)

	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(aViews) + 1/float64(bViews)))
	if se == 0 {
		switch {
		case pA > pB:
			return 1
		case pA < pB:
			return 0
		default:
			return 0.5
		}
	}
	return normalCDF((pA - pB) / se)
}

// Summarize computes a page's conversion rate from its analytics record.
// Sales recorded without a matching view still count as trials.
func Summarize(page store.Page, rec store.AnalyticsRecord) PageResult {
	trials := max(rec.Views, rec.Sales)

	r := PageResult{
		PageID:         page.ID,
		Title:          page.Title,
		Views:          trials,
		Sales:          rec.Sales,
		Revenue:        rec.Revenue,
		RevenuePerView: decimal.Zero,
	}
	if trials > 0 {
		r.Rate = float64(rec.Sales) / float64(trials)
		r.RevenuePerView = rec.Revenue.Div(decimal.NewFromInt(trials)).Round(2)
	}
	r.CILower, r.CIUpper = WilsonInterval(rec.Sales, trials, Confidence)
	return r
}

// Analyze summarizes pages in order and tests the leader against the
// control, or the control against its best challenger when it leads.
func Analyze(pages []store.Page, analytics map[string]store.AnalyticsRecord) *Result {
	res := &Result{Pages: make([]PageResult, len(pages))}

	best := 0.0
	for i, p := range pages {
		res.Pages[i] = Summarize(p, analytics[p.ID])
		if res.Pages[i].Rate > best {
			best = res.Pages[i].Rate
			res.Leading = i
		}
	}
	if len(res.Pages) < 2 {
		return res
	}

	a, b := res.Pages[res.Leading], res.Pages[0]
	if res.Leading == 0 {
		challenger := 1
		for i := 2; i < len(res.Pages); i++ {
			if res.Pages[i].Rate > res.Pages[challenger].Rate {
				challenger = i
			}
		}
		b = res.Pages[challenger]
	}

	res.ConfidenceLevel = SignificanceTest(a.Sales, a.Views, b.Sales, b.Views)
	res.Confident = res.ConfidenceLevel >= Confidence
	return res
}
