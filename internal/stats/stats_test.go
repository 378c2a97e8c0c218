package stats_test

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/shopboost/shopboost/internal/stats"
	"github.com/shopboost/shopboost/internal/store"
)

func TestWilsonInterval(t *testing.T) {
	tests := []struct {
		name              string
		successes, trials int64
		lowMin, lowMax    float64
		highMin, highMax  float64
	}{
		{"half", 50, 100, 0.38, 0.42, 0.58, 0.62},
		{"low", 5, 100, 0.01, 0.03, 0.09, 0.13},
		{"high", 95, 100, 0.87, 0.91, 0.97, 0.99},
		{"none", 0, 100, 0, 0, 0.01, 0.05},
		{"all", 100, 100, 0.95, 0.99, 0.99, 1.0},
	}

	for _, tt := range tests {
		lower, upper := stats.WilsonInterval(tt.successes, tt.trials, 0.95)
		if lower < tt.lowMin || lower > tt.lowMax {
			t.Errorf("%s: lower bound %f not in [%f, %f]", tt.name, lower, tt.lowMin, tt.lowMax)
		}
		if upper < tt.highMin || upper > tt.highMax {
			t.Errorf("%s: upper bound %f not in [%f, %f]", tt.name, upper, tt.highMin, tt.highMax)
		}
	}
}

func TestWilsonInterval_ZeroTrials(t *testing.T) {
	lower, upper := stats.WilsonInterval(0, 0, 0.95)
	if lower != 0 || upper != 0 {
		t.Errorf("expected (0, 0) for zero trials, got (%f, %f)", lower, upper)
	}
}

func TestWilsonInterval_SmallSampleIsWide(t *testing.T) {
	lower, upper := stats.WilsonInterval(5, 10, 0.95)
	if upper-lower < 0.3 {
		t.Errorf("interval width %f too narrow for small sample", upper-lower)
	}
}

func TestZScore(t *testing.T) {
	tests := []struct {
		confidence float64
		want       float64
	}{
		{0.50, 0.674},
		{0.70, 1.036},
		{0.90, 1.645},
		{0.95, 1.96},
		{0.99, 2.576},
	}

	for _, tt := range tests {
		if z := stats.ZScore(tt.confidence); math.Abs(z-tt.want) > 0.01 {
			t.Errorf("ZScore(%v) = %f, want %f", tt.confidence, z, tt.want)
		}
	}
}

func TestSignificanceTest(t *testing.T) {
	if c := stats.SignificanceTest(100, 1000, 50, 1000); c < 0.95 {
		t.Errorf("clear winner: expected confidence > 0.95, got %f", c)
	}
	if c := stats.SignificanceTest(50, 1000, 50, 1000); c > 0.60 {
		t.Errorf("equal rates: expected confidence < 0.60, got %f", c)
	}
	if c := stats.SignificanceTest(5, 20, 2, 20); c > 0.95 {
		t.Errorf("small sample: expected confidence < 0.95, got %f", c)
	}
	if c := stats.SignificanceTest(0, 0, 0, 0); c != 0.5 {
		t.Errorf("no data: expected 0.5, got %f", c)
	}
	if c := stats.SignificanceTest(10, 100, 0, 0); c != 0.5 {
		t.Errorf("one side empty: expected 0.5, got %f", c)
	}
}

func TestSummarize(t *testing.T) {
	page := store.NewDraft("p1", "Serum")
	rec := store.AnalyticsRecord{Views: 200, Sales: 10, Revenue: decimal.NewFromInt(490)}

	r := stats.Summarize(page, rec)
	if r.Rate != 0.05 {
		t.Errorf("rate = %f, want 0.05", r.Rate)
	}
	if !r.RevenuePerView.Equal(decimal.RequireFromString("2.45")) {
		t.Errorf("revenue per view = %s, want 2.45", r.RevenuePerView)
	}
	if r.CILower >= r.Rate || r.CIUpper <= r.Rate {
		t.Errorf("interval [%f, %f] does not contain %f", r.CILower, r.CIUpper, r.Rate)
	}
}

func TestSummarize_SalesWithoutViews(t *testing.T) {
	page := store.NewDraft("p1", "Serum")
	rec := store.AnalyticsRecord{Sales: 2, Revenue: decimal.NewFromInt(98)}

	r := stats.Summarize(page, rec)
	if r.Views != 2 || r.Rate != 1 {
		t.Errorf("got views %d rate %f, want 2 and 1", r.Views, r.Rate)
	}
}

func TestAnalyze(t *testing.T) {
	pages := []store.Page{store.NewDraft("a", "Control"), store.NewDraft("b", "Urgency")}
	analytics := map[string]store.AnalyticsRecord{
		"a": {Views: 1000, Sales: 100},
		"b": {Views: 1000, Sales: 150},
	}

	res := stats.Analyze(pages, analytics)
	if len(res.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(res.Pages))
	}
	if res.Leading != 1 {
		t.Errorf("expected page 1 to lead, got %d", res.Leading)
	}
	if !res.Confident {
		t.Errorf("expected a confident result, got %f", res.ConfidenceLevel)
	}
	if res.Pages[1].Title != "Urgency" {
		t.Errorf("expected title Urgency, got %q", res.Pages[1].Title)
	}
}

func TestAnalyze_ControlLeads(t *testing.T) {
	pages := []store.Page{store.NewDraft("a", "A"), store.NewDraft("b", "B"), store.NewDraft("c", "C")}
	analytics := map[string]store.AnalyticsRecord{
		"a": {Views: 100, Sales: 30},
		"b": {Views: 100, Sales: 5},
		"c": {Views: 100, Sales: 20},
	}

	res := stats.Analyze(pages, analytics)
	if res.Leading != 0 {
		t.Fatalf("expected control to lead, got %d", res.Leading)
	}
	want := stats.SignificanceTest(30, 100, 20, 100)
	if res.ConfidenceLevel != want {
		t.Errorf("expected comparison against best challenger (%f), got %f", want, res.ConfidenceLevel)
	}
}

func TestAnalyze_NoData(t *testing.T) {
	pages := []store.Page{store.NewDraft("a", "A"), store.NewDraft("b", "B")}

	res := stats.Analyze(pages, nil)
	for _, p := range res.Pages {
		if p.Views != 0 || p.Sales != 0 {
			t.Errorf("expected zero counters, got %+v", p)
		}
	}
	if res.Confident {
		t.Error("expected no confidence without data")
	}
}
