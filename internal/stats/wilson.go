package stats

import "math"

// WilsonInterval returns the Wilson score interval for successes out of
// trials. It behaves better than the normal approximation when a page has
// few views or a rate near 0 or 1.
func WilsonInterval(successes, trials int64, confidence float64) (lower, upper float64) {
	if trials <= 0 {
		return 0, 0
	}
	successes = min(max(successes, 0), trials)

	z := ZScore(confidence)
	n := float64(trials)
	p := float64(successes) / n
	z2 := z * z

	denom := 1 + z2/n
	center := (p + z2/(2*n)) / denom
	spread := z / denom * math.Sqrt(p*(1-p)/n+z2/(4*n*n))

	return math.Max(center-spread, 0), math.Min(center+spread, 1)
}

// ZScore returns the two-sided critical value for a confidence level.
func ZScore(confidence float64) float64 {
	switch {
	case confidence >= 0.99:
		return 2.576
	case confidence >= 0.95:
		return 1.96
	case confidence >= 0.90:
		return 1.645
	case confidence >= 0.85:
		return 1.44
	case confidence >= 0.80:
		return 1.28
	case confidence <= 0:
		return 0
	}
	return inverseNormal((1 + confidence) / 2)
}

// inverseNormal finds z with normalCDF(z) = p by bisection.
func inverseNormal(p float64) float64 {
	lo, hi := -8.0, 8.0
	for i := 0; i < 60; i++ {
		mid := (lo + hi) / 2
		if normalCDF(mid) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// normalCDF is the standard normal CDF via the Abramowitz-Stegun 7.1.26
// approximation of erf.
func normalCDF(x float64) float64 {
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)

	sign := 1.0
	if x < 0 {
		sign = -1
	}
	x = math.Abs(x) / math.Sqrt2

	t := 1 / (1 + p*x)
	erf := 1 - ((((a5*t+a4)*t+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)
	return 0.5 * (1 + sign*erf)
}
