package features

import (
	"math"
	"time"
)

// rolling computes trailing mean, sample std, min and max over at most w samples
// ending at each position. A single-sample window has an undefined (NaN) std.
func rolling(x []float64, w int) (mean, std, lo, hi []float64) {
	n := len(x)
	mean = make([]float64, n)
	std = make([]float64, n)
	lo = make([]float64, n)
	hi = make([]float64, n)
	for i := 0; i < n; i++ {
		start := max(0, i-w+1)
		m, s := meanStd(x[start : i+1])
		mean[i], std[i] = m, s
		lo[i], hi[i] = x[start], x[start]
		for _, v := range x[start+1 : i+1] {
			lo[i] = min(lo[i], v)
			hi[i] = max(hi[i], v)
		}
	}
	return mean, std, lo, hi
}

func meanStd(window []float64) (float64, float64) {
	n := float64(len(window))
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / n
	if len(window) < 2 {
		return mean, math.NaN()
	}
	var ss float64
	for _, v := range window {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / (n - 1))
}

// change computes the absolute and relative change over h positions. Positions
// without a predecessor are NaN; a zero base yields a relative change of 0.
func change(x []float64, h int) (diff, pct []float64) {
	n := len(x)
	diff = make([]float64, n)
	pct = make([]float64, n)
	for i := 0; i < n; i++ {
		if i < h {
			diff[i], pct[i] = math.NaN(), math.NaN()
			continue
		}
		base := x[i-h]
		diff[i] = x[i] - base
		if base == 0 {
			pct[i] = 0
			continue
		}
		pct[i] = diff[i] / base
	}
	return diff, pct
}

// anomaly computes the trailing z-score over window w and flags |z| > threshold.
func anomaly(x []float64, w int, threshold float64) (z, flag []float64) {
	n := len(x)
	z = make([]float64, n)
	flag = make([]float64, n)
	for i := 0; i < n; i++ {
		start := max(0, i-w+1)
		mean, std := meanStd(x[start : i+1])
		z[i] = (x[i] - mean) / (std + zscoreEpsilon)
		if math.Abs(z[i]) > threshold {
			flag[i] = 1
		}
	}
	return z, flag
}

// addCalendar derives hour/day features; day of week counts Monday as 0.
func addCalendar(b *builder, ts []time.Time) {
	n := len(ts)
	hour := make([]float64, n)
	dow := make([]float64, n)
	weekend := make([]float64, n)
	business := make([]float64, n)
	hourSin := make([]float64, n)
	hourCos := make([]float64, n)
	daySin := make([]float64, n)
	dayCos := make([]float64, n)
	for i, t := range ts {
		h := t.Hour()
		d := (int(t.Weekday()) + 6) % 7
		hour[i] = float64(h)
		dow[i] = float64(d)
		if d >= 5 {
			weekend[i] = 1
		}
		if h >= 9 && h <= 17 {
			business[i] = 1
		}
		hourSin[i] = math.Sin(2 * math.Pi * float64(h) / 24)
		hourCos[i] = math.Cos(2 * math.Pi * float64(h) / 24)
		daySin[i] = math.Sin(2 * math.Pi * float64(d) / 7)
		dayCos[i] = math.Cos(2 * math.Pi * float64(d) / 7)
	}
	b.add("hour", hour)
	b.add("day_of_week", dow)
	b.add("is_weekend", weekend)
	b.add("is_business_hours", business)
	b.add("hour_sin", hourSin)
	b.add("hour_cos", hourCos)
	b.add("day_sin", daySin)
	b.add("day_cos", dayCos)
}
