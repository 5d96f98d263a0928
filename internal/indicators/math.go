package indicators

// sma computes the simple moving average of values.
func sma(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// emaSeries computes the exponential moving average series of values.
// The first defined point, at index period-1, is the SMA of the first
// period values; the rest follow the standard recursive EMA formula.
// Entries before index period-1 are left at zero and must not be read.
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) < period {
		return out
	}
	out[period-1] = sma(values[:period])
	alpha := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}
