package options

import "math"

// NormCDF is the standard normal cumulative distribution function
func NormCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func d1(spot, strike, t, rate, sigma float64) float64 {
	return (math.Log(spot/strike) + (rate+0.5*sigma*sigma)*t) / (sigma * math.Sqrt(t))
}

// Price returns the Black-Scholes price of a European option.
// spot and strike in currency units, t in years, rate and sigma annualized.
// Returns intrinsic value when t or sigma is not positive.
func Price(spot, strike, t, rate, sigma float64, call bool) float64 {
	if t <= 0 || sigma <= 0 {
		if call {
			return math.Max(spot-strike, 0)
		}
		return math.Max(strike-spot, 0)
	}

	dOne := d1(spot, strike, t, rate, sigma)
	dTwo := dOne - sigma*math.Sqrt(t)
	disc := math.Exp(-rate * t)

	if call {
		return spot*NormCDF(dOne) - strike*disc*NormCDF(dTwo)
	}
	return strike*disc*NormCDF(-dTwo) - spot*NormCDF(-dOne)
}

// Delta returns the Black-Scholes delta. Call deltas are in (0, 1), put
// deltas in (-1, 0). At expiry it degenerates to the moneyness indicator.
func Delta(spot, strike, t, rate, sigma float64, call bool) float64 {
	if t <= 0 || sigma <= 0 {
		if call {
			if spot > strike {
				return 1
			}
			return 0
		}
		if spot < strike {
			return -1
		}
		return 0
	}

	dOne := d1(spot, strike, t, rate, sigma)
	if call {
		return NormCDF(dOne)
	}
	return NormCDF(dOne) - 1
}

// Intrinsic returns the expiry payoff of a single option.
func Intrinsic(terminal, strike float64, call bool) float64 {
	if call {
		return math.Max(terminal-strike, 0)
	}
	return math.Max(strike-terminal, 0)
}
