package indicators

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"github.com/quantleap/quantd/internal/domain"
)

// Lookback periods of the fixed indicator set.
const (
	smaMicroPeriod   = 5
	smaShortPeriod   = 20
	smaMidPeriod     = 50
	smaLongPeriod    = 200
	emaFastPeriod    = 12
	emaSlowPeriod    = 26
	rsiPeriod        = 14
	macdFastPeriod   = 12
	macdSlowPeriod   = 26
	macdSignalPeriod = 9
	bollingerPeriod  = 20
	bollingerWidth   = 2.0
	atrPeriod        = 14
	stochKPeriod     = 14
	stochDPeriod     = 3
	adxPeriod        = 14
)

// Compute runs the full indicator set over one symbol's bar history. Every
// returned series has the same length as bars; warm-up samples hold NaN and
// are never extrapolated. Histories shorter than an indicator's warm-up
// yield a fully unavailable series for that indicator.
func Compute(bars []domain.Bar) (IndicatorSet, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars to compute indicators on", domain.ErrDataUnavailable)
	}

	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = b.Volume
	}

	set := make(IndicatorSet, 19)

	set[Close] = domain.NewSeries(append([]float64(nil), closes...), 0)
	set[SMA5] = smaSeries(closes, smaMicroPeriod)
	set[SMA20] = smaSeries(closes, smaShortPeriod)
	set[SMA50] = smaSeries(closes, smaMidPeriod)
	set[SMA200] = smaSeries(closes, smaLongPeriod)
	set[EMA12] = emaSeries(closes, emaFastPeriod)
	set[EMA26] = emaSeries(closes, emaSlowPeriod)
	set[RSI14] = rsiSeries(closes, rsiPeriod)

	macdLine, signal, hist := macdSeries(closes)
	set[MACD] = macdLine
	set[MACDSignal] = signal
	set[MACDHist] = hist

	upper, middle, lower := bollingerSeries(closes)
	set[BBUpper] = upper
	set[BBMiddle] = middle
	set[BBLower] = lower

	set[ATR14] = atrSeries(highs, lows, closes, atrPeriod)

	k, d := stochasticSeries(highs, lows, closes)
	set[StochK] = k
	set[StochD] = d

	set[OBV] = obvSeries(closes, volumes)
	set[ADX14] = adxSeries(highs, lows, closes, adxPeriod)

	return set, nil
}

func smaSeries(closes []float64, period int) domain.Series {
	warm := period - 1
	if len(closes) <= warm {
		return unavailableSeries(len(closes))
	}
	return maskWarmup(talib.Sma(closes, period), warm)
}

func emaSeries(closes []float64, period int) domain.Series {
	warm := period - 1
	if len(closes) <= warm {
		return unavailableSeries(len(closes))
	}
	return maskWarmup(talib.Ema(closes, period), warm)
}

func rsiSeries(closes []float64, period int) domain.Series {
	// First RSI sample needs period+1 closes (one change per period).
	warm := period
	if len(closes) <= warm {
		return unavailableSeries(len(closes))
	}
	return maskWarmup(talib.Rsi(closes, period), warm)
}

func macdSeries(closes []float64) (domain.Series, domain.Series, domain.Series) {
	// All three outputs begin after the slow EMA plus the signal EMA settle.
	warm := macdSlowPeriod + macdSignalPeriod - 2
	if len(closes) <= warm {
		return unavailableSeries(len(closes)), unavailableSeries(len(closes)), unavailableSeries(len(closes))
	}
	macdLine, signal, hist := talib.Macd(closes, macdFastPeriod, macdSlowPeriod, macdSignalPeriod)
	return maskWarmup(macdLine, warm), maskWarmup(signal, warm), maskWarmup(hist, warm)
}

func bollingerSeries(closes []float64) (domain.Series, domain.Series, domain.Series) {
	warm := bollingerPeriod - 1
	if len(closes) <= warm {
		return unavailableSeries(len(closes)), unavailableSeries(len(closes)), unavailableSeries(len(closes))
	}
	upper, middle, lower := talib.BBands(closes, bollingerPeriod, bollingerWidth, bollingerWidth, 0)
	return maskWarmup(upper, warm), maskWarmup(middle, warm), maskWarmup(lower, warm)
}

func atrSeries(highs, lows, closes []float64, period int) domain.Series {
	// True range needs the previous close, so the first ATR lands at period.
	warm := period
	if len(closes) <= warm {
		return unavailableSeries(len(closes))
	}
	return maskWarmup(talib.Atr(highs, lows, closes, period), warm)
}

func stochasticSeries(highs, lows, closes []float64) (domain.Series, domain.Series) {
	// %K and %D both begin after the raw stochastic plus the %D smoothing.
	warm := stochKPeriod + stochDPeriod - 2
	if len(closes) <= warm {
		return unavailableSeries(len(closes)), unavailableSeries(len(closes))
	}
	k, d := talib.StochF(highs, lows, closes, stochKPeriod, stochDPeriod, 0)
	return maskWarmup(k, warm), maskWarmup(d, warm)
}

func obvSeries(closes, volumes []float64) domain.Series {
	return domain.NewSeries(talib.Obv(closes, volumes), 0)
}

func adxSeries(highs, lows, closes []float64, period int) domain.Series {
	// Wilder smoothing runs twice, so the first ADX lands at 2*period-1.
	warm := 2*period - 1
	if len(closes) <= warm {
		return unavailableSeries(len(closes))
	}
	return maskWarmup(talib.Adx(highs, lows, closes, period), warm)
}

// maskWarmup overwrites the warm-up prefix with NaN. go-talib zero-fills
// samples before an indicator's lookback; zeros there would read as real
// values.
func maskWarmup(values []float64, warmup int) domain.Series {
	if warmup > len(values) {
		warmup = len(values)
	}
	for i := 0; i < warmup; i++ {
		values[i] = math.NaN()
	}
	return domain.NewSeries(values, warmup)
}

func unavailableSeries(n int) domain.Series {
	values := make([]float64, n)
	for i := range values {
		values[i] = math.NaN()
	}
	return domain.NewSeries(values, n)
}

// AlignToPanel expands a compacted per-bar series set onto a panel date
// axis of panelLen rows; rows[i] is the panel row of bar i. Rows the
// symbol never traded stay NaN.
func AlignToPanel(set IndicatorSet, rows []int, panelLen int) IndicatorSet {
	aligned := make(IndicatorSet, len(set))
	for name, series := range set {
		values := make([]float64, panelLen)
		for i := range values {
			values[i] = math.NaN()
		}
		for i, v := range series.Values {
			values[rows[i]] = v
		}
		warm := panelLen
		if series.Warmup < len(rows) {
			warm = rows[series.Warmup]
		}
		aligned[name] = domain.NewSeries(values, warm)
	}
	return aligned
}
