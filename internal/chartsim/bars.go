package chartsim

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewport"
)

// GenerateBars builds n deterministic random-walk OHLC bars starting at
// start and spaced by interval.
func GenerateBars(n int, start time.Time, interval time.Duration, seed uint64) []viewport.Bar {
	if n <= 0 {
		return nil
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	bars := make([]viewport.Bar, n)
	price := 100.0
	for i := range bars {
		open := price
		closePrice := math.Max(1, open*(1+(rng.Float64()-0.5)*0.02))
		high := math.Max(open, closePrice) * (1 + rng.Float64()*0.005)
		low := math.Min(open, closePrice) * (1 - rng.Float64()*0.005)
		bars[i] = viewport.Bar{
			Time:  start.Add(time.Duration(i) * interval),
			Open:  round2(open),
			High:  round2(high),
			Low:   round2(low),
			Close: round2(closePrice),
		}
		price = closePrice
	}
	return bars
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
