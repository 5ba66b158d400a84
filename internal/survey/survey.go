package survey

import (
	"math"
	"sort"

	"github.com/lox/drillprep/internal/models"
)

// ComputeTVD sorts stations by measured depth and accumulates true vertical
// depth using the average inclination of each leg. TVD is rounded to two
// decimals at every step, so rounding error carries forward.
func ComputeTVD(stations []models.SurveyStation) []models.SurveyStation {
	out := append([]models.SurveyStation(nil), stations...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MD < out[j].MD })

	for i := range out {
		if i == 0 {
			out[i].TVD = 0
			continue
		}
		deltaMD := out[i].MD - out[i-1].MD
		avgIncl := (out[i-1].Inclination + out[i].Inclination) / 2 * math.Pi / 180
		out[i].TVD = round2(out[i-1].TVD + deltaMD*math.Cos(avgIncl))
	}
	return out
}

// InterpolateTVD returns the TVD at each depth. Stations must already carry
// TVD and be sorted by MD. Depths outside the survey clamp to the nearest
// station; an empty survey yields nil.
func InterpolateTVD(depths []float64, stations []models.SurveyStation) []float64 {
	if len(stations) == 0 {
		return nil
	}
	out := make([]float64, len(depths))
	for i, d := range depths {
		out[i] = interpolate(d, stations)
	}
	return out
}

func interpolate(depth float64, stations []models.SurveyStation) float64 {
	first, last := stations[0], stations[len(stations)-1]
	if depth <= first.MD {
		return first.TVD
	}
	if depth >= last.MD {
		return last.TVD
	}

	// first station with MD >= depth; index is at least 1 here
	j := sort.Search(len(stations), func(k int) bool { return stations[k].MD >= depth })
	lo, hi := stations[j-1], stations[j]
	if hi.MD == lo.MD {
		return hi.TVD
	}
	ratio := (depth - lo.MD) / (hi.MD - lo.MD)
	return lo.TVD + ratio*(hi.TVD-lo.TVD)
}

// Enrich sets TVD on each point from the survey. Points are left untouched
// when there is no survey.
func Enrich(points []models.DecimatedPoint, stations []models.SurveyStation) []models.DecimatedPoint {
	out := append([]models.DecimatedPoint(nil), points...)
	if len(stations) == 0 {
		return out
	}
	computed := ComputeTVD(stations)
	for i := range out {
		tvd := interpolate(out[i].Depth, computed)
		out[i].TVD = &tvd
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
