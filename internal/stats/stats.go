// Package stats computes summary statistics over decoded point clouds.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mmwave.report/internal/mmwave"
)

// CloudSummary describes the spatial and kinematic distribution of a set of
// detected objects. Non-finite samples (the decoder passes NaN and Inf
// through unchanged) are excluded before aggregation; Count reports only the
// finite objects.
type CloudSummary struct {
	Count int `json:"count"`

	// Centroid of the finite points, metres.
	CentroidX float64 `json:"centroid_x"`
	CentroidY float64 `json:"centroid_y"`
	CentroidZ float64 `json:"centroid_z"`

	// Euclidean distance from the sensor, metres.
	RangeMin  float64 `json:"range_min"`
	RangeMax  float64 `json:"range_max"`
	RangeMean float64 `json:"range_mean"`

	// Radial velocity, metres per second.
	VelocityMean   float64 `json:"velocity_mean"`
	VelocityStdDev float64 `json:"velocity_std_dev"`
	VelocityP50    float64 `json:"velocity_p50"`
	VelocityP95    float64 `json:"velocity_p95"`
}

func finite(o mmwave.DetectedObject) bool {
	for _, v := range []float32{o.X, o.Y, o.Z, o.Velocity} {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Summarize computes a CloudSummary over one set of detected objects. An
// empty (or entirely non-finite) input yields a zero summary with Count 0.
func Summarize(objects []mmwave.DetectedObject) CloudSummary {
	var xs, ys, zs, ranges, velocities []float64
	for _, o := range objects {
		if !finite(o) {
			continue
		}
		x, y, z := float64(o.X), float64(o.Y), float64(o.Z)
		xs = append(xs, x)
		ys = append(ys, y)
		zs = append(zs, z)
		ranges = append(ranges, math.Sqrt(x*x+y*y+z*z))
		velocities = append(velocities, float64(o.Velocity))
	}

	s := CloudSummary{Count: len(xs)}
	if s.Count == 0 {
		return s
	}

	s.CentroidX = stat.Mean(xs, nil)
	s.CentroidY = stat.Mean(ys, nil)
	s.CentroidZ = stat.Mean(zs, nil)

	s.RangeMin = floats.Min(ranges)
	s.RangeMax = floats.Max(ranges)
	s.RangeMean = stat.Mean(ranges, nil)

	s.VelocityMean = stat.Mean(velocities, nil)
	if s.Count > 1 {
		s.VelocityStdDev = stat.StdDev(velocities, nil)
	}

	sort.Float64s(velocities)
	s.VelocityP50 = stat.Quantile(0.5, stat.Empirical, velocities, nil)
	s.VelocityP95 = stat.Quantile(0.95, stat.Empirical, velocities, nil)

	return s
}

// Aggregator accumulates objects across frames so a whole session can be
// summarised without retaining every frame.
type Aggregator struct {
	objects []mmwave.DetectedObject
	frames  int
}

// AddFrame folds one decoded frame into the aggregate.
func (a *Aggregator) AddFrame(frame mmwave.Frame) {
	a.objects = append(a.objects, frame.Objects...)
	a.frames++
}

// Frames reports how many frames were folded in.
func (a *Aggregator) Frames() int { return a.frames }

// Summary computes the cloud summary of every object seen so far.
func (a *Aggregator) Summary() CloudSummary {
	return Summarize(a.objects)
}

// Reset discards the accumulated state.
func (a *Aggregator) Reset() {
	a.objects = a.objects[:0]
	a.frames = 0
}
