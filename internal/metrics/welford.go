package metrics

import "math"

// WelfordState holds running mean and variance using Welford's online
// algorithm, without storing the observations.
type WelfordState struct {
	Count int
	Mean  float64
	M2    float64
}

// Update adds an observation
func (w *WelfordState) Update(value float64) {
	w.Count++
	delta := value - w.Mean
	w.Mean += delta / float64(w.Count)
	w.M2 += delta * (value - w.Mean)
}

// StdDev returns the population standard deviation, 0 below two observations
func (w *WelfordState) StdDev() float64 {
	if w.Count < 2 {
		return 0
	}
	return math.Sqrt(w.M2 / float64(w.Count))
}
