package model

// Series is a uniformly sampled scalar time series. StepMS is the sampling
// interval in milliseconds; sample i covers time i*StepMS.
type Series struct {
	StepMS float64
	Values []float64
}

// NewSeries allocates a zeroed series of n samples at the given step.
func NewSeries(stepMS float64, n int) Series {
	return Series{StepMS: stepMS, Values: make([]float64, n)}
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.Values) }

// SameShape reports whether two series have identical length and step.
func (s Series) SameShape(other Series) bool {
	return len(s.Values) == len(other.Values) && s.StepMS == other.StepMS
}

// Clone returns a deep copy of the series.
func (s Series) Clone() Series {
	out := Series{StepMS: s.StepMS, Values: make([]float64, len(s.Values))}
	copy(out.Values, s.Values)
	return out
}

// Scale multiplies every sample by factor and returns the scaled series.
// The receiver is not modified.
func (s Series) Scale(factor float64) Series {
	out := s.Clone()
	for i := range out.Values {
		out.Values[i] *= factor
	}
	return out
}

// Smooth applies a centered moving average with the given window width in
// milliseconds and returns the smoothed series. Windows narrower than one
// sample leave the series unchanged. Edges use a truncated window.
func (s Series) Smooth(windowMS float64) Series {
	if s.StepMS <= 0 {
		return s.Clone()
	}
	half := int(windowMS / s.StepMS / 2)
	if half < 1 {
		return s.Clone()
	}
	out := Series{StepMS: s.StepMS, Values: make([]float64, len(s.Values))}
	for i := range s.Values {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi >= len(s.Values) {
			hi = len(s.Values) - 1
		}
		sum := 0.0
		for j := lo; j <= hi; j++ {
			sum += s.Values[j]
		}
		out.Values[i] = sum / float64(hi-lo+1)
	}
	return out
}
