package dsp

// ZeroCrossings returns the fractional sample positions at which samples
// moves between negative and non-negative, located by linear interpolation
// between neighbours.
func ZeroCrossings(samples []float64) []float64 {
	var out []float64
	for i := 1; i < len(samples); i++ {
		a, b := samples[i-1], samples[i]
		if (a < 0) == (b < 0) {
			continue
		}
		out = append(out, float64(i-1)+a/(a-b))
	}
	return out
}

// FrequencyPoint is a local frequency estimate centred at Time seconds.
type FrequencyPoint struct {
	Time float64
	Hz   float64
}

// LocalFrequencies estimates the instantaneous frequency from the spacing of
// consecutive zero crossings: two crossings per cycle.
func LocalFrequencies(samples []float64, sampleRate float64) []FrequencyPoint {
	zc := ZeroCrossings(samples)
	if len(zc) < 2 || sampleRate <= 0 {
		return nil
	}
	out := make([]FrequencyPoint, 0, len(zc)-1)
	for i := 1; i < len(zc); i++ {
		spacing := zc[i] - zc[i-1]
		if spacing <= 0 {
			continue
		}
		out = append(out, FrequencyPoint{
			Time: (zc[i] + zc[i-1]) / 2 / sampleRate,
			Hz:   sampleRate / (2 * spacing),
		})
	}
	return out
}

// EstimateFrequency returns the mean frequency implied by the zero crossings
// of samples, or 0 when fewer than two crossings exist.
func EstimateFrequency(samples []float64, sampleRate float64) float64 {
	zc := ZeroCrossings(samples)
	if len(zc) < 2 || sampleRate <= 0 {
		return 0
	}
	halfCycles := float64(len(zc) - 1)
	span := zc[len(zc)-1] - zc[0]
	if span <= 0 {
		return 0
	}
	return sampleRate * halfCycles / (2 * span)
}
