package highlight

import "github.com/samber/lo"

// DetectSpikes returns the start times of windows whose RMS exceeds
// mean(rms) * multiplier. Element i of rms covers [i*window, (i+1)*window).
func DetectSpikes(rms []float64, window, multiplier float64) []float64 {
	if len(rms) == 0 || window <= 0 {
		return nil
	}
	mean := lo.Sum(rms) / float64(len(rms))
	if mean <= 0 {
		return nil
	}
	limit := mean * multiplier

	var spikes []float64
	for i, v := range rms {
		if v > limit {
			spikes = append(spikes, float64(i)*window)
		}
	}
	return spikes
}

// anySpikeIn reports a spike in [start, end).
func anySpikeIn(spikes []float64, start, end float64) bool {
	return lo.ContainsBy(spikes, func(t float64) bool { return t >= start && t < end })
}

// anySpikeNear reports a spike within proximity of [start, end).
func anySpikeNear(spikes []float64, start, end, proximity float64) bool {
	return lo.ContainsBy(spikes, func(t float64) bool {
		return t >= start-proximity && t < end+proximity
	})
}
