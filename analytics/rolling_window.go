package analytics

import "math"

// RollingWindow keeps the last windowSize values of one telemetry variable.
type RollingWindow struct {
	windowSize int
	values     []float64
	index      int
	count      int
	sum        float64
}

func NewRollingWindow(size int) *RollingWindow {
	if size < 1 {
		size = 1
	}
	return &RollingWindow{
		windowSize: size,
		values:     make([]float64, size),
	}
}

func (rw *RollingWindow) Add(value float64) {
	if rw.count < rw.windowSize {
		rw.values[rw.index] = value
		rw.sum += value
		rw.count++
		rw.index = (rw.index + 1) % rw.windowSize
	} else {
		oldValue := rw.values[rw.index]
		rw.values[rw.index] = value
		rw.sum = rw.sum - oldValue + value
		rw.index = (rw.index + 1) % rw.windowSize
	}
}

func (rw *RollingWindow) Len() int {
	return rw.count
}

func (rw *RollingWindow) Average() float64 {
	if rw.count == 0 {
		return 0.0
	}
	return rw.sum / float64(rw.count)
}

// StdDev is the sample standard deviation (n-1 denominator).
func (rw *RollingWindow) StdDev() float64 {
	if rw.count < 2 {
		return 0.0
	}
	avg := rw.Average()
	var variance float64
	for _, v := range rw.GetValues() {
		diff := v - avg
		variance += diff * diff
	}
	variance /= float64(rw.count - 1)
	return math.Sqrt(variance)
}

// Last returns the most recently added value.
func (rw *RollingWindow) Last() float64 {
	if rw.count == 0 {
		return 0.0
	}
	return rw.values[(rw.index-1+rw.windowSize)%rw.windowSize]
}

// GetValues returns the buffered values in storage order, not insertion order.
func (rw *RollingWindow) GetValues() []float64 {
	if rw.count < rw.windowSize {
		return rw.values[:rw.count]
	}
	return rw.values
}
