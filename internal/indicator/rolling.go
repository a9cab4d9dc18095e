package indicator

import (
	"math"
	"sort"
)

// Rolling is a fixed-capacity sample window with running sum and
// sum-of-squares, so mean/stddev stay O(1) per push. Oldest samples drop
// off once the window is full.
type Rolling struct {
	buf   []float64
	head  int
	count int
	sum   float64
	sumSq float64
}

func NewRolling(capacity int) *Rolling {
	if capacity <= 0 {
		capacity = 1
	}
	return &Rolling{buf: make([]float64, capacity)}
}

func (r *Rolling) Push(v float64) {
	if r.count == len(r.buf) {
		old := r.buf[r.head]
		r.sum -= old
		r.sumSq -= old * old
	} else {
		r.count++
	}
	r.buf[r.head] = v
	r.sum += v
	r.sumSq += v * v
	r.head = (r.head + 1) % len(r.buf)
}

func (r *Rolling) Count() int { return r.count }

func (r *Rolling) Full() bool { return r.count == len(r.buf) }

func (r *Rolling) Mean() float64 {
	if r.count == 0 {
		return 0
	}
	return r.sum / float64(r.count)
}

// StdDev is the population standard deviation of the window. Fewer than two
// samples report zero; floating error that would drive the variance
// negative is floored to zero.
func (r *Rolling) StdDev() float64 {
	if r.count < 2 {
		return 0
	}
	n := float64(r.count)
	mean := r.sum / n
	variance := r.sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func (r *Rolling) Median() float64 {
	if r.count == 0 {
		return 0
	}
	tmp := make([]float64, 0, r.count)
	start := r.head - r.count
	for i := 0; i < r.count; i++ {
		idx := start + i
		if idx < 0 {
			idx += len(r.buf)
		}
		tmp = append(tmp, r.buf[idx])
	}
	sort.Float64s(tmp)
	mid := len(tmp) / 2
	if len(tmp)%2 == 1 {
		return tmp[mid]
	}
	return (tmp[mid-1] + tmp[mid]) / 2
}
