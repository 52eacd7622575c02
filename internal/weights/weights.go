// Package weights implements Component B: a dense 2-D weight table shared
// by the emission and transition scorers, with AdaGrad-style adaptive
// learning rates and lazy time-averaging.
package weights

import (
	"math"
	"sync"

	"k8s.io/klog/v2"
)

// AdaGradEpsilon avoids division by zero on a cell's first update.
const AdaGradEpsilon = 1.0

// Vector is a dense (rows x cols) table of weights. It is either an
// emission table, shaped (n_features, n_labels), or a transition table,
// shaped (n_labels+2, n_labels+2). It is mutated solely by the trainer
// (spec §3 lifecycle); Vector itself only serializes access so that a
// read-only inference pass (spec §5) can safely share one Vector across
// goroutines once averaged.
type Vector struct {
	mu sync.RWMutex

	rows, cols int
	adaGrad    bool

	w           []float64
	acc         []float64
	lastUpdate  []int64
	gradSquared []float64
	nUpdates    int64
}

// New creates a zero-initialized Vector of the given shape.
func New(rows, cols int, adaGrad bool) *Vector {
	if rows <= 0 || cols <= 0 {
		panic("weights: rows and cols must be positive")
	}
	n := rows * cols
	return &Vector{
		rows:        rows,
		cols:        cols,
		adaGrad:     adaGrad,
		w:           make([]float64, n),
		acc:         make([]float64, n),
		lastUpdate:  make([]int64, n),
		gradSquared: make([]float64, n),
	}
}

// Dims returns the shape of the table.
func (v *Vector) Dims() (rows, cols int) { return v.rows, v.cols }

// AdaGrad reports whether the adaptive learning rate is enabled.
func (v *Vector) AdaGrad() bool { return v.adaGrad }

// NUpdates returns the current tick counter.
func (v *Vector) NUpdates() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.nUpdates
}

func (v *Vector) offset(i, j int) int {
	if i < 0 || i >= v.rows || j < 0 || j >= v.cols {
		klog.Fatalf("weights: index (%d,%d) out of bounds for shape (%d,%d)", i, j, v.rows, v.cols)
	}
	return i*v.cols + j
}

// Get returns the current weight at (i,j).
func (v *Vector) Get(i, j int) float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.w[v.offset(i, j)]
}

// Row returns a copy of row i, used by the decoder to read a full column
// of emission scores for one feature in one contiguous slice.
func (v *Vector) Row(i int) []float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	start := v.offset(i, 0)
	row := make([]float64, v.cols)
	copy(row, v.w[start:start+v.cols])
	return row
}

// Update adds delta to cell (i,j), adjusted by the AdaGrad factor if
// enabled, and flushes the lazy averaging accumulator for that cell first.
// It must be called with the vector's n_updates already advanced to the
// tick this update belongs to (the trainer advances n_updates once per
// sequence, via Tick).
func (v *Vector) Update(i, j int, delta float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lockedUpdate(v.offset(i, j), delta)
}

func (v *Vector) lockedUpdate(off int, delta float64) {
	ticksSinceUpdate := v.nUpdates - v.lastUpdate[off]
	if ticksSinceUpdate > 0 {
		v.acc[off] += v.w[off] * float64(ticksSinceUpdate)
		v.lastUpdate[off] = v.nUpdates
	}

	effectiveDelta := delta
	if v.adaGrad {
		v.gradSquared[off] += delta * delta
		effectiveDelta = delta / (AdaGradEpsilon + math.Sqrt(v.gradSquared[off]))
	}
	if math.IsNaN(effectiveDelta) || math.IsInf(effectiveDelta, 0) {
		klog.Fatalf("weights: non-finite update at offset %d: delta=%v, effective=%v", off, delta, effectiveDelta)
	}
	v.w[off] += effectiveDelta
}

// Tick advances the global update counter by one. The trainer calls this
// once per sequence (spec §4.E "After each sequence...").
func (v *Vector) Tick() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nUpdates++
}

// Average replaces w with the time-average of the weight trajectory over
// ticks [0, n_updates), per the lazy-averaging identity in spec §4.B.
// Calling it twice is idempotent: the second call has zero ticks to flush
// for every cell since last_update == n_updates after the first call.
func (v *Vector) Average() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.nUpdates == 0 {
		return
	}
	for off := range v.w {
		ticksSinceUpdate := v.nUpdates - v.lastUpdate[off]
		acc := v.acc[off]
		if ticksSinceUpdate > 0 {
			acc += v.w[off] * float64(ticksSinceUpdate)
		}
		avg := acc / float64(v.nUpdates)
		v.w[off] = avg
		v.acc[off] = acc
		v.lastUpdate[off] = v.nUpdates
	}
}
