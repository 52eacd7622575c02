package weights

import (
	"encoding/gob"
	"os"

	"github.com/pkg/errors"
)

// vectorGob is the on-disk representation of a Vector: every field spec
// §4.B requires to be persisted (w, acc, last_update, grad_squared,
// n_updates, dims, ada_grad).
type vectorGob struct {
	Rows, Cols  int
	AdaGrad     bool
	W           []float64
	Acc         []float64
	LastUpdate  []int64
	GradSquared []float64
	NUpdates    int64
}

// Save persists the full Vector state to path, so that Load reproduces
// bit-identical prediction behavior (spec §8 round-trip property).
func (v *Vector) Save(path string) error {
	v.mu.RLock()
	data := vectorGob{
		Rows:        v.rows,
		Cols:        v.cols,
		AdaGrad:     v.adaGrad,
		W:           v.w,
		Acc:         v.acc,
		LastUpdate:  v.lastUpdate,
		GradSquared: v.gradSquared,
		NUpdates:    v.nUpdates,
	}
	v.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "weights: failed to create %q", path)
	}
	defer func() { _ = f.Close() }()
	if err := gob.NewEncoder(f).Encode(data); err != nil {
		return errors.Wrapf(err, "weights: failed to encode weight vector to %q", path)
	}
	return nil
}

// Load reads a Vector previously written by Save.
func Load(path string) (*Vector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "weights: failed to open %q", path)
	}
	defer func() { _ = f.Close() }()

	var data vectorGob
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return nil, errors.Wrapf(err, "weights: failed to decode weight vector from %q", path)
	}
	if data.Rows <= 0 || data.Cols <= 0 {
		return nil, errors.Errorf("weights: invalid dims (%d,%d) loaded from %q", data.Rows, data.Cols, path)
	}
	if len(data.W) != data.Rows*data.Cols {
		return nil, errors.Errorf("weights: dimension mismatch loading %q: dims (%d,%d) but %d weight cells", path, data.Rows, data.Cols, len(data.W))
	}
	return &Vector{
		rows:        data.Rows,
		cols:        data.Cols,
		adaGrad:     data.AdaGrad,
		w:           data.W,
		acc:         data.Acc,
		lastUpdate:  data.LastUpdate,
		gradSquared: data.GradSquared,
		nUpdates:    data.NUpdates,
	}, nil
}
