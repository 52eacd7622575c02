package featuremap

import (
	"encoding/gob"
	"os"

	"github.com/janpfeifer/seqlabel/internal/generics"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Interning is a growable feature map: unseen names get the next free dense
// index [0, N) until Freeze is called, after which unseen names return
// Absent. Small corpora use this mode to keep a human-inspectable,
// collision-free vocabulary.
type Interning struct {
	indices map[string]int
	names   []string
	frozen  bool
}

// NewInterning creates an empty, open Interning feature map.
func NewInterning() *Interning {
	return &Interning{indices: make(map[string]int)}
}

// IndexOf implements Map.
func (in *Interning) IndexOf(name string) int {
	if idx, ok := in.indices[name]; ok {
		return idx
	}
	if in.frozen {
		return Absent
	}
	idx := len(in.names)
	in.indices[name] = idx
	in.names = append(in.names, name)
	return idx
}

// Freeze implements Map.
func (in *Interning) Freeze() { in.frozen = true }

// Frozen implements Map.
func (in *Interning) Frozen() bool { return in.frozen }

// NumFeatures implements Map, the current cardinality of the interned set.
func (in *Interning) NumFeatures() int { return len(in.names) }

// Names returns the interned feature names in index order (Names()[i] is
// the name that maps to index i).
func (in *Interning) Names() []string { return in.names }

// interningGob is the on-disk representation: the names and the frozen
// flag are persisted; indices are rebuilt from the order of the names on
// load.
type interningGob struct {
	Names  []string
	Frozen bool
}

// Save persists the interning table to path.
func (in *Interning) Save(path string) error {
	// The names are persisted in insertion order (what indices depend on);
	// a set built from them catches any duplicate entry in the names slice
	// before writing.
	if dupeCount := len(generics.SetWith(in.names...)); dupeCount != len(in.names) {
		klog.Errorf("featuremap: Interning has %d names but only %d distinct, refusing to save a corrupted map", len(in.names), dupeCount)
		return errors.Errorf("featuremap: corrupted interning table for %q", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "featuremap: failed to create %q", path)
	}
	defer func() { _ = f.Close() }()
	enc := gob.NewEncoder(f)
	if err := enc.Encode(interningGob{Names: in.names, Frozen: in.frozen}); err != nil {
		return errors.Wrapf(err, "featuremap: failed to encode interning table to %q", path)
	}
	return nil
}

// LoadInterning reads a previously saved interning table.
func LoadInterning(path string) (*Interning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "featuremap: failed to open %q", path)
	}
	defer func() { _ = f.Close() }()
	var data interningGob
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return nil, errors.Wrapf(err, "featuremap: failed to decode interning table from %q", path)
	}
	in := NewInterning()
	in.names = data.Names
	in.indices = make(map[string]int, len(data.Names))
	for idx, name := range data.Names {
		in.indices[name] = idx
	}
	in.frozen = data.Frozen
	return in, nil
}
