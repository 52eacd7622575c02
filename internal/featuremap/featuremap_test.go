package featuremap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashingIsStableAndBounded(t *testing.T) {
	h := NewHashing(2) // 4 slots.
	assert.Equal(t, 4, h.NumFeatures())
	for _, name := range []string{"a", "ns^feat", "another-feature-name"} {
		idx := h.IndexOf(name)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 4)
		assert.Equal(t, idx, h.IndexOf(name), "hashing must be deterministic")
	}
}

func TestHashingFreezeIsNoOp(t *testing.T) {
	h := NewHashing(4)
	before := h.IndexOf("novel")
	h.Freeze()
	assert.True(t, h.Frozen())
	assert.Equal(t, before, h.IndexOf("novel"))
}

func TestHashingCollisionsTolerated(t *testing.T) {
	h := NewHashing(2) // only 4 slots, 10 distinct names will collide.
	names := []string{"f0", "f1", "f2", "f3", "f4", "f5", "f6", "f7", "f8", "f9"}
	for _, name := range names {
		idx := h.IndexOf(name)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, h.NumFeatures())
	}
}

func TestInterningGrowsThenFreezes(t *testing.T) {
	in := NewInterning()
	idxA := in.IndexOf("A")
	idxB := in.IndexOf("B")
	assert.Equal(t, 0, idxA)
	assert.Equal(t, 1, idxB)
	assert.Equal(t, idxA, in.IndexOf("A"), "repeated lookup returns same index")
	assert.Equal(t, 2, in.NumFeatures())

	in.Freeze()
	assert.True(t, in.Frozen())
	assert.Equal(t, Absent, in.IndexOf("C"), "unseen name after freeze returns Absent")
	// Already-known names remain resolvable after freezing.
	assert.Equal(t, idxA, in.IndexOf("A"))
	assert.Equal(t, 2, in.NumFeatures())
}

func TestInterningSaveLoadRoundTrip(t *testing.T) {
	in := NewInterning()
	in.IndexOf("A")
	in.IndexOf("B")
	in.IndexOf("C")
	in.Freeze()

	path := filepath.Join(t.TempDir(), "feature_map.gob")
	require.NoError(t, in.Save(path))

	loaded, err := LoadInterning(path)
	require.NoError(t, err)
	assert.True(t, loaded.Frozen())
	assert.Equal(t, in.Names(), loaded.Names())
	assert.Equal(t, in.IndexOf("A"), loaded.IndexOf("A"))
	assert.Equal(t, Absent, loaded.IndexOf("unseen"))
}

func TestInterningLoadMissingFile(t *testing.T) {
	_, err := LoadInterning(filepath.Join(t.TempDir(), "does-not-exist.gob"))
	require.Error(t, err)
}
