package modelio

import (
	"path/filepath"
	"testing"

	"github.com/janpfeifer/seqlabel/internal/featuremap"
	"github.com/janpfeifer/seqlabel/internal/weights"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTripHashingMode(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "model")

	transition := weights.New(4, 4, true)
	transition.Update(0, 1, 2.5)
	emission := weights.New(8, 2, true)
	emission.Update(3, 0, -1.25)

	m := &Model{
		Transition: transition,
		Emission:   emission,
		Labels:     []string{"NOUN", "VERB"},
		Settings:   map[string]any{"passes": float64(5), "eta": 0.1},
	}
	require.NoError(t, Save(dir, m))

	loaded, err := Load(dir, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"NOUN", "VERB"}, loaded.Labels)
	assert.InDelta(t, 2.5, loaded.Transition.Get(0, 1), 1e-9)
	assert.InDelta(t, -1.25, loaded.Emission.Get(3, 0), 1e-9)
	assert.Nil(t, loaded.Interning)
	assert.Equal(t, float64(5), loaded.Settings["passes"])
}

func TestSaveLoadRoundTripInterningMode(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "model")

	in := featuremap.NewInterning()
	in.IndexOf("1^word")
	in.IndexOf("1^suffix")
	in.Freeze()

	m := &Model{
		Transition: weights.New(4, 4, false),
		Emission:   weights.New(in.NumFeatures(), 2, false),
		Labels:     []string{"A", "B"},
		Interning:  in,
		Settings:   map[string]any{},
	}
	require.NoError(t, Save(dir, m))

	loaded, err := Load(dir, false)
	require.NoError(t, err)
	require.NotNil(t, loaded.Interning)
	assert.Equal(t, []string{"1^word", "1^suffix"}, loaded.Interning.Names())
	assert.True(t, loaded.Interning.Frozen())
}

func TestLoadHashingModeWithoutFeatureMapFileSucceeds(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "model")
	m := &Model{
		Transition: weights.New(4, 4, false),
		Emission:   weights.New(4, 2, false),
		Labels:     []string{"A", "B"},
		Settings:   map[string]any{},
	}
	require.NoError(t, Save(dir, m))
	loaded, err := Load(dir, true)
	require.NoError(t, err)
	assert.Nil(t, loaded.Interning)
}

func TestLoadInterningModeWithoutFeatureMapFileFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "model")
	m := &Model{
		Transition: weights.New(4, 4, false),
		Emission:   weights.New(4, 2, false),
		Labels:     []string{"A", "B"},
		Settings:   map[string]any{},
	}
	require.NoError(t, Save(dir, m))
	_, err := Load(dir, false)
	assert.Error(t, err)
}

func TestSaveBacksUpExistingModel(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "model")
	m1 := &Model{
		Transition: weights.New(4, 4, false),
		Emission:   weights.New(4, 2, false),
		Labels:     []string{"A", "B"},
		Settings:   map[string]any{},
	}
	require.NoError(t, Save(dir, m1))

	m2 := &Model{
		Transition: weights.New(4, 4, false),
		Emission:   weights.New(4, 2, false),
		Labels:     []string{"C", "D"},
		Settings:   map[string]any{},
	}
	require.NoError(t, Save(dir, m2))

	assert.FileExists(t, filepath.Join(dir, labelsFile))
	assert.FileExists(t, filepath.Join(dir, labelsFile+"~"))

	loaded, err := Load(dir, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "D"}, loaded.Labels)
}

func TestLoadMissingDirectory(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist"), true)
	assert.Error(t, err)
}
