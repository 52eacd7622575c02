package decoder

import (
	"math"
	"testing"

	"github.com/janpfeifer/seqlabel/internal/seqmodel"
	"github.com/janpfeifer/seqlabel/internal/weights"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(tokenFeatures ...[]seqmodel.Feature) *seqmodel.Sequence {
	s := &seqmodel.Sequence{}
	for _, feats := range tokenFeatures {
		tok := seqmodel.NewTokenExample("")
		tok.Features = feats
		s.Tokens = append(s.Tokens, tok)
	}
	return s
}

func TestTieBreakLowestLabelIndex(t *testing.T) {
	const nLabels = 3
	emission := weights.New(1, nLabels, false)
	transition := weights.New(nLabels+2, nLabels+2, false)
	d := New(nLabels, emission, transition)

	s := seq(nil, nil) // 2 tokens, no features, all weights zero.
	d.Decode(s)
	assert.Equal(t, []int{0, 0}, s.PredLabels())
}

func TestSingleTokenUsesOnlyStartAndStop(t *testing.T) {
	const nLabels = 2
	emission := weights.New(1, nLabels, false)
	transition := weights.New(nLabels+2, nLabels+2, false)
	// Favor label 1 via Start->1 and 1->Stop transitions.
	transition.Update(Start(nLabels), 1, 5.0)
	transition.Update(1, Stop(nLabels), 5.0)
	d := New(nLabels, emission, transition)

	s := seq(nil)
	totalScore := d.Decode(s)
	assert.Equal(t, []int{1}, s.PredLabels())
	assert.InDelta(t, 10.0, totalScore, 1e-9)
}

func TestDuplicateFeatureIndicesAreAdditive(t *testing.T) {
	const nLabels = 2
	emission := weights.New(1, nLabels, false)
	transition := weights.New(nLabels+2, nLabels+2, false)
	emission.Update(0, 0, 1.0) // feature 0 favors label 0 by +1 per occurrence.
	d := New(nLabels, emission, transition)

	tok := seqmodel.NewTokenExample("")
	tok.Features = []seqmodel.Feature{{Index: 0, Value: 1}, {Index: 0, Value: 1}}
	e := d.EmissionScores(&tok)
	assert.InDelta(t, 2.0, e[0], 1e-9)
	assert.InDelta(t, 0.0, e[1], 1e-9)
}

func TestFeatureIndexBoundaries(t *testing.T) {
	const nLabels = 2
	const nFeatures = 5
	emission := weights.New(nFeatures, nLabels, false)
	transition := weights.New(nLabels+2, nLabels+2, false)
	emission.Update(0, 0, 2.0)
	emission.Update(nFeatures-1, 1, 3.0)
	d := New(nLabels, emission, transition)

	tok := seqmodel.NewTokenExample("")
	tok.Features = []seqmodel.Feature{{Index: 0, Value: 1}, {Index: nFeatures - 1, Value: 1}}
	e := d.EmissionScores(&tok)
	assert.InDelta(t, 2.0, e[0], 1e-9)
	assert.InDelta(t, 3.0, e[1], 1e-9)
}

// bruteForceBestScore enumerates every label sequence of length T over L
// labels and returns the maximum total score, independently of the Viterbi
// implementation, per spec §8's optimality property.
func bruteForceBestScore(d *Decoder, s *seqmodel.Sequence) float64 {
	T := len(s.Tokens)
	L := d.NLabels
	emissions := make([][]float64, T)
	for t := range s.Tokens {
		emissions[t] = d.EmissionScores(&s.Tokens[t])
	}
	start := Start(L)
	stopLabel := Stop(L)

	best := math.Inf(-1)
	labels := make([]int, T)
	var rec func(t int)
	rec = func(t int) {
		if t == T {
			total := 0.0
			prev := start
			for i := 0; i < T; i++ {
				total += emissions[i][labels[i]]
				total += d.Transition.Get(prev, labels[i])
				prev = labels[i]
			}
			total += d.Transition.Get(prev, stopLabel)
			if total > best {
				best = total
			}
			return
		}
		for k := 0; k < L; k++ {
			labels[t] = k
			rec(t + 1)
		}
	}
	rec(0)
	return best
}

func TestViterbiMatchesBruteForce(t *testing.T) {
	const nLabels = 3
	const nFeatures = 4
	emission := weights.New(nFeatures, nLabels, false)
	transition := weights.New(nLabels+2, nLabels+2, false)

	// Sprinkle some arbitrary non-trivial weights.
	updates := []struct {
		i, j  int
		delta float64
	}{
		{0, 0, 1.5}, {0, 1, -0.5}, {1, 2, 2.0}, {2, 0, -1.0}, {3, 1, 0.75},
	}
	for _, u := range updates {
		emission.Update(u.i, u.j, u.delta)
	}
	tUpdates := []struct {
		i, j  int
		delta float64
	}{
		{Start(nLabels), 0, 0.3}, {Start(nLabels), 1, 1.1}, {Start(nLabels), 2, -0.4},
		{0, 1, 0.6}, {1, 2, -0.9}, {2, 2, 0.2},
		{0, Stop(nLabels), 0.1}, {1, Stop(nLabels), -0.2}, {2, Stop(nLabels), 0.5},
	}
	for _, u := range tUpdates {
		transition.Update(u.i, u.j, u.delta)
	}

	d := New(nLabels, emission, transition)
	s := seq(
		[]seqmodel.Feature{{Index: 0, Value: 1}, {Index: 1, Value: 1}},
		[]seqmodel.Feature{{Index: 2, Value: 1}},
		[]seqmodel.Feature{{Index: 3, Value: 1}},
	)
	got := d.Decode(s)
	want := bruteForceBestScore(d, s)
	assert.InDelta(t, want, got, 1e-9)
}

func TestDecodeTwiceIsIdempotent(t *testing.T) {
	const nLabels = 2
	emission := weights.New(2, nLabels, false)
	transition := weights.New(nLabels+2, nLabels+2, false)
	emission.Update(0, 1, 1.0)
	d := New(nLabels, emission, transition)

	s := seq([]seqmodel.Feature{{Index: 0, Value: 1}}, []seqmodel.Feature{{Index: 1, Value: 1}})
	d.Decode(s)
	first := s.PredLabels()
	d.Decode(s)
	require.Equal(t, first, s.PredLabels())
}
