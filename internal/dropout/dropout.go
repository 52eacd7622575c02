// Package dropout implements Component F: feature corruption applied
// before a training-time decode, to regularize the learned weights against
// over-reliance on any single feature.
package dropout

import (
	"math/rand/v2"

	"github.com/janpfeifer/seqlabel/internal/seqmodel"
	"github.com/janpfeifer/seqlabel/internal/weights"
)

// Corrupter mirrors spec §4.F's corrupt(sequence, E, T) contract: it
// mutates seq in place and returns a restore closure that must be called
// before the update step runs, so the gold feature vector is intact when
// the perceptron compares gold vs predicted contributions.
type Corrupter interface {
	Corrupt(seq *seqmodel.Sequence, emission, transition *weights.Vector) (restore func())
}

var (
	_ Corrupter = (*ZeroMask)(nil)
	_ Corrupter = (*RecycledMask)(nil)
)

// ZeroMask is the default corruption: each feature value is independently
// zeroed with probability P (spec default 0.1), fresh every call.
type ZeroMask struct {
	P    float64
	Rand *rand.Rand
}

func (z *ZeroMask) rng() *rand.Rand {
	if z.Rand == nil {
		z.Rand = rand.New(rand.NewPCG(1, 1))
	}
	return z.Rand
}

// Corrupt implements Corrupter.
func (z *ZeroMask) Corrupt(seq *seqmodel.Sequence, _, _ *weights.Vector) func() {
	type saved struct {
		tok, feat int
		value     float64
	}
	var restores []saved
	rng := z.rng()
	for ti := range seq.Tokens {
		feats := seq.Tokens[ti].Features
		for fi := range feats {
			if rng.Float64() < z.P {
				restores = append(restores, saved{ti, fi, feats[fi].Value})
				feats[fi].Value = 0
			}
		}
	}
	return func() {
		for _, r := range restores {
			seq.Tokens[r.tok].Features[r.feat].Value = r.value
		}
	}
}

// RecycledMask is an adversarial-lite variant: instead of zeroing a
// dropped feature, it replaces its value with another value drawn from
// the same sequence's own feature-value distribution. This exercises the
// same corruption slot with a different masking strategy, per spec §4.F's
// note that zeroing and sampled-replacement strategies are interchangeable
// behind one interface.
type RecycledMask struct {
	P    float64
	Rand *rand.Rand
}

func (r *RecycledMask) rng() *rand.Rand {
	if r.Rand != nil {
		return r.Rand
	}
	return rand.New(rand.NewPCG(2, 2))
}

// Corrupt implements Corrupter.
func (r *RecycledMask) Corrupt(seq *seqmodel.Sequence, _, _ *weights.Vector) func() {
	var pool []float64
	for _, tok := range seq.Tokens {
		for _, f := range tok.Features {
			pool = append(pool, f.Value)
		}
	}
	type saved struct {
		tok, feat int
		value     float64
	}
	var restores []saved
	rng := r.rng()
	if len(pool) == 0 {
		return func() {}
	}
	for ti := range seq.Tokens {
		feats := seq.Tokens[ti].Features
		for fi := range feats {
			if rng.Float64() < r.P {
				restores = append(restores, saved{ti, fi, feats[fi].Value})
				feats[fi].Value = pool[rng.IntN(len(pool))]
			}
		}
	}
	return func() {
		for _, s := range restores {
			seq.Tokens[s.tok].Features[s.feat].Value = s.value
		}
	}
}
