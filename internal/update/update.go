// Package update implements Component E: structured-perceptron updates
// that compare gold vs predicted labels on a decoded sequence and adjust
// emission and transition weights. Three variants share one frame: plain,
// cost-sensitive sampled, and confusion-scaled.
package update

import (
	"math/rand/v2"

	"github.com/janpfeifer/seqlabel/internal/decoder"
	"github.com/janpfeifer/seqlabel/internal/seqmodel"
	"github.com/janpfeifer/seqlabel/internal/weights"
)

// costSampleEpsilon keeps every label's sampling weight strictly positive
// even when its cost equals the maximum cost in the list (spec §4.E).
const costSampleEpsilon = 1e-6

// Config bundles the parameters shared by all three update variants.
type Config struct {
	LearningRate float64
	NLabels      int

	// CostSensitive enables sampling the gold label from LabelCosts instead
	// of using GoldLabel directly, when a token carries >= 2 cost entries.
	CostSensitive bool

	// ConfusionMatrix, if non-nil, scales each token's emission delta by
	// ConfusionMatrix[[2]int{goldLabel, predLabel}]; missing entries default
	// to 1.0. Per spec §9's open-question resolution, this never scales
	// transition updates.
	ConfusionMatrix map[[2]int]float64

	// Rand drives cost-sensitive sampling. If nil, each Apply call uses a
	// generator seeded from the package-level source (not reproducible across
	// runs; pass an explicit *rand.Rand for deterministic training).
	Rand *rand.Rand
}

func (c *Config) rng() *rand.Rand {
	if c.Rand != nil {
		return c.Rand
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// confusionScale returns the scaling factor for one (gold, pred) pair.
func (c *Config) confusionScale(gold, pred int) float64 {
	if c.ConfusionMatrix == nil {
		return 1.0
	}
	if scale, ok := c.ConfusionMatrix[[2]int{gold, pred}]; ok {
		return scale
	}
	return 1.0
}

// sampleCostSensitiveGold implements spec §4.E's weighted-sampling rule: it
// only fires when costs covers at least two labels, normalizing
// w_k = c_max - c_k + epsilon (lower cost => higher sampling weight).
func sampleCostSensitiveGold(costs []seqmodel.LabelCost, rng *rand.Rand) (int, bool) {
	if len(costs) < 2 {
		return 0, false
	}
	cMax := costs[0].Cost
	for _, lc := range costs[1:] {
		if lc.Cost > cMax {
			cMax = lc.Cost
		}
	}
	total := 0.0
	sampleWeights := make([]float64, len(costs))
	for i, lc := range costs {
		w := cMax - lc.Cost + costSampleEpsilon
		sampleWeights[i] = w
		total += w
	}
	r := rng.Float64() * total
	cumulative := 0.0
	for i, w := range sampleWeights {
		cumulative += w
		if r <= cumulative {
			return costs[i].Label, true
		}
	}
	// Floating point edge case: fall back to the last label.
	return costs[len(costs)-1].Label, true
}

// Apply runs one perceptron-update pass over a decoded sequence (gold and
// predicted labels must already be populated; the decoder has written
// PredLabel/DecodedScore). It mutates emission and transition in place; it
// does not advance their tick counters — the trainer does that once per
// sequence via Vector.Tick, per spec §4.E.
func Apply(seq *seqmodel.Sequence, emission, transition *weights.Vector, cfg Config) {
	L := cfg.NLabels
	start := decoder.Start(L)
	stop := decoder.Stop(L)
	rng := cfg.rng()

	prevGold, prevPred := start, start
	for t := range seq.Tokens {
		tok := &seq.Tokens[t]
		yGold := tok.GoldLabel
		if cfg.CostSensitive {
			if sampled, ok := sampleCostSensitiveGold(tok.LabelCosts, rng); ok {
				yGold = sampled
			}
		}
		yPred := tok.PredLabel

		if yGold != yPred {
			scale := cfg.confusionScale(yGold, yPred)
			delta := cfg.LearningRate * tok.Importance * scale
			for _, f := range tok.Features {
				emission.Update(f.Index, yGold, delta*f.Value)
				emission.Update(f.Index, yPred, -delta*f.Value)
			}
		}

		if prevGold != prevPred || yGold != yPred {
			transition.Update(prevGold, yGold, cfg.LearningRate)
			transition.Update(prevPred, yPred, -cfg.LearningRate)
		}

		prevGold, prevPred = yGold, yPred
	}

	transition.Update(prevGold, stop, cfg.LearningRate)
	transition.Update(prevPred, stop, -cfg.LearningRate)
}
