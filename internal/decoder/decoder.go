// Package decoder implements Component D: the Viterbi best-path search
// over label sequences, O(T*K^2) in the sequence length T and label count K.
package decoder

import (
	"math"

	"github.com/janpfeifer/seqlabel/internal/seqmodel"
	"github.com/janpfeifer/seqlabel/internal/weights"
)

// Start and Stop are the reserved transition-table rows/columns beyond the
// n_labels real labels (spec §3). Start participates only as a predecessor,
// Stop only as a successor; neither is ever emitted as a prediction.
func Start(nLabels int) int { return nLabels }
func Stop(nLabels int) int  { return nLabels + 1 }

// Decoder holds the shared, read-only (once trained) weight tables used to
// score a sequence.
type Decoder struct {
	NLabels    int
	Emission   *weights.Vector // shape (n_features, n_labels)
	Transition *weights.Vector // shape (n_labels+2, n_labels+2)
}

// New creates a Decoder over the given weight tables.
func New(nLabels int, emission, transition *weights.Vector) *Decoder {
	return &Decoder{NLabels: nLabels, Emission: emission, Transition: transition}
}

// EmissionScores computes e_t in R^L for one token: the dot product of its
// sparse feature vector against each label's column of the emission table.
func (d *Decoder) EmissionScores(tok *seqmodel.TokenExample) []float64 {
	e := make([]float64, d.NLabels)
	for _, f := range tok.Features {
		row := d.Emission.Row(f.Index)
		for k := 0; k < d.NLabels; k++ {
			e[k] += row[k] * f.Value
		}
	}
	return e
}

// Decode runs Viterbi over seq, writing PredLabel and DecodedScore into
// every token, and returns the total path score (spec §8's testable
// Viterbi-optimality property refers to this total).
func (d *Decoder) Decode(seq *seqmodel.Sequence) float64 {
	T := len(seq.Tokens)
	if T == 0 {
		panic("decoder: cannot decode an empty sequence")
	}
	L := d.NLabels
	start := Start(L)
	stop := Stop(L)

	// score[t][k], back[t][k].
	score := make([][]float64, T)
	back := make([][]int, T)

	e0 := d.EmissionScores(&seq.Tokens[0])
	score[0] = make([]float64, L)
	back[0] = make([]int, L) // unused at t=0, predecessor is always Start.
	for k := 0; k < L; k++ {
		score[0][k] = d.Transition.Get(start, k) + e0[k]
	}

	for t := 1; t < T; t++ {
		et := d.EmissionScores(&seq.Tokens[t])
		score[t] = make([]float64, L)
		back[t] = make([]int, L)
		for k := 0; k < L; k++ {
			bestJ := 0
			bestVal := math.Inf(-1)
			for j := 0; j < L; j++ {
				val := score[t-1][j] + d.Transition.Get(j, k)
				// Strict '>' keeps the lowest label index on ties (spec §4.D).
				if val > bestVal {
					bestVal = val
					bestJ = j
				}
			}
			score[t][k] = et[k] + bestVal
			back[t][k] = bestJ
		}
	}

	bestFinal := 0
	bestFinalVal := math.Inf(-1)
	for k := 0; k < L; k++ {
		val := score[T-1][k] + d.Transition.Get(k, stop)
		if val > bestFinalVal {
			bestFinalVal = val
			bestFinal = k
		}
	}

	labels := make([]int, T)
	labels[T-1] = bestFinal
	for t := T - 1; t > 0; t-- {
		labels[t-1] = back[t][labels[t]]
	}

	for t := 0; t < T; t++ {
		seq.Tokens[t].PredLabel = labels[t]
		seq.Tokens[t].DecodedScore = score[t][labels[t]]
	}
	return bestFinalVal
}
