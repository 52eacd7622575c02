// Package seqmodel implements Component C: the in-memory record of one
// labeled sequence, as produced by the (external) input parser and mutated
// in place by the decoder.
package seqmodel

// UnknownLabel marks a token whose gold label is not known (e.g. during
// plain evaluation of unlabeled data).
const UnknownLabel = -1

// Feature is one sparse (index, value) pair in a token's feature vector.
// Duplicate indices within a token are allowed and additive (spec §3).
type Feature struct {
	Index int
	Value float64
}

// LabelCost is one (label, cost) pair used by the cost-sensitive update
// variant. Labels not listed have an implicit cost of 1 (spec §3).
type LabelCost struct {
	Label int
	Cost  float64
}

// TokenExample is one per-token record.
type TokenExample struct {
	// ID is an opaque identifier carried through for reporting only.
	ID string

	// GoldLabel is in [0, n_labels) or UnknownLabel.
	GoldLabel int

	// Features is the ordered list of sparse (index, value) pairs.
	Features []Feature

	// LabelCosts is optional; non-empty only in cost-sensitive mode.
	LabelCosts []LabelCost

	// Importance is a non-negative multiplier on the per-token update
	// magnitude; defaults to 1.0.
	Importance float64

	// PredLabel is written by the decoder.
	PredLabel int

	// DecodedScore is the Viterbi score[PredLabel] at this position,
	// written by the decoder alongside PredLabel.
	DecodedScore float64
}

// NewTokenExample returns a TokenExample with the defaults spec §3
// prescribes (importance 1.0, no gold/pred label yet).
func NewTokenExample(id string) TokenExample {
	return TokenExample{
		ID:         id,
		GoldLabel:  UnknownLabel,
		PredLabel:  UnknownLabel,
		Importance: 1.0,
	}
}

// Sequence is an ordered, non-empty list of token examples.
type Sequence struct {
	Tokens []TokenExample
}

// Len returns the number of tokens (T in spec.md's notation).
func (s *Sequence) Len() int { return len(s.Tokens) }

// GoldLabels returns the gold label of every token, in order.
func (s *Sequence) GoldLabels() []int {
	labels := make([]int, len(s.Tokens))
	for i, tok := range s.Tokens {
		labels[i] = tok.GoldLabel
	}
	return labels
}

// PredLabels returns the predicted label of every token, in order.
func (s *Sequence) PredLabels() []int {
	labels := make([]int, len(s.Tokens))
	for i, tok := range s.Tokens {
		labels[i] = tok.PredLabel
	}
	return labels
}
