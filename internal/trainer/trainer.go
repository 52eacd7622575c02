// Package trainer implements Component G: the epoch loop that orchestrates
// decoding, updating, and tick bookkeeping over a training corpus, followed
// by final weight averaging, the way cmd/trainer orchestrates a training
// run over played matches.
package trainer

import (
	"context"

	"github.com/janpfeifer/seqlabel/internal/decoder"
	"github.com/janpfeifer/seqlabel/internal/dropout"
	"github.com/janpfeifer/seqlabel/internal/seqmodel"
	"github.com/janpfeifer/seqlabel/internal/update"
	"github.com/janpfeifer/seqlabel/internal/weights"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config bundles the hyperparameters of spec §4.G's trainer loop. Zero value
// is not directly usable; use DefaultConfig as a starting point.
type Config struct {
	// Passes is the number of epochs over the training set.
	Passes int

	// LearningRate is eta in the pseudo-protocol.
	LearningRate float64

	// Average enables final time-averaging of both weight vectors.
	Average bool

	// Corrupter, if non-nil, is applied to every training sequence before
	// each decode (spec §4.F). Inference/evaluation never corrupts.
	Corrupter dropout.Corrupter

	Update update.Config
}

// DefaultConfig returns the spec's defaults: eta=0.1, passes=5,
// ada_grad=true (set by the caller when constructing the weight vectors),
// average=true.
func DefaultConfig(nLabels int) Config {
	return Config{
		Passes:       5,
		LearningRate: 0.1,
		Average:      true,
		Update:       update.Config{LearningRate: 0.1, NLabels: nLabels},
	}
}

// Stats accumulates the tolerated-condition counts and accuracy spec §7
// mandates be summarized in the final log line.
type Stats struct {
	Epoch int

	Sequences int
	Tokens    int
	Correct   int

	// SkippedTokens counts tokens skipped from the accuracy denominator
	// because their gold label was unknown (spec §7 "Tolerated" category).
	SkippedTokens int
}

// Accuracy returns Correct/Tokens, or 0 if no tokens were scored.
func (s Stats) Accuracy() float64 {
	if s.Tokens == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Tokens)
}

// Trainer owns the weight tables and decoder for one training run. It is
// not safe for concurrent use during Train (spec §5: training is inherently
// sequential); Evaluate may run concurrently once Train has returned and
// Average has been applied.
type Trainer struct {
	NLabels    int
	Emission   *weights.Vector
	Transition *weights.Vector
	Decoder    *decoder.Decoder
	Config     Config
}

// New builds a Trainer around freshly-created or loaded weight tables.
func New(nLabels int, emission, transition *weights.Vector, cfg Config) *Trainer {
	cfg.Update.NLabels = nLabels
	return &Trainer{
		NLabels:    nLabels,
		Emission:   emission,
		Transition: transition,
		Decoder:    decoder.New(nLabels, emission, transition),
		Config:     cfg,
	}
}

// ProgressFunc is invoked after every epoch completes, before the next one
// starts; a nil func is legal and disables progress reporting.
type ProgressFunc func(stats Stats)

// Train runs the spec §4.G pseudo-protocol: passes epochs over train, each
// epoch corrupting (if configured), decoding, and updating every sequence in
// order, then ticking both weight vectors once per sequence. It checks ctx
// for cancellation between sequences (spec §5's cooperative cancellation);
// on cancellation it returns ctx.Err() without discarding weights already
// applied. If Config.Average is set, it averages both vectors once training
// completes (or is cancelled).
func Train(ctx context.Context, tr *Trainer, train []*seqmodel.Sequence, progress ProgressFunc) error {
	if len(train) == 0 {
		return errors.New("trainer: empty training set")
	}
	for _, seq := range train {
		if seq.Len() == 0 {
			return errors.New("trainer: empty sequence in training set")
		}
	}

	for epoch := 1; epoch <= tr.Config.Passes; epoch++ {
		stats := Stats{Epoch: epoch}
		for _, seq := range train {
			select {
			case <-ctx.Done():
				klog.Infof("trainer: cancelled mid-epoch %d after %d sequences", epoch, stats.Sequences)
				if tr.Config.Average {
					tr.Emission.Average()
					tr.Transition.Average()
				}
				return ctx.Err()
			default:
			}

			var restore func()
			if tr.Config.Corrupter != nil {
				restore = tr.Config.Corrupter.Corrupt(seq, tr.Emission, tr.Transition)
			}
			tr.Decoder.Decode(seq)
			accumulate(&stats, seq)
			if restore != nil {
				restore()
			}
			update.Apply(seq, tr.Emission, tr.Transition, tr.Config.Update)
			tr.Emission.Tick()
			tr.Transition.Tick()
			stats.Sequences++
		}
		klog.V(1).Infof("trainer: epoch %d done, %d sequences, accuracy=%.4f (skipped %d tokens)",
			epoch, stats.Sequences, stats.Accuracy(), stats.SkippedTokens)
		if progress != nil {
			progress(stats)
		}
	}

	if tr.Config.Average {
		tr.Emission.Average()
		tr.Transition.Average()
	}
	return nil
}

// accumulate folds one just-decoded sequence's gold-vs-pred agreement into
// stats, skipping tokens whose gold label is unknown (spec §7).
func accumulate(stats *Stats, seq *seqmodel.Sequence) {
	for _, tok := range seq.Tokens {
		if tok.GoldLabel == seqmodel.UnknownLabel {
			stats.SkippedTokens++
			continue
		}
		stats.Tokens++
		if tok.GoldLabel == tok.PredLabel {
			stats.Correct++
		}
	}
}
