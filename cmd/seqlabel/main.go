// Command seqlabel trains and/or evaluates a structured-perceptron sequence
// labeler over a VW-like token stream file.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/janpfeifer/must"
	"github.com/janpfeifer/seqlabel/internal/profilers"
	"github.com/janpfeifer/seqlabel/internal/ui/spinning"
	"k8s.io/klog/v2"
)

var (
	flagTrain = flag.String("train", "", "Training data (vw format).")
	flagTest  = flag.String("test", "", "Test data (vw format).")

	flagHashBits = flag.Int("hash_bits", 0, "Size of the feature vector in bits (2**b). "+
		"If 0, features are interned into a growable, exact vocabulary instead.")
	flagPasses = flag.Int("passes", 5, "Number of passes over the training set.")

	flagIgnore    = flag.String("ignore", "", "Comma-separated namespace characters to ignore entirely, e.g. \"2,3\".")
	flagQuadratic = flag.String("quadratic", "", "Comma-separated two-character namespace pairs to "+
		"cross-expand, e.g. \"12,13\".")

	flagNoAverage = flag.Bool("no_average", false, "Do not average weights over all updates.")
	flagNoAdaGrad = flag.Bool("no_ada_grad", false, "Do not use adaptive gradient scaling.")

	flagInitialModel = flag.String("initial_model", "", "Load this model directory before training/testing.")
	flagFinalModel   = flag.String("final_model", "", "Save the trained model to this directory.")

	flagCostSensitive = flag.Bool("cost_sensitive", false, "Use cost-sensitive sampled weight updates.")
	flagDropOut       = flag.Bool("drop_out", false, "Regularize by randomly zeroing features (p=0.1).")

	flagLabels      = flag.String("labels", "", "Read the fixed set of labels from this file.")
	flagPredictions = flag.String("predictions", "", "File for outputting test predictions.")
	flagAppendTest  = flag.String("append_test", "", "Append test accuracy as a JSON object to this file.")
	flagName        = flag.String("name", "", "Identifies this invocation in --append_test output.")

	flagConfusionScaling = flag.String("confusion_scaling", "",
		"CSV file of a square label x label confusion-scaling matrix.")

	flagEvalParallelism = flag.Int("eval_parallelism", 4, "Number of goroutines used for test-time decoding.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *flagTrain == "" && *flagTest == "" {
		klog.Exitf("must specify at least one of --train or --test")
	}

	ctx, cancel := context.WithCancel(context.Background())
	spinning.SafeInterrupt(cancel, 5*time.Second)
	defer cancel()

	profilers.Setup(ctx)
	defer profilers.OnQuit()

	must.M(run(ctx))
}
