package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/janpfeifer/seqlabel/internal/corpus"
	"github.com/janpfeifer/seqlabel/internal/dropout"
	"github.com/janpfeifer/seqlabel/internal/featuremap"
	"github.com/janpfeifer/seqlabel/internal/modelio"
	"github.com/janpfeifer/seqlabel/internal/parameters"
	"github.com/janpfeifer/seqlabel/internal/seqmodel"
	"github.com/janpfeifer/seqlabel/internal/trainer"
	"github.com/janpfeifer/seqlabel/internal/ui/spinning"
	"github.com/janpfeifer/seqlabel/internal/update"
	"github.com/janpfeifer/seqlabel/internal/weights"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// state bundles everything built up before training/testing starts: the
// feature map, label inventory, and (if --initial_model was given) the
// weight vectors to resume from.
type state struct {
	featMap featuremap.Map
	labels  *corpus.Labels
	initial *modelio.Model // nil unless --initial_model was set
	hashing bool
}

func run(ctx context.Context) error {
	st, err := loadInitialState()
	if err != nil {
		return err
	}

	ignore := parseIgnoreSet(*flagIgnore)
	quadratic := parseQuadraticPairs(*flagQuadratic)
	parseOpts := func(requireLabels bool) corpus.Options {
		return corpus.Options{
			FeatureMap:    st.featMap,
			Labels:        st.labels,
			Ignore:        ignore,
			Quadratic:     quadratic,
			RequireLabels: requireLabels,
		}
	}

	var trainSeqs []*seqmodel.Sequence
	if *flagTrain != "" {
		trainSeqs, err = corpus.Parse(*flagTrain, parseOpts(true))
		if err != nil {
			return errors.WithMessage(err, "reading --train")
		}
		klog.Infof("training data: %d sequences, %d labels", len(trainSeqs), st.labels.Len())
	}

	// Once the label/feature inventory has been grown by the training set,
	// the test set must not silently introduce new ones.
	st.featMap.Freeze()
	st.labels = corpus.LabelsFromSlice(st.labels.Names())

	var testSeqs []*seqmodel.Sequence
	if *flagTest != "" {
		testSeqs, err = corpus.Parse(*flagTest, parseOpts(false))
		if err != nil {
			return errors.WithMessage(err, "reading --test")
		}
		klog.Infof("test data: %d sequences", len(testSeqs))
	}

	nLabels := st.labels.Len()
	if nLabels == 0 {
		return errors.New("no labels known: specify --train, --labels, or --initial_model")
	}

	emission, transition := buildWeightVectors(st, nLabels)

	var confusion map[[2]int]float64
	if *flagConfusionScaling != "" {
		confusion, err = corpus.LoadConfusionMatrix(*flagConfusionScaling, st.labels)
		if err != nil {
			return errors.WithMessage(err, "loading --confusion_scaling")
		}
	}

	cfg := trainer.DefaultConfig(nLabels)
	cfg.Passes = *flagPasses
	cfg.Average = !*flagNoAverage
	cfg.Update = update.Config{
		LearningRate:    cfg.LearningRate,
		NLabels:         nLabels,
		CostSensitive:   *flagCostSensitive,
		ConfusionMatrix: confusion,
	}
	if *flagDropOut {
		cfg.Corrupter = &dropout.ZeroMask{P: 0.1}
	}

	tr := trainer.New(nLabels, emission, transition, cfg)

	if len(trainSeqs) > 0 {
		if err := runTrain(ctx, tr, trainSeqs); err != nil {
			return err
		}
	}
	if len(testSeqs) > 0 {
		if err := runTest(ctx, tr, testSeqs, st); err != nil {
			return err
		}
	}

	if *flagFinalModel != "" {
		model := &modelio.Model{
			Transition: tr.Transition,
			Emission:   tr.Emission,
			Labels:     st.labels.Names(),
			Settings:   currentSettings(nLabels),
		}
		if in, ok := st.featMap.(*featuremap.Interning); ok {
			model.Interning = in
		}
		if err := modelio.Save(*flagFinalModel, model); err != nil {
			return errors.WithMessage(err, "saving --final_model")
		}
	}
	return nil
}

func runTrain(ctx context.Context, tr *trainer.Trainer, seqs []*seqmodel.Sequence) error {
	spinner := spinning.New(ctx)
	defer spinner.Done()

	progress := func(s trainer.Stats) {
		klog.V(1).Infof("epoch %d: accuracy=%.4f over %d sequences (%d tokens skipped)",
			s.Epoch, s.Accuracy(), s.Sequences, s.SkippedTokens)
	}
	if err := trainer.Train(ctx, tr, seqs, progress); err != nil {
		return errors.WithMessage(err, "training")
	}
	return nil
}

func runTest(ctx context.Context, tr *trainer.Trainer, seqs []*seqmodel.Sequence, st *state) error {
	stats, err := trainer.Evaluate(ctx, tr, seqs, *flagEvalParallelism)
	if err != nil {
		return errors.WithMessage(err, "evaluating --test")
	}
	klog.Infof("test accuracy: %.4f (%d/%d tokens correct, %d skipped)",
		stats.Accuracy(), stats.Correct, stats.Tokens, stats.SkippedTokens)

	if *flagPredictions != "" {
		if err := corpus.WritePredictions(*flagPredictions, seqs, st.labels); err != nil {
			return errors.WithMessage(err, "writing --predictions")
		}
	}
	if *flagAppendTest != "" {
		if err := appendTestResult(stats.Accuracy()); err != nil {
			return errors.WithMessage(err, "writing --append_test")
		}
	}
	return nil
}

func appendTestResult(accuracy float64) error {
	f, err := os.OpenFile(*flagAppendTest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "opening %q", *flagAppendTest)
	}
	defer func() { _ = f.Close() }()
	result := map[string]any{"accuracy": accuracy, "name": *flagName}
	line, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "encoding append_test result")
	}
	_, err = f.Write(append(line, '\n'))
	return errors.Wrapf(err, "writing %q", *flagAppendTest)
}

func currentSettings(nLabels int) map[string]any {
	return map[string]any{
		"passes":         *flagPasses,
		"hash_bits":      *flagHashBits,
		"average":        !*flagNoAverage,
		"ada_grad":       !*flagNoAdaGrad,
		"cost_sensitive": *flagCostSensitive,
		"drop_out":       *flagDropOut,
		"n_labels":       nLabels,
	}
}

func loadInitialState() (*state, error) {
	st := &state{hashing: *flagHashBits > 0}

	if *flagInitialModel != "" {
		model, err := modelio.Load(*flagInitialModel, st.hashing)
		if err != nil {
			return nil, errors.WithMessage(err, "loading --initial_model")
		}
		st.initial = model
		st.labels = corpus.LabelsFromSlice(model.Labels)
		if st.hashing {
			st.featMap = featuremap.NewHashing(uint(*flagHashBits))
			if rows, _ := model.Emission.Dims(); st.featMap.NumFeatures() != rows {
				return nil, errors.Errorf("--hash_bits=%d (%d slots) does not match --initial_model's emission "+
					"table (%d rows)", *flagHashBits, st.featMap.NumFeatures(), rows)
			}
		} else {
			st.featMap = model.Interning
		}
		return st, nil
	}

	if *flagLabels != "" {
		names, err := readLines(*flagLabels)
		if err != nil {
			return nil, errors.WithMessage(err, "reading --labels")
		}
		st.labels = corpus.LabelsFromSlice(names)
	} else {
		st.labels = corpus.NewLabels()
	}

	if st.hashing {
		st.featMap = featuremap.NewHashing(uint(*flagHashBits))
	} else {
		st.featMap = featuremap.NewInterning()
	}
	return st, nil
}

func buildWeightVectors(st *state, nLabels int) (emission, transition *weights.Vector) {
	adaGrad := !*flagNoAdaGrad
	if st.initial != nil {
		return st.initial.Emission, st.initial.Transition
	}
	emission = weights.New(st.featMap.NumFeatures(), nLabels, adaGrad)
	transition = weights.New(nLabels+2, nLabels+2, adaGrad)
	return emission, transition
}

// parseIgnoreSet reads --ignore using the same compact "key,key2" config
// string idiom parameters.NewFromConfigString gives the teacher's "-ai"
// flag: each comma-separated token is a namespace character to ignore.
func parseIgnoreSet(spec string) map[byte]bool {
	if spec == "" {
		return nil
	}
	set := make(map[byte]bool)
	for key := range parameters.NewFromConfigString(spec) {
		if len(key) != 1 {
			klog.Warningf("--ignore: ignoring malformed namespace %q (want exactly one character)", key)
			continue
		}
		set[key[0]] = true
	}
	return set
}

// parseQuadraticPairs reads --quadratic via the same config-string idiom:
// each comma-separated token is a two-character namespace pair to cross.
func parseQuadraticPairs(spec string) [][2]byte {
	if spec == "" {
		return nil
	}
	var pairs [][2]byte
	for key := range parameters.NewFromConfigString(spec) {
		if len(key) != 2 {
			klog.Warningf("--quadratic: ignoring malformed namespace pair %q (want exactly two characters)", key)
			continue
		}
		pairs = append(pairs, [2]byte{key[0], key[1]})
	}
	return pairs
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", path)
	}
	defer func() { _ = f.Close() }()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %q", path)
	}
	return lines, nil
}
