// Package corpus implements the VW-like line-oriented token stream format
// spec §6 treats as an external collaborator of the core: it turns a
// blank-line-separated text file into seqmodel.Sequence records, and writes
// predictions back out in the same per-token line shape.
package corpus

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/janpfeifer/seqlabel/internal/featuremap"
	"github.com/janpfeifer/seqlabel/internal/generics"
	"github.com/janpfeifer/seqlabel/internal/seqmodel"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Labels maps label strings to a dense index; index n_labels..n_labels+1 are
// reserved by the decoder package and never appear here.
type Labels struct {
	names []string
	index map[string]int
	fixed bool
}

// NewLabels builds an empty, growable label inventory.
func NewLabels() *Labels {
	return &Labels{index: make(map[string]int)}
}

// LabelsFromSlice builds a fixed label inventory from an ordered list, as
// read from a --labels file or a loaded model's labels file. Unlike
// NewLabels, it never grows: an unseen label is a structural error (spec
// §7's "labels in test set not present in training model").
func LabelsFromSlice(names []string) *Labels {
	l := &Labels{names: append([]string(nil), names...), index: make(map[string]int, len(names)), fixed: true}
	for i, name := range names {
		l.index[name] = i
	}
	return l
}

// Len returns the number of distinct labels.
func (l *Labels) Len() int { return len(l.names) }

// Names returns the ordered label inventory.
func (l *Labels) Names() []string { return l.names }

// indexOf returns the dense index of name, growing the inventory unless it
// was built with LabelsFromSlice.
func (l *Labels) indexOf(name string) (int, bool) {
	if idx, ok := l.index[name]; ok {
		return idx, true
	}
	if l.fixed {
		return 0, false
	}
	idx := len(l.names)
	l.names = append(l.names, name)
	l.index[name] = idx
	return idx, true
}

// Options configures one Parse call.
type Options struct {
	// FeatureMap receives every "<ns>^<name>" feature string encountered.
	FeatureMap featuremap.Map

	// Labels is the label inventory to resolve gold labels against. If it
	// was built with NewLabels, unseen labels grow it; if built with
	// LabelsFromSlice (e.g. from a loaded model), unseen labels are a
	// structural error (spec §7's "labels in test set not present in
	// training model").
	Labels *Labels

	// Ignore holds namespace first-characters to skip entirely (spec §6).
	Ignore map[byte]bool

	// Quadratic lists namespace-prefix pairs whose features are expanded
	// into cross-product features, joined with '^'. There is no wildcard:
	// a ':' in a pair matches no namespace, so such a pair adds no features.
	Quadratic [][2]byte

	// RequireLabels rejects a gold_label-less line as a structural error
	// (used for --train; --test tolerates missing gold per spec §7).
	RequireLabels bool
}

// Parse reads path and returns its sequences. Blank lines separate
// sequences (spec §6); a trailing blank line is optional.
func Parse(path string, opts Options) ([]*seqmodel.Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "corpus: opening %s", path)
	}
	defer f.Close()
	return ParseReader(f, opts)
}

// ParseReader is Parse over an already-open io.Reader. Errors name the
// offending line by its 1-based line number.
func ParseReader(r io.Reader, opts Options) ([]*seqmodel.Sequence, error) {
	var sequences []*seqmodel.Sequence
	var current []seqmodel.TokenExample

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				sequences = append(sequences, &seqmodel.Sequence{Tokens: current})
				current = nil
			}
			continue
		}
		tok, err := parseLine(line, opts)
		if err != nil {
			return nil, errors.Wrapf(err, "corpus: line %d", lineNo)
		}
		current = append(current, tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "corpus: reading input")
	}
	if len(current) > 0 {
		sequences = append(sequences, &seqmodel.Sequence{Tokens: current})
	}
	if len(sequences) == 0 {
		return nil, errors.New("corpus: input contains no sequences")
	}
	return sequences, nil
}

// parseLine implements spec §6's grammar:
//
//	<label_spec> ['<id>] [|<ns>[:scale] feat[:val] feat[:val] ...]*
//
// A line whose head is empty or starts with the quoted id has no label_spec;
// its gold label stays seqmodel.UnknownLabel.
func parseLine(line string, opts Options) (seqmodel.TokenExample, error) {
	head, nsBlocks := splitNamespaces(line)
	fields := strings.Fields(head)

	tok := seqmodel.NewTokenExample("")
	tok.Importance = 1.0

	labelField := ""
	fieldIdx := 0
	if len(fields) > 0 && !strings.HasPrefix(fields[0], "'") {
		labelField = fields[0]
		fieldIdx = 1
	}
	// An importance weight is a bare numeric token following the label,
	// before the id (spec §6: "parser-defined position"). An id is
	// distinguished by its leading quote.
	if fieldIdx < len(fields) && !strings.HasPrefix(fields[fieldIdx], "'") {
		if w, err := strconv.ParseFloat(fields[fieldIdx], 64); err == nil {
			tok.Importance = w
			fieldIdx++
		}
	}
	if fieldIdx < len(fields) && strings.HasPrefix(fields[fieldIdx], "'") {
		tok.ID = strings.TrimPrefix(fields[fieldIdx], "'")
		fieldIdx++
	}

	if labelField != "" {
		if err := assignLabel(&tok, labelField, opts); err != nil {
			return seqmodel.TokenExample{}, err
		}
	}
	if opts.RequireLabels && tok.GoldLabel == seqmodel.UnknownLabel && len(tok.LabelCosts) == 0 {
		return seqmodel.TokenExample{}, errors.Errorf("corpus: missing gold label on %q", line)
	}

	feats, err := collectFeatures(nsBlocks, opts)
	if err != nil {
		return seqmodel.TokenExample{}, err
	}
	tok.Features = feats
	return tok, nil
}

// assignLabel parses the label_spec prefix: either a single label, or a
// comma-separated list of label:cost pairs for cost-sensitive mode.
func assignLabel(tok *seqmodel.TokenExample, spec string, opts Options) error {
	if !strings.Contains(spec, ",") && !strings.Contains(spec, ":") {
		idx, err := resolveLabel(spec, opts)
		if err != nil {
			return err
		}
		tok.GoldLabel = idx
		return nil
	}

	parts := strings.Split(spec, ",")
	costs := make([]seqmodel.LabelCost, 0, len(parts))
	for _, part := range parts {
		namePlusCost := strings.SplitN(part, ":", 2)
		idx, err := resolveLabel(namePlusCost[0], opts)
		if err != nil {
			return err
		}
		cost := 1.0
		if len(namePlusCost) == 2 {
			c, err := strconv.ParseFloat(namePlusCost[1], 64)
			if err != nil {
				return errors.Wrapf(err, "corpus: parsing cost in %q", part)
			}
			cost = c
		}
		costs = append(costs, seqmodel.LabelCost{Label: idx, Cost: cost})
	}
	tok.LabelCosts = costs
	if len(costs) > 0 {
		best := costs[0]
		for _, c := range costs[1:] {
			if c.Cost < best.Cost {
				best = c
			}
		}
		tok.GoldLabel = best.Label
	}
	return nil
}

func resolveLabel(name string, opts Options) (int, error) {
	if opts.Labels == nil {
		return 0, errors.New("corpus: Options.Labels must be set")
	}
	idx, ok := opts.Labels.indexOf(name)
	if !ok {
		return 0, errors.Errorf("corpus: unknown label %q not present in label inventory", name)
	}
	return idx, nil
}

// nsBlock is one parsed "|ns[:scale] feat[:val] ..." segment.
type nsBlock struct {
	ns    byte
	scale float64
	feats []featTok
}

type featTok struct {
	name  string
	value float64
}

// splitNamespaces separates the label_spec/id head from the '|'-delimited
// namespace blocks.
func splitNamespaces(line string) (head string, blocks []nsBlock) {
	parts := strings.Split(line, "|")
	head = parts[0]
	for _, raw := range parts[1:] {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		fields := strings.Fields(raw)
		nsSpec := fields[0]
		ns := nsSpec[0]
		scale := 1.0
		if idx := strings.IndexByte(nsSpec, ':'); idx >= 0 {
			if s, err := strconv.ParseFloat(nsSpec[idx+1:], 64); err == nil {
				scale = s
			}
		}
		block := nsBlock{ns: ns, scale: scale}
		for _, ft := range fields[1:] {
			name := ft
			value := 1.0
			if idx := strings.IndexByte(ft, ':'); idx >= 0 {
				name = ft[:idx]
				if v, err := strconv.ParseFloat(ft[idx+1:], 64); err == nil {
					value = v
				}
			}
			block.feats = append(block.feats, featTok{name: name, value: value})
		}
		blocks = append(blocks, block)
	}
	return head, blocks
}

// collectFeatures turns the parsed namespace blocks into (feature_index,
// value) pairs, honoring Options.Ignore and Options.Quadratic.
func collectFeatures(blocks []nsBlock, opts Options) ([]seqmodel.Feature, error) {
	var feats []seqmodel.Feature
	kept := make([]nsBlock, 0, len(blocks))
	for _, b := range blocks {
		if opts.Ignore != nil && opts.Ignore[b.ns] {
			continue
		}
		kept = append(kept, b)
		for _, ft := range b.feats {
			name := string(b.ns) + "^" + ft.name
			idx := opts.FeatureMap.IndexOf(name)
			if idx == featuremap.Absent {
				klog.V(2).Infof("corpus: unknown feature %q skipped (frozen map)", name)
				continue
			}
			feats = append(feats, seqmodel.Feature{Index: idx, Value: ft.value * b.scale})
		}
	}

	for _, pair := range opts.Quadratic {
		a, b := findNamespace(kept, pair[0]), findNamespace(kept, pair[1])
		if a == nil || b == nil {
			continue
		}
		for _, fa := range a.feats {
			for _, fb := range b.feats {
				name := string(a.ns) + "^" + fa.name + "^" + string(b.ns) + "^" + fb.name
				idx := opts.FeatureMap.IndexOf(name)
				if idx == featuremap.Absent {
					continue
				}
				feats = append(feats, seqmodel.Feature{
					Index: idx,
					Value: fa.value * a.scale * fb.value * b.scale,
				})
			}
		}
	}
	return feats, nil
}

func findNamespace(blocks []nsBlock, ns byte) *nsBlock {
	if ns == ':' {
		// ':' is not expanded into concrete namespace pairs anywhere, so a
		// literal ':' never matches a namespace.
		return nil
	}
	for i := range blocks {
		if blocks[i].ns == ns {
			return &blocks[i]
		}
	}
	return nil
}

// LabelSet returns the sorted, deduplicated label names referenced in
// labels (the inventory Parse grew or was given).
func LabelSet(labels *Labels) []string {
	set := generics.SetWith(labels.names...)
	var sorted []string
	for name := range generics.SortedKeys(set) {
		sorted = append(sorted, name)
	}
	return sorted
}
