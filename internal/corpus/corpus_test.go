package corpus

import (
	"strings"
	"testing"

	"github.com/janpfeifer/seqlabel/internal/featuremap"
	"github.com/janpfeifer/seqlabel/internal/seqmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleSentence(t *testing.T) {
	data := "A 'tok1 |1 word:1 bias\nB 'tok2 |1 word2\n\nA 'tok3 |1 word"
	interning := featuremap.NewInterning()
	labels := NewLabels()
	seqs, err := ParseReader(strings.NewReader(data), Options{FeatureMap: interning, Labels: labels, RequireLabels: true})
	require.NoError(t, err)
	require.Len(t, seqs, 2)
	assert.Len(t, seqs[0].Tokens, 2)
	assert.Len(t, seqs[1].Tokens, 1)

	assert.Equal(t, "tok1", seqs[0].Tokens[0].ID)
	assert.Equal(t, 0, seqs[0].Tokens[0].GoldLabel)
	assert.Equal(t, 1, seqs[0].Tokens[1].GoldLabel)
	assert.Equal(t, []string{"A", "B"}, labels.Names())
}

func TestParseFeatureValuesAndNamespaceScale(t *testing.T) {
	data := "A 'x |1:2 word:3"
	interning := featuremap.NewInterning()
	labels := NewLabels()
	seqs, err := ParseReader(strings.NewReader(data), Options{FeatureMap: interning, Labels: labels})
	require.NoError(t, err)
	require.Len(t, seqs[0].Tokens[0].Features, 1)
	// Feature value 3, namespace scale 2 => 6.
	assert.InDelta(t, 6.0, seqs[0].Tokens[0].Features[0].Value, 1e-9)
}

func TestParseIgnoresNamespace(t *testing.T) {
	data := "A 'x |1 a |2 b"
	interning := featuremap.NewInterning()
	labels := NewLabels()
	seqs, err := ParseReader(strings.NewReader(data), Options{
		FeatureMap: interning,
		Labels:     labels,
		Ignore:     map[byte]bool{'2': true},
	})
	require.NoError(t, err)
	require.Len(t, seqs[0].Tokens[0].Features, 1)
	assert.Contains(t, interning.Names(), "1^a")
	assert.NotContains(t, interning.Names(), "2^b")
}

func TestParseCostSensitiveLabelSpec(t *testing.T) {
	data := "C:0.5,A:0.1,B:0.2 'x |1 word"
	interning := featuremap.NewInterning()
	labels := NewLabels()
	seqs, err := ParseReader(strings.NewReader(data), Options{FeatureMap: interning, Labels: labels})
	require.NoError(t, err)
	tok := seqs[0].Tokens[0]
	require.Len(t, tok.LabelCosts, 3)
	// Lowest-cost label becomes gold.
	assert.Equal(t, labels.index["A"], tok.GoldLabel)
}

func TestParseImportanceWeight(t *testing.T) {
	data := "A 5.0 'x |1 word"
	interning := featuremap.NewInterning()
	labels := NewLabels()
	seqs, err := ParseReader(strings.NewReader(data), Options{FeatureMap: interning, Labels: labels})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, seqs[0].Tokens[0].Importance, 1e-9)
	assert.Equal(t, "x", seqs[0].Tokens[0].ID)
}

func TestParseQuadraticExpansion(t *testing.T) {
	data := "A 'x |1 a |2 b"
	interning := featuremap.NewInterning()
	labels := NewLabels()
	seqs, err := ParseReader(strings.NewReader(data), Options{
		FeatureMap: interning,
		Labels:     labels,
		Quadratic:  [][2]byte{{'1', '2'}},
	})
	require.NoError(t, err)
	// 1 linear feature each, plus 1 cross feature.
	assert.Len(t, seqs[0].Tokens[0].Features, 3)
	assert.Contains(t, interning.Names(), "1^a^2^b")
}

func TestParseFixedLabelsRejectsUnknown(t *testing.T) {
	interning := featuremap.NewInterning()
	labels := LabelsFromSlice([]string{"A", "B"})
	_, err := ParseReader(strings.NewReader("C 'x |1 word"), Options{FeatureMap: interning, Labels: labels})
	assert.Error(t, err)
}

func TestParseFrozenFeatureMapSkipsUnknownFeature(t *testing.T) {
	interning := featuremap.NewInterning()
	interning.IndexOf("1^known")
	interning.Freeze()
	labels := NewLabels()
	seqs, err := ParseReader(strings.NewReader("A 'x |1 known unknown"), Options{FeatureMap: interning, Labels: labels})
	require.NoError(t, err)
	assert.Len(t, seqs[0].Tokens[0].Features, 1)
}

func TestParseRequireLabelsAcceptsPresentGold(t *testing.T) {
	interning := featuremap.NewInterning()
	labels := NewLabels()
	_, err := ParseReader(strings.NewReader("A 'x |1 word"), Options{FeatureMap: interning, Labels: labels, RequireLabels: true})
	require.NoError(t, err)
}

func TestParseEmptyInputIsError(t *testing.T) {
	interning := featuremap.NewInterning()
	labels := NewLabels()
	_, err := ParseReader(strings.NewReader("\n\n"), Options{FeatureMap: interning, Labels: labels})
	assert.Error(t, err)
}

func TestWritePredictionsRoundTrip(t *testing.T) {
	labels := LabelsFromSlice([]string{"NOUN", "VERB"})
	tok := seqmodel.NewTokenExample("w1")
	tok.GoldLabel = 0
	tok.PredLabel = 1
	seq := &seqmodel.Sequence{Tokens: []seqmodel.TokenExample{tok}}

	var sb strings.Builder
	require.NoError(t, WritePredictionsTo(&sb, []*seqmodel.Sequence{seq}, labels))
	assert.Equal(t, "w1\tNOUN\tVERB\n", sb.String())
}
