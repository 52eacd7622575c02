package corpus

import (
	"bufio"
	"io"
	"os"
	"strconv"

	"github.com/janpfeifer/seqlabel/internal/seqmodel"
	"github.com/pkg/errors"
)

// WritePredictions writes seqs to path in the output format of spec §6:
// one line per token, "id<TAB>gold<TAB>pred", blank lines between
// sequences. labels maps a dense label index back to its name.
func WritePredictions(path string, seqs []*seqmodel.Sequence, labels *Labels) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "corpus: creating predictions file %s", path)
	}
	defer f.Close()
	return WritePredictionsTo(f, seqs, labels)
}

// WritePredictionsTo is WritePredictions over an already-open io.Writer.
func WritePredictionsTo(w io.Writer, seqs []*seqmodel.Sequence, labels *Labels) error {
	bw := bufio.NewWriter(w)
	names := labels.Names()
	labelName := func(idx int) string {
		if idx == seqmodel.UnknownLabel || idx < 0 || idx >= len(names) {
			return strconv.Itoa(idx)
		}
		return names[idx]
	}

	for i, seq := range seqs {
		if i > 0 {
			if _, err := bw.WriteString("\n"); err != nil {
				return errors.Wrap(err, "corpus: writing predictions")
			}
		}
		for _, tok := range seq.Tokens {
			line := tok.ID + "\t" + labelName(tok.GoldLabel) + "\t" + labelName(tok.PredLabel) + "\n"
			if _, err := bw.WriteString(line); err != nil {
				return errors.Wrap(err, "corpus: writing predictions")
			}
		}
	}
	return bw.Flush()
}
