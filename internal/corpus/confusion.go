package corpus

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// LoadConfusionMatrix reads the CSV format spec §6's --confusion-scaling
// flag names: a square matrix with a header row and a label column, rows
// and columns both labels, used to scale emission updates by
// C[gold_label, pred_label]. Missing (row, col) pairs default to 1.0 (left
// absent from the returned map, per update.Config.ConfusionMatrix's
// documented default).
func LoadConfusionMatrix(path string, labels *Labels) (map[[2]int]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "corpus: opening confusion matrix %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, errors.Wrap(err, "corpus: reading confusion matrix header")
	}
	// header[0] is the empty index-column label; header[1:] are column labels.
	colLabels := header[1:]
	colIdx := make([]int, len(colLabels))
	for i, name := range colLabels {
		idx, ok := labels.index[name]
		if !ok {
			return nil, errors.Errorf("corpus: confusion matrix column %q not in label inventory", name)
		}
		colIdx[i] = idx
	}

	out := make(map[[2]int]float64)
	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		rowLabel := row[0]
		rowIdx, ok := labels.index[rowLabel]
		if !ok {
			return nil, errors.Errorf("corpus: confusion matrix row %q not in label inventory", rowLabel)
		}
		for i, cell := range row[1:] {
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "corpus: parsing confusion cell (%s,%s)", rowLabel, colLabels[i])
			}
			out[[2]int{rowIdx, colIdx[i]}] = v
		}
	}
	return out, nil
}
