// Package modelio persists and loads a trained model directory: the
// transition and emission weight vectors, the label inventory, the
// (optional) interning feature map, and free-form settings. Weight, label
// and feature-map files are written with a write-to-temp-then-rename
// pattern, so none of them is ever left half-written; the directory as a
// whole is not replaced atomically.
package modelio

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/janpfeifer/seqlabel/internal/featuremap"
	"github.com/janpfeifer/seqlabel/internal/weights"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	transitionFile = "transition.gob"
	emissionFile   = "emission.gob"
	labelsFile     = "labels"
	featureMapFile = "feature_map.gob"
	settingsFile   = "settings.json"
)

// Model is a fully-loaded (or about-to-be-saved) trained model directory.
type Model struct {
	Transition *weights.Vector
	Emission   *weights.Vector
	Labels     []string

	// Interning is non-nil only when the model was trained in interning
	// mode rather than hashing mode.
	Interning *featuremap.Interning

	// Settings carries free-form hyperparameters (spec §6's settings.json):
	// learning rate, passes, hash bits, and so on, so a loaded model can be
	// resumed or reported on without re-deriving them.
	Settings map[string]any
}

// Save writes m to dir, creating dir if necessary. The weight, labels and
// feature-map files are handled one after another: each is written to a
// ".tmp" sibling, any existing final file is backed up with a "~" suffix,
// and the temp file is renamed into place. settings.json is overwritten
// directly, without a temp file or backup. A crash mid-save can leave files
// of the new model beside files of the old one.
func Save(dir string, m *Model) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "modelio: creating model directory %q", dir)
	}

	if err := saveGobSibling(m.Transition.Save, filepath.Join(dir, transitionFile)); err != nil {
		return err
	}
	if err := saveGobSibling(m.Emission.Save, filepath.Join(dir, emissionFile)); err != nil {
		return err
	}
	if err := writeLabels(filepath.Join(dir, labelsFile), m.Labels); err != nil {
		return err
	}
	if m.Interning != nil {
		if err := saveGobSibling(m.Interning.Save, filepath.Join(dir, featureMapFile)); err != nil {
			return err
		}
	}
	if err := writeSettings(filepath.Join(dir, settingsFile), m.Settings); err != nil {
		return err
	}
	klog.Infof("modelio: saved model to %q (%d labels)", dir, len(m.Labels))
	return nil
}

// saveGobSibling writes via save to a temp path, backs up any existing
// final path, then renames the temp path into place.
func saveGobSibling(save func(path string) error, finalPath string) error {
	tmp := finalPath + ".tmp"
	if err := save(tmp); err != nil {
		return err
	}
	if _, err := os.Stat(finalPath); err == nil {
		if err := os.Rename(finalPath, finalPath+"~"); err != nil {
			return errors.Wrapf(err, "modelio: backing up %q", finalPath)
		}
	}
	if err := os.Rename(tmp, finalPath); err != nil {
		return errors.Wrapf(err, "modelio: renaming %q into place", finalPath)
	}
	return nil
}

func writeLabels(path string, labels []string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "modelio: creating %q", tmp)
	}
	w := bufio.NewWriter(f)
	for _, label := range labels {
		if _, err := w.WriteString(label + "\n"); err != nil {
			_ = f.Close()
			return errors.Wrapf(err, "modelio: writing %q", tmp)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "modelio: flushing %q", tmp)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "modelio: closing %q", tmp)
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+"~"); err != nil {
			return errors.Wrapf(err, "modelio: backing up %q", path)
		}
	}
	return errors.Wrapf(os.Rename(tmp, path), "modelio: renaming %q into place", path)
}

func writeSettings(path string, settings map[string]any) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "modelio: creating %q", path)
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(settings); err != nil {
		return errors.Wrapf(err, "modelio: encoding %q", path)
	}
	return nil
}

// Load reads a model directory previously written by Save. hashing reports
// whether the caller expects a hashing feature map (in which case a missing
// feature_map.gob is not an error).
func Load(dir string, hashing bool) (*Model, error) {
	transition, err := weights.Load(filepath.Join(dir, transitionFile))
	if err != nil {
		return nil, errors.Wrapf(err, "modelio: loading transition weights from %q", dir)
	}
	emission, err := weights.Load(filepath.Join(dir, emissionFile))
	if err != nil {
		return nil, errors.Wrapf(err, "modelio: loading emission weights from %q", dir)
	}
	labels, err := readLabels(filepath.Join(dir, labelsFile))
	if err != nil {
		return nil, err
	}

	m := &Model{Transition: transition, Emission: emission, Labels: labels}

	featureMapPath := filepath.Join(dir, featureMapFile)
	if _, statErr := os.Stat(featureMapPath); statErr == nil {
		in, err := featuremap.LoadInterning(featureMapPath)
		if err != nil {
			return nil, errors.Wrapf(err, "modelio: loading feature map from %q", dir)
		}
		m.Interning = in
	} else if !hashing {
		return nil, errors.Errorf("modelio: %q has no feature_map.gob but model is not in hashing mode", dir)
	}

	settings, err := readSettings(filepath.Join(dir, settingsFile))
	if err != nil {
		return nil, err
	}
	m.Settings = settings
	return m, nil
}

func readLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "modelio: opening %q", path)
	}
	defer func() { _ = f.Close() }()
	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		labels = append(labels, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "modelio: reading %q", path)
	}
	if len(labels) == 0 {
		return nil, errors.Errorf("modelio: %q contains no labels", path)
	}
	return labels, nil
}

func readSettings(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, errors.Wrapf(err, "modelio: opening %q", path)
	}
	defer func() { _ = f.Close() }()
	var settings map[string]any
	if err := json.NewDecoder(f).Decode(&settings); err != nil {
		return nil, errors.Wrapf(err, "modelio: decoding %q", path)
	}
	return settings, nil
}
