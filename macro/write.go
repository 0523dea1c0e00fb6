package macro

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mastercactapus/parkcal/gcode"
)

// Lint parses the macro text and validates every block, so a broken
// template is caught before it reaches the controller.
func Lint(m GeneratedMacro) error {
	blocks, err := gcode.Parse(m.Text)
	if err != nil {
		return errors.Wrap(err, m.FileName())
	}
	if len(blocks) == 0 {
		return errors.Errorf("%s: no commands", m.FileName())
	}
	for i, b := range blocks {
		if err := b.Validate(); err != nil {
			return errors.Wrapf(err, "%s: block %d", m.FileName(), i+1)
		}
	}
	return nil
}

// WriteAll lints each macro and writes it to dir, creating dir if needed.
// It returns the paths written.
func WriteAll(dir string, macros []GeneratedMacro) ([]string, error) {
	for _, m := range macros {
		if err := Lint(m); err != nil {
			return nil, err
		}
	}

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, errors.Wrap(err, "create output dir")
	}

	paths := make([]string, 0, len(macros))
	for _, m := range macros {
		p := filepath.Join(dir, m.FileName())
		err = os.WriteFile(p, []byte(m.Text), 0o644)
		if err != nil {
			return paths, errors.Wrapf(err, "write %s", p)
		}
		logrus.WithField("file", p).Info("wrote macro")
		paths = append(paths, p)
	}
	return paths, nil
}
