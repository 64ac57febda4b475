// Package writer persists generated DAOIP-5 documents as indented JSON files.
package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Writer writes documents into a single output directory.
type Writer struct {
	dir string
}

// New creates the output directory if needed and returns a writer for it.
func New(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", dir, err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the output directory path.
func (w *Writer) Dir() string { return w.dir }

// WriteJSON marshals a document with two-space indentation and writes it
// under the given file name. The write goes through a temp file and rename so
// a crash never leaves a half-written document behind.
func (w *Writer) WriteJSON(name string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	path := filepath.Join(w.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize %s: %w", name, err)
	}

	logrus.Debugf("Wrote %s (%d bytes)", path, len(data))
	return nil
}
