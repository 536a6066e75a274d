package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// ReportFileName is written next to the enhanced classes.
const ReportFileName = "mender-report.toml"

// Report records the outcome of one batch run.
type Report struct {
	Classes []ReportedClass `toml:"class"`
}

// ReportedClass is one input class.
type ReportedClass struct {
	Name       string   `toml:"name"`
	Source     string   `toml:"source"`
	Status     string   `toml:"status"` // enhanced, unchanged, excluded or failed
	Kind       string   `toml:"kind,omitempty"`
	Attributes []string `toml:"attributes,omitempty"`
	Error      string   `toml:"error,omitempty"`
}

// Report statuses.
const (
	StatusEnhanced  = "enhanced"
	StatusUnchanged = "unchanged"
	StatusExcluded  = "excluded"
	StatusFailed    = "failed"
)

// Add appends an entry.
func (r *Report) Add(c ReportedClass) {
	r.Classes = append(r.Classes, c)
}

// Sort orders entries by class name.
func (r *Report) Sort() {
	sort.Slice(r.Classes, func(i, j int) bool {
		return r.Classes[i].Name < r.Classes[j].Name
	})
}

// Find returns the entry for a class, or nil.
func (r *Report) Find(name string) *ReportedClass {
	for i := range r.Classes {
		if r.Classes[i].Name == name {
			return &r.Classes[i]
		}
	}
	return nil
}

// Count returns how many entries have the given status.
func (r *Report) Count(status string) int {
	n := 0
	for _, c := range r.Classes {
		if c.Status == status {
			n++
		}
	}
	return n
}

// WriteReport writes a report, creating the directory if needed.
func WriteReport(path string, r *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(r); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// ReadReport reads a report. It returns nil, nil if the file does not exist.
func ReadReport(path string) (*Report, error) {
	var r Report
	if _, err := toml.DecodeFile(path, &r); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return &r, nil
}
