// Package manifest handles mender.toml enhancement configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the configuration file.
const FileName = "mender.toml"

// ErrReservedNamespace is returned when the project namespace collides with
// a core class or the runtime support namespace.
var ErrReservedNamespace = errors.New("reserved namespace")

// Manifest represents a mender.toml configuration.
type Manifest struct {
	Project Project  `toml:"project"`
	Enhance Features `toml:"enhance"`
	Classes Classes  `toml:"classes"`
	Types   Types    `toml:"types"`
	Output  Output   `toml:"output"`

	// Dir is the directory containing the mender.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name      string `toml:"name"`
	Namespace string `toml:"namespace"`
}

// Features switches individual enhancements on or off.
type Features struct {
	DirtyTracking         bool `toml:"dirty-tracking"`
	LazyLoading           bool `toml:"lazy-loading"`
	AssociationManagement bool `toml:"association-management"`
	Extended              bool `toml:"extended"`
}

// Classes classifies classes by qualified name, in addition to pragmas.
// Exclude holds path.Match patterns; an excluded class is never enhanced.
type Classes struct {
	Entities           []string `toml:"entities"`
	Embeddables        []string `toml:"embeddables"`
	MappedSuperclasses []string `toml:"mapped-superclasses"`
	Exclude            []string `toml:"exclude"`
}

// Types lists directories of class files that are defined, unenhanced,
// before the classes being enhanced so that references to them resolve.
type Types struct {
	Dirs []string `toml:"dirs"`
}

// Output configures where enhanced classes are written.
type Output struct {
	Dir     string `toml:"dir"`
	Workers int    `toml:"workers"`
}

// Default returns the configuration used when no mender.toml exists.
func Default() *Manifest {
	return &Manifest{
		Enhance: Features{
			DirtyTracking:         true,
			LazyLoading:           true,
			AssociationManagement: true,
		},
		Output: Output{Dir: "enhanced", Workers: 4},
	}
}

// Parse validates and decodes mender.toml content. Keys that are absent
// keep their Default values.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if m.Project.Namespace == "" {
		m.Project.Namespace = ToPascalCase(m.Project.Name)
	}
	if m.Project.Namespace != "" && IsReservedNamespace(m.Project.Namespace) {
		return nil, fmt.Errorf("%w: %q", ErrReservedNamespace, m.Project.Namespace)
	}
	for _, pattern := range m.Classes.Exclude {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("bad exclude pattern %q: %w", pattern, err)
		}
	}
	return m, nil
}

// Load parses a mender.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	p := filepath.Join(dir, FileName)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", p, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a mender.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// OutputDir returns the path enhanced classes are written to.
func (m *Manifest) OutputDir() string {
	return m.resolve(m.Output.Dir)
}

// TypeDirPaths returns paths for the configured type directories.
func (m *Manifest) TypeDirPaths() []string {
	var paths []string
	for _, d := range m.Types.Dirs {
		paths = append(paths, m.resolve(d))
	}
	return paths
}

// ReportPath returns the path of the enhancement report.
func (m *Manifest) ReportPath() string {
	return filepath.Join(m.OutputDir(), ReportFileName)
}

// Excluded reports whether a class matches an exclude pattern.
func (m *Manifest) Excluded(className string) bool {
	for _, pattern := range m.Classes.Exclude {
		if ok, _ := path.Match(pattern, className); ok {
			return true
		}
	}
	return false
}
