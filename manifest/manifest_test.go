package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "shop"
namespace = "Shop"

[enhance]
dirty-tracking = false
lazy-loading = true
association-management = false
extended = true

[classes]
entities = ["Shop::Order", "Shop::Customer"]
embeddables = ["Shop::Address"]
mapped-superclasses = ["Shop::Base"]
exclude = ["Shop::Legacy*"]

[types]
dirs = ["lib"]

[output]
dir = "out"
workers = 8
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := &Manifest{
		Project: Project{Name: "shop", Namespace: "Shop"},
		Enhance: Features{LazyLoading: true, Extended: true},
		Classes: Classes{
			Entities:           []string{"Shop::Order", "Shop::Customer"},
			Embeddables:        []string{"Shop::Address"},
			MappedSuperclasses: []string{"Shop::Base"},
			Exclude:            []string{"Shop::Legacy*"},
		},
		Types:  Types{Dirs: []string{"lib"}},
		Output: Output{Dir: "out", Workers: 8},
		Dir:    m.Dir,
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}
	if m.OutputDir() != filepath.Join(m.Dir, "out") {
		t.Errorf("OutputDir = %q", m.OutputDir())
	}
	if got := m.TypeDirPaths(); len(got) != 1 || got[0] != filepath.Join(m.Dir, "lib") {
		t.Errorf("TypeDirPaths = %v", got)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "order-service"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Namespace != "OrderService" {
		t.Errorf("default namespace = %q, want OrderService", m.Project.Namespace)
	}
	def := Default()
	if m.Enhance != def.Enhance {
		t.Errorf("features = %+v, want defaults %+v", m.Enhance, def.Enhance)
	}
	if m.Output != def.Output {
		t.Errorf("output = %+v, want defaults %+v", m.Output, def.Output)
	}
}

func TestParseEmpty(t *testing.T) {
	m, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(empty): %v", err)
	}
	if !m.Enhance.DirtyTracking || m.Enhance.Extended {
		t.Errorf("features = %+v", m.Enhance)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"unknown section", "[server]\nport = 1\n", ErrInvalid},
		{"unknown key", "[enhance]\ncolor = true\n", ErrInvalid},
		{"wrong type", "[enhance]\nextended = \"yes\"\n", ErrInvalid},
		{"zero workers", "[output]\nworkers = 0\n", ErrInvalid},
		{"bad class name", "[classes]\nentities = [\"not a name\"]\n", ErrInvalid},
		{"reserved namespace", "[project]\nnamespace = \"Array\"\n", ErrReservedNamespace},
		{"support namespace", "[project]\nname = \"mender\"\n", ErrReservedNamespace},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.content))
			if !errors.Is(err, tc.want) {
				t.Errorf("Parse error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestParseRejectsMalformedTOML(t *testing.T) {
	if _, err := Parse([]byte("[enhance\n")); err == nil {
		t.Error("expected a parse error")
	}
}

func TestParseRejectsBadPattern(t *testing.T) {
	if _, err := Parse([]byte("[classes]\nexclude = [\"Shop::[\"]\n")); err == nil {
		t.Error("expected a pattern error")
	}
}

func TestExcluded(t *testing.T) {
	m := &Manifest{Classes: Classes{Exclude: []string{"Shop::Legacy*", "Test::*"}}}
	tests := map[string]bool{
		"Shop::LegacyOrder": true,
		"Test::Fixture":     true,
		"Shop::Order":       false,
	}
	for name, want := range tests {
		if got := m.Excluded(name); got != want {
			t.Errorf("Excluded(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[project]\nname = \"found-project\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no mender.toml exists")
	}
}

func TestReportRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", ReportFileName)

	r := &Report{}
	r.Add(ReportedClass{Name: "Shop::Order", Source: "Order.magc", Status: StatusEnhanced,
		Kind: "entity", Attributes: []string{"customer", "lines"}})
	r.Add(ReportedClass{Name: "Shop::Broken", Source: "Broken.magc", Status: StatusFailed, Error: "boom"})
	r.Add(ReportedClass{Name: "Shop::Helper", Source: "Helper.magc", Status: StatusUnchanged})
	r.Sort()

	if err := WriteReport(path, r); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
	loaded, err := ReadReport(path)
	if err != nil {
		t.Fatalf("ReadReport failed: %v", err)
	}
	if diff := cmp.Diff(r, loaded); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	if loaded.Classes[0].Name != "Shop::Broken" {
		t.Errorf("report not sorted: %v", loaded.Classes[0].Name)
	}
	if loaded.Count(StatusEnhanced) != 1 || loaded.Find("Shop::Helper") == nil || loaded.Find("Shop::Nope") != nil {
		t.Error("Count/Find wrong")
	}
}

func TestReadReportNotFound(t *testing.T) {
	r, err := ReadReport("/nonexistent/path/" + ReportFileName)
	if err != nil || r != nil {
		t.Errorf("ReadReport = %v, %v; want nil, nil", r, err)
	}
}
