package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"

	"github.com/chazu/mender/classfile"
	"github.com/chazu/mender/enhance"
	"github.com/chazu/mender/manifest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeClass(t *testing.T, dir string, c *classfile.Class) string {
	t.Helper()
	path := filepath.Join(dir, c.SimpleName()+classfile.Extension)
	if err := classfile.WriteFile(path, c); err != nil {
		t.Fatal(err)
	}
	return path
}

func entity(name, super string, fields ...*classfile.Field) *classfile.Class {
	c := &classfile.Class{Name: name, Superclass: super, Pragmas: []classfile.Pragma{{Name: enhance.PragmaEntity}}}
	for _, f := range fields {
		c.AddField(f)
	}
	return c
}

func mappedBy(name, typ, inverse string) *classfile.Field {
	return &classfile.Field{Name: name, Type: typ,
		Pragmas: []classfile.Pragma{{Name: enhance.PragmaMappedBy, Args: []string{"#" + inverse}}}}
}

func sampleProject(t *testing.T) (src, types string) {
	src = t.TempDir()
	types = t.TempDir()

	// A type that is referenced but not enhanced.
	writeClass(t, types, &classfile.Class{Name: "Shop::Money", Superclass: "Object"})

	base := &classfile.Class{Name: "Shop::Base", Superclass: "Object",
		Pragmas: []classfile.Pragma{{Name: enhance.PragmaMappedSuperclass}}}
	base.AddField(&classfile.Field{Name: "version", Type: "SmallInteger"})
	writeClass(t, src, base)

	writeClass(t, src, entity("Shop::Order", "Shop::Base",
		mappedBy("customer", "Shop::Customer", "orders"),
		&classfile.Field{Name: "total", Type: "Shop::Money"}))
	writeClass(t, src, entity("Shop::Customer", "Object",
		mappedBy("orders", "OrderedCollection<Shop::Order>", "customer")))
	writeClass(t, src, &classfile.Class{Name: "Shop::Helper", Superclass: "Object"})
	writeClass(t, src, entity("Shop::LegacyOrder", "Object", &classfile.Field{Name: "id", Type: "SmallInteger"}))

	broken := entity("Shop::Broken", "Object", &classfile.Field{Name: "$$_hidden", Type: "String"})
	writeClass(t, src, broken)
	return src, types
}

func TestRunBatch(t *testing.T) {
	src, types := sampleProject(t)
	out := t.TempDir()

	m := manifest.Default()
	m.Project.Namespace = "Shop"
	m.Types.Dirs = []string{types}
	m.Classes.Exclude = []string{"Shop::Legacy*"}
	m.Output.Workers = 3

	report, err := runBatch(context.Background(), m, []string{src}, out)
	if err == nil || !strings.Contains(err.Error(), "1 of 6 classes failed") {
		t.Fatalf("runBatch error = %v", err)
	}

	status := make(map[string]string)
	for _, c := range report.Classes {
		status[c.Name] = c.Status
	}
	want := map[string]string{
		"Shop::Base":        manifest.StatusEnhanced,
		"Shop::Order":       manifest.StatusEnhanced,
		"Shop::Customer":    manifest.StatusEnhanced,
		"Shop::Helper":      manifest.StatusUnchanged,
		"Shop::LegacyOrder": manifest.StatusExcluded,
		"Shop::Broken":      manifest.StatusFailed,
	}
	if diff := cmp.Diff(want, status); diff != "" {
		t.Errorf("statuses (-want +got):\n%s", diff)
	}
	if e := report.Find("Shop::Broken"); e == nil || !strings.Contains(e.Error, "Shop::Broken") {
		t.Errorf("failure entry = %+v", e)
	}
	if e := report.Find("Shop::Order"); e == nil || e.Kind != string(enhance.KindEntity) ||
		!cmp.Equal(e.Attributes, []string{"customer", "total"}) {
		t.Errorf("order entry = %+v", e)
	}

	saved, err := manifest.ReadReport(filepath.Join(out, manifest.ReportFileName))
	if err != nil || saved == nil {
		t.Fatalf("ReadReport = %v, %v", saved, err)
	}
	if diff := cmp.Diff(report, saved, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("saved report (-want +got):\n%s", diff)
	}

	order, err := classfile.ReadFile(outputPath(out, "Shop::Order"))
	if err != nil {
		t.Fatal(err)
	}
	if order.Field("$$_tracker") != nil {
		t.Error("Shop::Order redeclares the tracker inherited from Shop::Base")
	}
	if order.Method("$$_write_customer:") == nil {
		t.Error("Shop::Order has no generated writer")
	}

	helperIn, err := os.ReadFile(filepath.Join(src, "Helper"+classfile.Extension))
	if err != nil {
		t.Fatal(err)
	}
	helperOut, err := os.ReadFile(outputPath(out, "Shop::Helper"))
	if err != nil {
		t.Fatal(err)
	}
	if string(helperIn) != string(helperOut) {
		t.Error("unchanged class was rewritten")
	}
	if _, err := os.Stat(outputPath(out, "Shop::Broken")); !os.IsNotExist(err) {
		t.Error("failed class was written")
	}
}

func TestRunBatchCancelled(t *testing.T) {
	src, _ := sampleProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := manifest.Default()
	m.Project.Namespace = "Shop"
	if _, err := runBatch(ctx, m, []string{src}, t.TempDir()); err == nil {
		t.Error("cancelled batch succeeded")
	}
}

func TestWaves(t *testing.T) {
	in := func(name, super string) *input {
		return &input{path: name, class: &classfile.Class{Name: name, Superclass: super}}
	}
	a := in("A", "Object")
	b := in("B", "A")
	c := in("C", "B")
	d := in("D", "Object")

	got := waves([]*input{c, d, b, a})
	names := make([][]string, len(got))
	for i, wave := range got {
		for _, x := range wave {
			names[i] = append(names[i], x.class.Name)
		}
	}
	want := [][]string{{"D", "A"}, {"B"}, {"C"}}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("waves (-want +got):\n%s", diff)
	}
}

func TestOutputPath(t *testing.T) {
	got := outputPath("out", "Shop::Orders::Line")
	want := filepath.Join("out", "Shop", "Orders", "Line"+classfile.Extension)
	if got != want {
		t.Errorf("outputPath = %q, want %q", got, want)
	}
}

func TestCollectClassFiles(t *testing.T) {
	dir := t.TempDir()
	writeClass(t, dir, &classfile.Class{Name: "Shop::B", Superclass: "Object"})
	writeClass(t, dir, &classfile.Class{Name: "Shop::A", Superclass: "Object"})
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	files, err := collectClassFiles([]string{dir})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "A.magc"), filepath.Join(dir, "B.magc")}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("files (-want +got):\n%s", diff)
	}
}
