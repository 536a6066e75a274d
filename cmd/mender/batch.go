package main

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/mender/classfile"
	"github.com/chazu/mender/enhance"
	"github.com/chazu/mender/loader"
	"github.com/chazu/mender/manifest"
	"github.com/chazu/mender/policy"
)

var log = commonlog.GetLogger("mender.cli")

// input is one class file given on the command line.
type input struct {
	path  string
	data  []byte
	class *classfile.Class
}

// collectClassFiles expands directories into the class files below them.
func collectClassFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, classfile.Extension) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

func readInputs(files []string) ([]*input, error) {
	inputs := make([]*input, 0, len(files))
	seen := make(map[string]string)
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		c, err := classfile.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		if prev, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("%s and %s both define %s", prev, file, c.Name)
		}
		seen[c.Name] = file
		inputs = append(inputs, &input{path: file, data: data, class: c})
	}
	return inputs, nil
}

// waves groups inputs so that every class comes after its superclass when
// both are being enhanced. Classes in one wave are independent.
func waves(inputs []*input) [][]*input {
	byName := make(map[string]*input, len(inputs))
	for _, in := range inputs {
		byName[in.class.Name] = in
	}
	depth := make(map[*input]int, len(inputs))
	var level func(in *input, visiting map[*input]bool) int
	level = func(in *input, visiting map[*input]bool) int {
		if d, ok := depth[in]; ok {
			return d
		}
		d := 0
		if super, ok := byName[in.class.Superclass]; ok && !visiting[super] {
			visiting[in] = true
			d = level(super, visiting) + 1
			delete(visiting, in)
		}
		depth[in] = d
		return d
	}

	var out [][]*input
	for _, in := range inputs {
		d := level(in, map[*input]bool{})
		for len(out) <= d {
			out = append(out, nil)
		}
		out[d] = append(out[d], in)
	}
	return out
}

// outputPath maps a class name to its file under dir: Shop::Order becomes
// Shop/Order.magc.
func outputPath(dir, className string) string {
	return filepath.Join(dir, filepath.FromSlash(strings.ReplaceAll(className, "::", "/"))+classfile.Extension)
}

// defineTypes makes the classes in the configured type directories visible
// without enhancing them.
func defineTypes(ns *loader.Namespace, dirs []string) error {
	if len(dirs) == 0 {
		return nil
	}
	files, err := collectClassFiles(dirs)
	if err != nil {
		return err
	}
	for _, file := range files {
		c, err := classfile.ReadFile(file)
		if err != nil {
			return err
		}
		ns.Define(c.TypeInfo())
	}
	log.Debugf("defined %d types from %v", len(files), dirs)
	return nil
}

// runBatch enhances every class file under paths into outDir and writes a
// report next to them. Classes that fail are reported and skipped; the
// returned error then says how many failed.
func runBatch(ctx context.Context, m *manifest.Manifest, paths []string, outDir string) (*manifest.Report, error) {
	files, err := collectClassFiles(paths)
	if err != nil {
		return nil, err
	}
	inputs, err := readInputs(files)
	if err != nil {
		return nil, err
	}

	sys := loader.NewSystemNamespace()
	sys.Define(enhance.SupportTypes()...)
	nsName := m.Project.Namespace
	if nsName == "" {
		nsName = "App"
	}
	ns := loader.NewNamespace(nsName, sys)
	if err := defineTypes(ns, m.TypeDirPaths()); err != nil {
		return nil, err
	}
	// Inputs may refer to each other in any order.
	for _, in := range inputs {
		ns.Define(in.class.TypeInfo())
	}

	pol := policy.FromManifest(m)
	ldr := loader.New()
	ldr.AddTransformer(enhance.NewClassTransformer(pol).Hook())

	workers := m.Output.Workers
	if workers < 1 {
		workers = 1
	}

	report := &manifest.Report{}
	var mu sync.Mutex
	add := func(c manifest.ReportedClass) {
		mu.Lock()
		report.Add(c)
		mu.Unlock()
	}

	for _, wave := range waves(inputs) {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, in := range wave {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				entry, err := enhanceOne(ldr, ns, pol, in, outDir)
				if err != nil {
					return err
				}
				add(entry)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	report.Sort()
	if err := manifest.WriteReport(filepath.Join(outDir, manifest.ReportFileName), report); err != nil {
		return report, err
	}
	if failed := report.Count(manifest.StatusFailed); failed > 0 {
		return report, fmt.Errorf("%d of %d classes failed", failed, len(inputs))
	}
	return report, nil
}

// enhanceOne defines one class through the enhancing loader and writes the
// result. Only I/O failures are returned; enhancement failures are
// reported in the entry.
func enhanceOne(ldr *loader.Loader, ns *loader.Namespace, pol *policy.Configured, in *input, outDir string) (manifest.ReportedClass, error) {
	entry := manifest.ReportedClass{Name: in.class.Name, Source: in.path}
	out := in.data

	if pol.Excluded(in.class) {
		entry.Status = manifest.StatusExcluded
	} else {
		defined, err := ldr.DefineClass(ns, in.class.Name, in.data)
		if err != nil {
			log.Errorf("%s: %v", in.path, err)
			entry.Status = manifest.StatusFailed
			entry.Error = err.Error()
			return entry, nil
		}
		out = defined
		entry.Status = manifest.StatusUnchanged
		if !bytes.Equal(out, in.data) {
			c, err := classfile.Parse(out)
			if err != nil {
				return entry, err
			}
			if r, ok, err := enhance.ReadRecord(c); err == nil && ok {
				entry.Status = manifest.StatusEnhanced
				entry.Kind = string(r.Kind)
				entry.Attributes = r.Attributes
			}
		}
	}

	dest := outputPath(outDir, in.class.Name)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return entry, err
	}
	if err := os.WriteFile(dest, out, 0644); err != nil {
		return entry, err
	}
	log.Infof("%s: %s -> %s", in.class.Name, entry.Status, dest)
	return entry, nil
}
