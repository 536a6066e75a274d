// Mender CLI - enhances compiled Maggie classes for persistence
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/mender/classfile"
	"github.com/chazu/mender/enhance"
	"github.com/chazu/mender/manifest"
)

func main() {
	configDir := flag.String("config", "", "Directory containing mender.toml (default: search upward from .)")
	outDir := flag.String("o", "", "Output directory (overrides [output] dir)")
	workers := flag.Int("j", 0, "Number of classes enhanced in parallel (overrides [output] workers)")
	verbose := flag.Bool("v", false, "Verbose output")
	debug := flag.Bool("debug", false, "Debug logging")
	dump := flag.Bool("dump", false, "Print class files instead of enhancing them")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mender [options] paths...\n\n")
		fmt.Fprintf(os.Stderr, "Enhances compiled Maggie classes (%s files) for lazy loading, dirty tracking\n", classfile.Extension)
		fmt.Fprintf(os.Stderr, "and bidirectional association management.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  mender build/classes             # Enhance every class under build/classes\n")
		fmt.Fprintf(os.Stderr, "  mender -o out -j 8 Order.magc    # Enhance one class into out/\n")
		fmt.Fprintf(os.Stderr, "  mender -dump out/Shop/Order.magc # Show an enhanced class\n")
	}
	flag.Parse()

	switch {
	case *debug:
		commonlog.Configure(2, nil)
	case *verbose:
		commonlog.Configure(1, nil)
	default:
		commonlog.Configure(0, nil)
	}

	paths := flag.Args()
	if len(paths) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if *dump {
		if err := dumpPaths(paths); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	m, err := loadManifest(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}
	out := m.OutputDir()
	if *outDir != "" {
		out = *outDir
	}
	if *workers > 0 {
		m.Output.Workers = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := runBatch(ctx, m, paths, out)
	if report != nil {
		fmt.Printf("%d enhanced, %d unchanged, %d excluded, %d failed\n",
			report.Count(manifest.StatusEnhanced), report.Count(manifest.StatusUnchanged),
			report.Count(manifest.StatusExcluded), report.Count(manifest.StatusFailed))
		if *verbose {
			for _, c := range report.Classes {
				if c.Status == manifest.StatusFailed {
					fmt.Fprintf(os.Stderr, "  %s: %s\n", c.Name, c.Error)
				}
			}
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadManifest loads mender.toml from dir, or searches upward from the
// working directory. Without a file the defaults apply.
func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil || m != nil {
		return m, err
	}
	return manifest.Default(), nil
}

// dumpPaths prints each class file with its enhancement record.
func dumpPaths(paths []string) error {
	files, err := collectClassFiles(paths)
	if err != nil {
		return err
	}
	for _, file := range files {
		c, err := classfile.ReadFile(file)
		if err != nil {
			return err
		}
		fmt.Printf("# %s\n%s", file, classfile.Dump(c))
		r, ok, err := enhance.ReadRecord(c)
		switch {
		case err != nil:
			fmt.Printf("  record: %v\n", err)
		case ok:
			fmt.Printf("  record: %s attributes=%v lazy=%v dirty=%t extended=%t\n",
				r.Kind, r.Attributes, r.Lazy, r.DirtyTracking, r.Extended)
			for _, a := range r.Associations {
				fmt.Printf("  association: %s -> %s.%s\n", a.Field, a.Target, a.Inverse)
			}
		}
	}
	return nil
}
