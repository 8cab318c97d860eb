package main

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"
)

func (r *CommandRegistry) versionCommand(args []string, out io.Writer) error {
	fs := newFlagSet("version", out)
	verbose := fs.Bool("verbose", false, "Show Go runtime and dependency versions")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "popc %s (commit: %s, built: %s)\n", r.version.Version, r.version.Commit, r.version.Date)
	if !*verbose {
		return nil
	}

	fmt.Fprintf(out, "\nGo: %s %s/%s\n\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	info, ok := debug.ReadBuildInfo()
	if !ok {
		fmt.Fprintln(out, "Dependency information unavailable")
		return nil
	}
	table := NewTableWriter([]string{"Module", "Version"})
	for _, dep := range info.Deps {
		if !keyDependency(dep.Path) {
			continue
		}
		v := dep.Version
		if dep.Replace != nil {
			v += " => " + dep.Replace.Version
		}
		table.AddRow([]string{dep.Path, v})
	}
	table.Print(out)
	return nil
}

// keyDependency filters the dependencies worth reporting.
func keyDependency(path string) bool {
	for _, prefix := range []string{
		"github.com/spiffe/go-spiffe",
		"github.com/go-chi/chi",
		"github.com/lib/pq",
		"github.com/aws/aws-sdk-go-v2/service/s3",
		"github.com/fxamacker/cbor",
		"github.com/go-jose/go-jose",
		"github.com/prometheus/client_golang",
		"github.com/rs/zerolog",
	} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
