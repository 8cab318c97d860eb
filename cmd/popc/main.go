// Command popc runs the media authenticity engine and its tooling.
//
//	popc serve --config popc.yaml
//	popc verify --asset photo.jpg --manifest photo.manifest.json
//	popc sign --asset photo.jpg --key device.pem --device-id <id> --seq 7
//	popc validate popc.yaml
//	popc version
package main

import (
	"fmt"
	"os"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	registry := NewCommandRegistry(VersionInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}, os.Stdout)
	registerCommands(registry)

	if err := registry.Execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func registerCommands(r *CommandRegistry) {
	r.Register(&Command{
		Name:        "serve",
		Description: "Run the HTTP API until interrupted",
		Usage:       "popc serve [--config popc.yaml]",
		Examples: []string{
			"popc serve --config /etc/popc/popc.yaml",
			"POPC_STORAGE_DRIVER=postgres POPC_STORAGE_DSN=postgres://... popc serve",
		},
		Run: serveCommand,
	})

	r.Register(&Command{
		Name:        "verify",
		Description: "Verify an asset in-process and print the outcome",
		Usage:       "popc verify --asset <file> [--manifest <file>] [--config popc.yaml]",
		Examples: []string{
			"popc verify --asset photo.jpg",
			"popc verify --asset photo.jpg --manifest photo.manifest.json",
		},
		Run: verifyCommand,
	})

	r.Register(&Command{
		Name:        "sign",
		Description: "Produce a signed manifest for an asset",
		Usage:       "popc sign --asset <file> --key <pem> [--device-id id] [--seq n] [--compact]",
		Examples: []string{
			"popc sign --asset photo.jpg --key device.pem > photo.manifest.json",
			"popc sign --asset photo.jpg --key device.pem --device-id 3f2a... --seq 12",
		},
		Run: signCommand,
	})

	r.Register(&Command{
		Name:        "validate",
		Description: "Validate a popc configuration file",
		Usage:       "popc validate <config-file>",
		Examples: []string{
			"popc validate popc.yaml",
		},
		Run: validateCommand,
	})

	r.Register(&Command{
		Name:        "version",
		Description: "Show version information",
		Usage:       "popc version [--verbose]",
		Examples: []string{
			"popc version",
			"popc version --verbose",
		},
		Run: r.versionCommand,
	})
}
