// Command gen-credentials generates a fresh credential record and writes it
// to the bridge's config path, used at install time and whenever an
// operator wants to force secret rotation.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/smartly/bridge/internal/config"
	"github.com/smartly/bridge/internal/platform/paths"
)

func main() {
	var (
		webhookURL = flag.String("webhook-url", "", "platform webhook base URL")
		outPath    = flag.String("out", "", "output path (defaults to the resolved config path)")
		force      = flag.Bool("force", false, "overwrite an existing credential record")
	)
	flag.Parse()

	if *webhookURL == "" {
		fmt.Fprintln(os.Stderr, "gen-credentials: -webhook-url is required")
		os.Exit(1)
	}

	path := paths.ResolveConfigPath(*outPath)
	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "gen-credentials: %s already exists; pass -force to regenerate (this invalidates the previous secret immediately)\n", path)
		os.Exit(1)
	}

	if err := paths.EnsureDirs(); err != nil {
		fmt.Fprintf(os.Stderr, "gen-credentials: %v\n", err)
		os.Exit(1)
	}

	instanceID := uuid.NewString()
	rec, err := config.Generate(instanceID, *webhookURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gen-credentials: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(path, rec); err != nil {
		fmt.Fprintf(os.Stderr, "gen-credentials: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("credential record written to %s\n", path)
	fmt.Printf("instance_id: %s\n", rec.InstanceID)
	fmt.Printf("client_id:   %s\n", rec.ClientID)
}
