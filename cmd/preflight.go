// File: cmd/preflight.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/bulwark/internal/config"
	"github.com/xkilldash9x/bulwark/internal/preflight"
)

// newPreflightCmd probes every configured backend without running anything.
// Unlike the run gate it reports all projects instead of aborting on the first.
func newPreflightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check the health endpoint of every configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: cfg.Preflight().Timeout}
			return checkProjects(cmd.Context(), cmd.OutOrStdout(), client, cfg.API(), cfg.Preflight())
		},
	}
}

func checkProjects(ctx context.Context, out io.Writer, client preflight.HTTPDoer, apiCfg config.APIConfig, pfCfg config.PreflightConfig) error {
	names := make([]string, 0, len(apiCfg.Projects))
	for name := range apiCfg.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return &config.ConfigError{Key: "api.projects", Reason: "no backend projects configured"}
	}

	var unhealthy int
	for _, name := range names {
		project, err := apiCfg.Project(name)
		if err != nil {
			return err
		}

		probeCtx, cancel := context.WithTimeout(ctx, pfCfg.Timeout)
		res := preflight.CheckHealth(probeCtx, client, project.HealthURL())
		cancel()

		if res.Healthy() {
			fmt.Fprintf(out, "%s %s %s (%d, %dms)\n", color.GreenString("✓"), name, res.Endpoint, res.Code, res.Elapsed.Milliseconds())
			continue
		}
		unhealthy++
		fmt.Fprintf(out, "%s %s %s: %v\n", color.RedString("✗"), name, res.Endpoint, res.Err)
	}

	if unhealthy > 0 {
		return fmt.Errorf("%d of %d backends are unhealthy", unhealthy, len(names))
	}
	return nil
}
