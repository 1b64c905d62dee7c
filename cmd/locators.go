// File: cmd/locators.go
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/bulwark/internal/demoblaze"
	"github.com/xkilldash9x/bulwark/internal/locator"
)

func newLocatorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locators",
		Short: "Inspect the locator repository",
	}
	cmd.AddCommand(newLocatorsListCmd(), newLocatorsValidateCmd())
	return cmd
}

func newLocatorsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every locator chain in priority order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			repo, err := demoblaze.Locators(cfg.Locators().File)
			if err != nil {
				return err
			}
			printChains(cmd.OutOrStdout(), repo)
			return nil
		},
	}
}

func newLocatorsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a locator override file parses and only names known chains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateLocators(cmd.OutOrStdout(), args[0])
		},
	}
}

// validateLocators parses file on its own and reports chains that would not
// override anything in the embedded repository.
func validateLocators(out io.Writer, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open locator repository %s: %w", file, err)
	}
	defer f.Close()

	override, err := locator.LoadRegistry(f)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	base, err := demoblaze.Locators("")
	if err != nil {
		return err
	}

	var unknown []string
	for _, name := range override.Names() {
		if _, err := base.Chain(name); err != nil {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%s: unknown chains %s", file, strings.Join(unknown, ", "))
	}

	fmt.Fprintf(out, "%s %s: %d chains\n", color.GreenString("✓"), file, len(override.Names()))
	return nil
}

func printChains(out io.Writer, repo *locator.Registry) {
	for _, name := range repo.Names() {
		chain := repo.MustChain(name)
		fmt.Fprintln(out, color.CyanString(name))
		for i, d := range chain.Descriptors() {
			fmt.Fprintf(out, "  %d. %-9s %s\n", i+1, d.Strategy, d.Template)
		}
	}
}
