package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Load content, build the render queue and write the manifests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Build(cmd.Context())
		if err != nil {
			return err
		}
		var failed int
		for _, e := range entries {
			if e.Err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), e.Err)
				failed++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d pages queued\n", len(entries))
		if failed > 0 {
			return fmt.Errorf("%d page queries failed", failed)
		}
		return nil
	},
}
