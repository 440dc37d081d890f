package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gridsome/gridsome/internal/manifest"
)

var routesJSON bool

func init() {
	routesCmd.Flags().BoolVar(&routesJSON, "json", false, "Print the routes manifest")
}

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List every output path in render order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Bootstrap(cmd.Context()); err != nil {
			return err
		}
		entries, err := a.RenderQueue(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if routesJSON {
			b, err := manifest.MarshalRoutes(entries)
			if err != nil {
				return err
			}
			_, err = out.Write(b)
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tPATH\tCOMPONENT")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Kind, e.Path, e.Component)
		}
		return w.Flush()
	},
}
