package rowgate

import (
	"fmt"

	"github.com/edgeflare/rowgate/pkg/docs"
	"github.com/spf13/cobra"
)

var openapiCmd = &cobra.Command{
	Use:   "openapi",
	Short: "Print the OpenAPI document",
	Run: func(cmd *cobra.Command, args []string) {
		gen := docs.NewGenerator(docs.Info{
			Title:   cfg.App.Name,
			Version: cfg.App.Version,
		}, cfg.ServerURL(), cfg.API.Prefix)

		out, err := gen.JSON()
		if err != nil {
			fatal(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	},
}
