package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/hookline/internal/api"
	"github.com/jackzampolin/hookline/internal/prompts"
)

var (
	renderReq  prompts.MergeRequest
	renderVars []string
	renderFull bool
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Merge prompt layers locally and print the result",
	Long: `Merge the global, client and campaign documents from the local store and
substitute variables. No server is needed.

By default only the rendered body is printed; --full prints front matter,
sources and unresolved placeholders as well.

Examples:
  hookline render --client acme --campaign launch
  hookline render --client acme --var product=Widget --full -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		vars := make(map[string]any, len(renderVars))
		for _, p := range renderVars {
			name, value, ok := strings.Cut(p, "=")
			if !ok || strings.TrimSpace(name) == "" {
				return fmt.Errorf("invalid --var %q, want name=value", p)
			}
			vars[strings.TrimSpace(name)] = value
		}
		renderReq.Variables = vars

		store, err := openStore(newLogger("warn"))
		if err != nil {
			return err
		}
		defer store.Close()

		merged, err := prompts.NewMerger(store).Merge(cmd.Context(), renderReq)
		if err != nil {
			return err
		}
		if renderFull {
			return api.Output(merged)
		}
		return api.OutputRaw([]byte(merged.Body + "\n"))
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderReq.Client, "client", "", "Client layer")
	renderCmd.Flags().StringVar(&renderReq.Campaign, "campaign", "", "Campaign layer (requires --client)")
	renderCmd.Flags().IntVar(&renderReq.Pins.Global, "pin-global", 0, "Global version to use instead of the active one")
	renderCmd.Flags().IntVar(&renderReq.Pins.Client, "pin-client", 0, "Client version to use instead of the active one")
	renderCmd.Flags().IntVar(&renderReq.Pins.Campaign, "pin-campaign", 0, "Campaign version to use instead of the active one")
	renderCmd.Flags().StringArrayVar(&renderVars, "var", nil, "Template variable as name=value (repeatable)")
	renderCmd.Flags().BoolVar(&renderFull, "full", false, "Print the full merge result")

	rootCmd.AddCommand(renderCmd)
}
