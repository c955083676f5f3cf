package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var catalogueFormat string

func init() {
	rootCmd.AddCommand(catalogueCmd)
	catalogueCmd.Flags().StringVarP(&catalogueFormat, "format", "f", "text", "Output format (text, json)")
}

var catalogueCmd = &cobra.Command{
	Use:   "catalogue",
	Short: "List supported task phrases in match priority order",
	Args:  cobra.NoArgs,
	RunE:  runCatalogue,
}

func runCatalogue(cmd *cobra.Command, args []string) error {
	a, log, err := buildApp(context.Background(), cmd)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	rules := a.Catalogue().Rules()
	switch catalogueFormat {
	case "json":
		out := make([]map[string]string, len(rules))
		for i, r := range rules {
			out[i] = map[string]string{"phrase": r.Phrase, "id": r.ID}
		}
		printJSON(cmd, out)
	case "text":
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tPHRASE\tOPERATION")
		for i, r := range rules {
			fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, r.Phrase, r.ID)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown format %q (use text or json)", catalogueFormat)
	}
	return nil
}
