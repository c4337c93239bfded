package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/greenscore/internal/funders"
	"github.com/sells-group/greenscore/internal/model"
)

var fundersPath string

var fundersCmd = &cobra.Command{
	Use:   "funders",
	Short: "List the green funder directory used for recommendations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := fundersPath
		if path == "" {
			path = cfg.Funders.Path
		}

		dir, err := funders.Open(cmd.Context(), path)
		if err != nil {
			return err
		}

		if dir.Len() == 0 {
			fmt.Fprintln(os.Stderr, "No funders found.")
			return nil
		}

		formatFunders(os.Stdout, dir.All())
		return nil
	},
}

func init() {
	fundersCmd.Flags().StringVar(&fundersPath, "path", "", "funder directory CSV or XLSX path or URL (default from config)")
	rootCmd.AddCommand(fundersCmd)
}

func formatFunders(out io.Writer, rows []model.Funder) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSECTOR\tINVESTMENT_RANGE\tLOCATION\tWEBSITE")
	_, _ = fmt.Fprintln(w, "----\t------\t----------------\t--------\t-------")
	for _, f := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", truncate(f.Name, 40), f.Sector, f.InvestmentRange, f.Location, f.Website)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
