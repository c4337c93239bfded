package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/greenscore/internal/model"
)

var analyzeFormat string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <proposal.pdf>",
	Short: "Analyze a project proposal PDF and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !validFormat(analyzeFormat) {
			return eris.Errorf("unknown format %q (want json, yaml or summary)", analyzeFormat)
		}

		analyzer, err := initAnalyzer(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		analysis, err := analyzer.Analyze(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		return writeAnalysis(os.Stdout, analysis, analyzeFormat)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "json", "output format: json, yaml or summary")
	rootCmd.AddCommand(analyzeCmd)
}

func validFormat(f string) bool {
	switch f {
	case "json", "yaml", "summary":
		return true
	}
	return false
}

// writeAnalysis prints the API payload as JSON or YAML, or a colored
// human-readable summary.
func writeAnalysis(out io.Writer, a *model.Analysis, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(a.Payload())
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(a.Payload()); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	case "summary":
		formatSummary(out, a)
		return nil
	default:
		return eris.Errorf("unknown format %q", format)
	}
}

func formatSummary(out io.Writer, a *model.Analysis) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(out, "Request %s\n\n", a.RequestID)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tOBJECTS\tDURATION\tIN_TOKENS\tOUT_TOKENS\tCOST")
	_, _ = fmt.Fprintln(w, "-----\t-------\t--------\t---------\t----------\t----")
	for _, st := range a.Stages {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%dms\t%d\t%d\t$%.4f\n",
			st.Name, st.Objects, st.DurationMs, st.Usage.InputTokens, st.Usage.OutputTokens, st.CostUSD)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\nTotal: %d in / %d out tokens, $%.4f\n\n",
		a.Usage.InputTokens, a.Usage.OutputTokens, a.CostUSD)

	if a.Rejected {
		_, _ = color.New(color.FgRed, color.Bold).Fprintln(out, a.Error)
		return
	}
	if len(a.Records) == 0 {
		_, _ = color.New(color.FgYellow).Fprintln(out, "No structured result recovered.")
		return
	}

	for i, r := range a.Records {
		if len(a.Records) > 1 {
			_, _ = bold.Fprintf(out, "Record %d\n", i+1)
		}
		if score, ok := r.GreenScore(); ok {
			_, _ = color.New(color.FgGreen, color.Bold).Fprintf(out, "Green score: %d\n", score)
		}
		keys := make([]string, 0, len(r))
		for k := range r {
			if k != "green_score" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = color.New(color.FgCyan).Fprintf(out, "%s: ", k)
			_, _ = fmt.Fprintln(out, summaryValue(r[k]))
		}
		_, _ = fmt.Fprintln(out)
	}
}

func summaryValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
