package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jobrunner/archivesync/internal/domain"
)

// staleYears is the report of the stale command.
type staleYears struct {
	Years []string `json:"stale_years" yaml:"stale_years"`
}

// pruneResult is the report of the prune command.
type pruneResult struct {
	Local  int `json:"local_pruned" yaml:"local_pruned"`
	Remote int `json:"remote_pruned" yaml:"remote_pruned"`
}

func validateOutput(format string) error {
	switch format {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

// render writes v to w in the requested format.
func render(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return renderText(w, v)
	}
}

func renderText(w io.Writer, v any) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	switch r := v.(type) {
	case domain.RunReport:
		if r.RunID != "" {
			fmt.Fprintf(tw, "run:\t%s\n", r.RunID)
		}
		fmt.Fprintf(tw, "stale years:\t%s\n", joinOrNone(r.StaleYears))
		fmt.Fprintf(tw, "succeeded:\t%d\n", r.YearsSucceeded)
		fmt.Fprintf(tw, "failed:\t%d\n", r.YearsFailed)
		fmt.Fprintf(tw, "pruned:\tlocal %d, remote %d\n", r.LocalPruned, r.RemotePruned)
		fmt.Fprintf(tw, "duration:\t%s\n", r.Duration().Round(time.Millisecond))
		if len(r.Results) > 0 {
			fmt.Fprintln(tw)
			writeResults(tw, r.Results)
		}
	case []domain.UploadResult:
		writeResults(tw, r)
	case staleYears:
		for _, y := range r.Years {
			fmt.Fprintln(tw, y)
		}
	case pruneResult:
		fmt.Fprintf(tw, "local:\t%d\n", r.Local)
		fmt.Fprintf(tw, "remote:\t%d\n", r.Remote)
	case []domain.Failure:
		for _, f := range r {
			fmt.Fprintf(tw, "%s\t%s\n", f.Time.UTC().Format(time.RFC3339), f.Identifier)
		}
	default:
		return fmt.Errorf("no text rendering for %T", v)
	}

	return tw.Flush()
}

func writeResults(w io.Writer, results []domain.UploadResult) {
	fmt.Fprintln(w, "YEAR\tMARKER\tSTATUS\tUPLOADED\tFAILED\tERROR")
	for _, res := range results {
		status := "ok"
		if !res.Succeeded {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			res.Year, orDash(res.Marker), status, res.UploadedCount, res.FailedCount, orDash(res.Error))
	}
}

func joinOrNone(s []string) string {
	if len(s) == 0 {
		return "none"
	}
	return strings.Join(s, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
