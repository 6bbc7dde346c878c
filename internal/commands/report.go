package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/reconcile"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/service"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printReport renders a preview as a table, one line per row.
func printReport(w io.Writer, r *reconcile.Report) error {
	fmt.Fprintf(w, "%d rows: %d create, %d update, %d unchanged, %d skip\n\n",
		r.TotalRows, r.Summary.Create, r.Summary.Update, r.Summary.Unchanged, r.Summary.Skip)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tACTION\tDATE\tAMOUNT\tDESCRIPTION\tMATCH\tDETAIL")
	for _, row := range r.Rows {
		date, amount, desc := "", "", ""
		if row.Parsed != nil {
			date = row.Parsed.Date.Format("2006-01-02")
			amount = row.Parsed.Amount.StringFixed(2)
			desc = row.Parsed.Description
		}

		match := row.MatchedID()
		if match != "" && row.Confidence != nil {
			match += " (" + row.Confidence.StringFixed(2) + ")"
		}

		var detail []string
		if row.SkipReason != "" {
			detail = append(detail, row.SkipReason)
		}
		for _, c := range row.Changes {
			detail = append(detail, fmt.Sprintf("%s: %q -> %q", c.Field, c.From, c.To))
		}
		detail = append(detail, row.Warnings...)

		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.RowNumber, row.Action, date, amount, desc, match, strings.Join(detail, "; "))
	}
	return tw.Flush()
}

// printResult renders an execute result.
func printResult(w io.Writer, res *service.RunResult) {
	fmt.Fprintf(w, "Run %s: %d created, %d updated, %d unchanged, %d skipped, %d categorized by rules\n",
		res.RunID, res.Created, res.Updated, res.Unchanged, res.Skipped, res.RulesApplied)
	for _, d := range res.SkippedDetails {
		fmt.Fprintf(w, "  row %d: %s\n", d.RowNumber, d.Reason)
	}
}
