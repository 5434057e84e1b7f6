package main

import (
	"fmt"
	"io"

	"nightproc/internal/resubmit"
)

func printPassSummary(out io.Writer, path string, result resubmit.Result, dryRun bool) {
	fmt.Fprintf(out, "Table: %s\n", path)
	if result.SyncErr != nil {
		fmt.Fprintf(out, "Queue sync incomplete: %v\n", result.SyncErr)
	}
	fmt.Fprintf(out, "Status updates: %d\n", len(result.Sync.Updated))

	var rows [][]string
	for _, d := range result.Submitted {
		action := "submitted"
		if d.Resubmitted {
			action = "resubmitted"
		}
		rows = append(rows, []string{d.Row.String(), action, fmt.Sprint(d.QueueID)})
	}
	for _, key := range result.WouldSubmit {
		rows = append(rows, []string{key.String(), "would submit", ""})
	}
	for _, s := range result.Skipped {
		rows = append(rows, []string{s.Row.String(), "skipped", s.Reason})
	}
	for _, f := range result.Failed {
		rows = append(rows, []string{f.Row.String(), "failed", f.Err.Error()})
	}

	switch {
	case len(rows) > 0:
		fmt.Fprintln(out, renderTable([]string{"Row", "Action", "Detail"}, rows, nil))
	case len(result.Planned) == 0:
		fmt.Fprintln(out, "Nothing to submit")
	}

	verb := "Submitted"
	count := result.NSubmitted()
	if dryRun {
		verb = "Would submit"
		count = len(result.WouldSubmit)
	}
	fmt.Fprintf(out, "%s %d of %d planned rows", verb, count, len(result.Planned))
	if result.Capped {
		fmt.Fprint(out, " (submission cap reached)")
	}
	fmt.Fprintln(out)
}
