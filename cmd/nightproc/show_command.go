package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nightproc/internal/proctable"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var target tableTarget
	var statuses string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display a processing table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := target.resolve(cfg)
			if err != nil {
				return err
			}
			filter, err := parseStatusFilter(statuses)
			if err != nil {
				return err
			}
			table, err := proctable.Load(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			var rows [][]string
			for i, row := range table.Rows() {
				if len(filter) > 0 && !filter[row.Status] {
					continue
				}
				queueID := ""
				if row.LatestQueueID > 0 {
					queueID = strconv.FormatInt(row.LatestQueueID, 10)
				}
				tile := ""
				if row.TileID != proctable.NoTile {
					tile = strconv.Itoa(row.TileID)
				}
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					string(row.JobDesc),
					expIDList(row.ExpIDs),
					tile,
					row.Camword,
					statusCell(row.Status, colorize),
					queueID,
					strconv.Itoa(row.NSubmissions),
					strconv.Itoa(len(row.Dependencies)),
				})
			}

			fmt.Fprintf(out, "Table: %s\n", path)
			if len(rows) == 0 {
				fmt.Fprintln(out, "No rows")
				return nil
			}
			headers := []string{"#", "Job", "ExpIDs", "Tile", "Cameras", "Status", "Queue ID", "Subs", "Deps"}
			aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight}
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			fmt.Fprintln(out, countsLine(table.Counts()))
			return nil
		},
	}

	target.register(cmd)
	cmd.Flags().StringVarP(&statuses, "status", "s", "", "Only show rows in these comma separated statuses")
	return cmd
}

func parseStatusFilter(value string) (map[proctable.Status]bool, error) {
	filter := make(map[proctable.Status]bool)
	for _, raw := range strings.Split(value, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		status, ok := proctable.ParseStatus(raw)
		if !ok {
			return nil, fmt.Errorf("--status: unknown status %q", strings.TrimSpace(raw))
		}
		filter[status] = true
	}
	return filter, nil
}

func expIDList(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func countsLine(counts map[proctable.Status]int) string {
	var parts []string
	for _, status := range proctable.AllStatuses() {
		if n := counts[status]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", status, n))
		}
	}
	return strings.Join(parts, " ")
}
