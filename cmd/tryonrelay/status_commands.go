package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tryonrelay/internal/api"
	"tryonrelay/internal/reqid"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show whether a try-on result is ready",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := reqid.Parse(strings.TrimSpace(args[0]))
			if !ok {
				return fmt.Errorf("invalid request id %q: expected %d-%d digits", args[0], reqid.MinDigits, reqid.MaxDigits)
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			st, err := client.Status(cmd.Context(), id.String())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, st)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Request:   %s\n", id)
			fmt.Fprintf(out, "Ready:     %s\n", yesNo(st.Ready))
			if st.Ready {
				fmt.Fprintf(out, "Result:    %s\n", st.URL)
				if st.ResolvedAt != "" {
					fmt.Fprintf(out, "Resolved:  %s\n", st.ResolvedAt)
				}
				if st.Revisions > 1 {
					fmt.Fprintf(out, "Revisions: %d\n", st.Revisions)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw status response")
	return cmd
}

func newRequestsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List recently dispatched requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			items, err := client.Requests(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No requests recorded")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRequests(items, stdoutIsTerminal(cmd)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of requests to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

func renderRequests(items []api.RequestRecord, color bool) string {
	columns := []column{
		{title: "ID"},
		{title: "Created"},
		{title: "Requester"},
		{title: "Product"},
		{title: "Enrichment"},
		{title: "Replies", right: true},
		{title: "Resolved"},
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		enrichment := item.Enrichment
		if item.EnrichmentDetail != "" {
			enrichment += " (" + truncate(item.EnrichmentDetail, 32) + ")"
		}
		rows = append(rows, []string{
			item.ID,
			shortTime(item.CreatedAt),
			item.RequesterName,
			item.ProductLabel,
			enrichment,
			strconv.Itoa(item.Replies),
			shortTime(item.ResolvedAt),
		})
	}
	return renderTable(columns, rows, color)
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the daemon is answering",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			h, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:             %s\n", h.Status)
			fmt.Fprintf(out, "Ledger:             %s\n", yesNo(h.Ledger))
			fmt.Fprintf(out, "Events:             %s\n", yesNo(h.Events))
			fmt.Fprintf(out, "Queued enrichment:  %d\n", h.Pending)
			return nil
		},
	}
}

// shortTime trims an API timestamp to minute precision for table output.
func shortTime(value string) string {
	if len(value) >= 16 {
		return strings.Replace(value[:16], "T", " ", 1)
	}
	if value == "" {
		return "-"
	}
	return value
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
