package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperengineering/caseload/internal/types"
	"github.com/hyperengineering/caseload/internal/validation"
	"github.com/spf13/cobra"
)

var (
	listStatus   string
	listSearch   string
	listPage     int
	listPageSize int
)

var clientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List clients",
	Long:  "List live clients, newest first. --status takes one or more comma-separated statuses.",
	Args:  cobra.NoArgs,
	RunE:  runClientsList,
}

func init() {
	clientsListCmd.Flags().StringVar(&listStatus, "status", "",
		"Only clients with these statuses (comma-separated)")
	clientsListCmd.Flags().StringVar(&listSearch, "search", "",
		"Only clients whose child or guardian name, phone, or email contains this text")
	clientsListCmd.Flags().IntVar(&listPage, "page", 1, "Page number")
	clientsListCmd.Flags().IntVar(&listPageSize, "page-size", 50, "Clients per page")
}

func runClientsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	filter, err := parseListFilter(listStatus, listSearch, listPage, listPageSize)
	if err != nil {
		return err
	}

	b, _, err := resolveBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	list, err := b.ListClients(ctx, filter)
	if err != nil {
		return fmt.Errorf("list clients: %w", err)
	}

	if clientsJSONOutput {
		return printJSON(cmd.OutOrStdout(), list)
	}

	out := cmd.OutOrStdout()
	if len(list.Clients) == 0 {
		fmt.Fprintln(out, "No clients found.")
	} else {
		w := newTabWriter(out)
		fmt.Fprintln(w, "ID\tSTATUS\tCHILD\tGUARDIAN\tPHONE\tINSURANCE\tUPDATED")
		for _, c := range list.Clients {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				c.ID,
				c.Status,
				c.DisplayName(),
				orDash(c.PrimaryGuardianName),
				orDash(c.PrimaryGuardianPhone),
				orDash(c.PrimaryInsuranceName),
				c.UpdatedAt.Format("2006-01-02 15:04"),
			)
		}
		w.Flush()
	}

	fmt.Fprintf(out, "\nShowing %d of %d matching (%s)\n", len(list.Clients), list.Total, formatCounts(list.Counts))
	return nil
}

func parseListFilter(status, search string, page, pageSize int) (types.ListFilter, error) {
	filter := types.ListFilter{
		Search:   strings.TrimSpace(search),
		Page:     page,
		PageSize: pageSize,
	}
	for _, s := range strings.Split(status, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		st := types.ClientStatus(s)
		if err := validation.ValidateStatus("status", st); err != nil {
			return types.ListFilter{}, err
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	return filter, nil
}
