package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/hyperengineering/caseload/internal/reconcile"
	"github.com/hyperengineering/caseload/internal/types"
	"github.com/spf13/cobra"
)

var deleteForce bool

var clientsDeleteCmd = &cobra.Command{
	Use:   "delete <client-id>",
	Short: "Delete a client",
	Long:  "Soft-delete a client and print the updated counts. Requires --force or interactive confirmation.",
	Args:  cobra.ExactArgs(1),
	RunE:  runClientsDelete,
}

func init() {
	clientsDeleteCmd.Flags().BoolVar(&deleteForce, "force", false,
		"Skip confirmation prompt")
}

func runClientsDelete(cmd *cobra.Command, args []string) error {
	clientID := args[0]
	ctx := context.Background()

	b, _, err := resolveBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	page, err := b.ListClients(ctx, types.ListFilter{PageSize: 200})
	if err != nil {
		return fmt.Errorf("list clients: %w", err)
	}
	list := reconcile.FromClientList(b, page)

	// Interactive confirmation unless --force
	if !deleteForce {
		errOut := cmd.ErrOrStderr()
		fmt.Fprintf(errOut, "WARNING: This will delete client %q.\n", clientID)
		fmt.Fprint(errOut, "Type the client ID to confirm: ")

		reader := bufio.NewReader(cmd.InOrStdin())
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}

		if strings.TrimSpace(input) != clientID {
			fmt.Fprintln(errOut, "Aborted. Client ID did not match.")
			return nil
		}
	}

	removed, err := list.Delete(ctx, clientID)
	if err != nil {
		return err
	}
	counts := list.Counts()

	if clientsJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"id":      clientID,
			"deleted": true,
			"counts":  counts,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted client %q\n", clientID)
	if !removed {
		fmt.Fprintln(cmd.OutOrStdout(), "Client was not on the first page of the list; counts not adjusted.")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Remaining: %s\n", formatCounts(counts))
	return nil
}
