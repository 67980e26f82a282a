package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var fullSync bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass against the remote vault",
	Long: `Run one sync pass for a user and print the counts.

By default the pass is incremental from the last sync marker. Use --full to
fetch the whole vault.`,
	RunE: runSync,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List mirrored credentials without passwords",
	RunE:  runList,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the remote audit trail",
	RunE:  runAudit,
}

func init() {
	syncCmd.Flags().BoolVar(&fullSync, "full", false, "fetch the whole vault instead of changes since the last sync")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(auditCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	userID, err := a.userID()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if fullSync {
		result, err := a.sync.SyncAll(ctx, userID)
		if err != nil {
			return fmt.Errorf("full sync: %w", err)
		}
		if jsonOutput {
			return writeJSON(out, map[string]any{
				"mode":     "full",
				"inserted": result.Inserted,
				"total":    result.Total,
				"skipped":  result.Skipped,
			})
		}
		fmt.Fprintf(out, "Full sync: %d of %d stored, %d skipped\n", result.Inserted, result.Total, result.Skipped)
		return nil
	}

	result, err := a.sync.SyncIncremental(ctx, userID)
	if err != nil {
		return fmt.Errorf("incremental sync: %w", err)
	}
	if jsonOutput {
		return writeJSON(out, map[string]any{
			"mode":      "incremental",
			"synced":    result.Synced,
			"last_sync": result.LastSync.UTC().Format(time.RFC3339Nano),
		})
	}
	fmt.Fprintf(out, "Incremental sync: %d changed since %s\n", result.Synced, result.LastSync.Local().Format(time.DateTime))
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	userID, err := a.userID()
	if err != nil {
		return err
	}

	creds, err := a.credentials.List(ctx, userID)
	if err != nil {
		return fmt.Errorf("list credentials: %w", err)
	}

	out := cmd.OutOrStdout()

	if jsonOutput {
		type row struct {
			ID        int64  `json:"id"`
			Website   string `json:"website"`
			Username  string `json:"username"`
			UpdatedAt string `json:"updated_at"`
		}
		rows := make([]row, 0, len(creds))
		for _, c := range creds {
			rows = append(rows, row{
				ID:        c.ID,
				Website:   c.Website,
				Username:  c.Username,
				UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}
		return writeJSON(out, rows)
	}

	if len(creds) == 0 {
		fmt.Fprintln(out, "No credentials.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWEBSITE\tUSERNAME\tUPDATED")
	for _, c := range creds {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.ID, c.Website, c.Username, c.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func runAudit(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	userID, err := a.userID()
	if err != nil {
		return err
	}

	list, err := a.audit.List(ctx, userID)
	if err != nil {
		return fmt.Errorf("list audit trail: %w", err)
	}

	out := cmd.OutOrStdout()

	if jsonOutput {
		type row struct {
			ID           int64  `json:"id"`
			ActivityName string `json:"activity_name"`
			CredentialID *int64 `json:"credential_id,omitempty"`
			CreatedAt    string `json:"created_at"`
		}
		rows := make([]row, 0, len(list.Entries))
		for _, e := range list.Entries {
			rows = append(rows, row{
				ID:           e.ID,
				ActivityName: e.ActivityName,
				CredentialID: e.CredentialID,
				CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		return writeJSON(out, rows)
	}

	if len(list.Entries) == 0 {
		fmt.Fprintln(out, "No audit entries.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tACTIVITY\tCREDENTIAL")
	for _, e := range list.Entries {
		cred := "-"
		if e.CredentialID != nil {
			cred = fmt.Sprintf("%d", *e.CredentialID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.CreatedAt.Local().Format(time.DateTime), e.ActivityName, cred)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
