package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/caseload/internal/config"
	"github.com/hyperengineering/caseload/internal/snapshot"
	"github.com/hyperengineering/caseload/internal/store"
	"github.com/hyperengineering/caseload/internal/worker"
	"github.com/spf13/cobra"
)

var (
	snapshotDBPath string
	snapshotDir    string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage database snapshots",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Write a snapshot now and upload it if storage is configured",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotCreate,
}

var snapshotURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print a presigned download URL for the latest uploaded snapshot",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotURL,
}

func init() {
	snapshotCreateCmd.Flags().StringVar(&snapshotDBPath, "db", "",
		"Database path (overrides config and CASELOAD_DB_PATH)")
	snapshotCreateCmd.Flags().StringVar(&snapshotDir, "dir", "",
		"Snapshot directory (overrides config and CASELOAD_SNAPSHOT_DIR)")

	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotURLCmd)
}

func runSnapshotCreate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadLocal()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dbPath := snapshotDBPath
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}
	dir := snapshotDir
	if dir == "" {
		dir = cfg.Worker.SnapshotDir
	}

	uploader, err := snapshot.NewUploader(cfg.SnapshotStorage)
	if err != nil {
		return err
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	w := worker.NewSnapshotWorker(s, uploader, dir, time.Duration(cfg.Worker.SnapshotInterval))
	if !w.RunOnce(context.Background()) {
		return errors.New("snapshot failed")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Snapshot written to %s\n", w.Path())
	return nil
}

func runSnapshotURL(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadLocal()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	uploader, err := snapshot.NewUploader(cfg.SnapshotStorage)
	if err != nil {
		return err
	}

	url, expires, err := uploader.PresignedURL(context.Background(), snapshot.CurrentName)
	if errors.Is(err, snapshot.ErrNotConfigured) {
		return errors.New("snapshot storage is not configured (set CASELOAD_SNAPSHOT_BUCKET)")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), url)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
	return nil
}
