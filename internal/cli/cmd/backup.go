package cmd

import (
	"context"
	"fmt"

	"craftdeck/internal/cli/ui"
	"craftdeck/pkg/sdk"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage backups",
}

var backupComments string
var backupSnapshot bool

var backupCreateCmd = &cobra.Command{
	Use:   "create [serverId]",
	Short: "Create a backup",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		check("creating backup", handleBackupCreate(context.Background(), args[0], backupComments, backupSnapshot))
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list [serverId]",
	Short: "List backups",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) > 0 {
			check("listing backups", handleListBackups(context.Background(), args[0]))
		} else {
			check("listing backups", handleListAllBackups(context.Background()))
		}
	},
}

var backupInfoCmd = &cobra.Command{
	Use:   "info [backupId]",
	Short: "Show a backup",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		check("reading backup", handleBackupInfo(context.Background(), args[0]))
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete [backupId]",
	Short: "Delete a backup",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		check("deleting backup", handleDeleteBackup(context.Background(), args[0]))
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [serverId] [backupId]",
	Short: "Restore a backup into a stopped server",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		check("restoring backup", handleRestoreBackup(context.Background(), args[0], args[1]))
	},
}

var backupBrowseCmd = &cobra.Command{
	Use:   "browse [serverId]",
	Short: "Manage a server's backups interactively",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ui.RunBackups(Client, args[0], Profile)
	},
}

func init() {
	backupCreateCmd.Flags().StringVar(&backupComments, "comments", "", "Note stored with the backup")
	backupCreateCmd.Flags().BoolVar(&backupSnapshot, "snapshot", false, "Request an incremental snapshot")

	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupInfoCmd, backupDeleteCmd, backupRestoreCmd, backupBrowseCmd)
	RootCmd.AddCommand(backupCmd)
}

func waitBackupTask(ctx context.Context, w *sdk.TaskWaiter, task *sdk.BackupTask) error {
	ev, err := w.Wait(ctx, task.ID)
	if err != nil {
		return err
	}
	return taskOutcome(fmt.Sprintf("%s task %d", task.Type, task.ID), ev.Result)
}

func handleBackupCreate(ctx context.Context, serverID, comments string, snapshot bool) error {
	w, done := newWaiter(ctx)
	defer done()
	task, err := Client.CreateBackup(ctx, serverID, comments, snapshot)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Creating backup %s...\n", task.BackupID)
	if err := waitBackupTask(ctx, w, task); err != nil {
		return err
	}
	fmt.Fprintln(out, "Backup created successfully!")
	return nil
}

func handleListBackups(ctx context.Context, serverID string) error {
	backups, err := Client.ListServerBackups(ctx, serverID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Backups for %s:\n", serverID)
	for _, b := range backups {
		fmt.Fprintf(out, "- %s  %s  %s\n", b.ID, b.Created.Local().Format("2006-01-02 15:04"), backupSize(b))
	}
	return nil
}

func handleListAllBackups(ctx context.Context) error {
	ids, err := Client.ListBackupIDs(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Backups:")
	for _, id := range ids {
		fmt.Fprintf(out, "- %s (server %s)\n", id.ID, id.Server)
	}
	return nil
}

func handleBackupInfo(ctx context.Context, id string) error {
	b, err := Client.GetBackup(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "ID:       %s\n", b.ID)
	fmt.Fprintf(out, "Type:     %s\n", b.Type)
	fmt.Fprintf(out, "Source:   %s\n", b.Source)
	fmt.Fprintf(out, "Created:  %s\n", formatTime(&b.Created))
	fmt.Fprintf(out, "Files:    %d (%d failed)\n", b.TotalFiles, b.ErrorFiles)
	fmt.Fprintf(out, "Size:     %s\n", backupSize(*b))
	if b.Comments != nil {
		fmt.Fprintf(out, "Comments: %s\n", *b.Comments)
	}
	return nil
}

func backupSize(b sdk.Backup) string {
	if b.FinalSize != nil {
		return ui.FormatBytes(*b.FinalSize)
	}
	return ui.FormatBytes(b.TotalFilesSize)
}

func handleDeleteBackup(ctx context.Context, id string) error {
	if err := Client.RemoveBackup(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(out, "Backup deleted successfully.")
	return nil
}

func handleRestoreBackup(ctx context.Context, serverID, backupID string) error {
	w, done := newWaiter(ctx)
	defer done()
	task, err := Client.RestoreBackup(ctx, serverID, backupID)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Restoring backup...")
	if err := waitBackupTask(ctx, w, task); err != nil {
		return err
	}
	fmt.Fprintln(out, "Backup restored successfully.")
	return nil
}
