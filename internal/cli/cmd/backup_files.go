package cmd

import (
	"context"
	"fmt"
	"io"

	"craftdeck/internal/cli/ui"
	"craftdeck/pkg/sdk"

	"github.com/spf13/cobra"
)

var fileOpts sdk.BackupFileOptions
var backupOutput string

var backupTaskCmd = &cobra.Command{
	Use:   "task [serverId]",
	Short: "Show the backup task running for a server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		check("reading backup task", handleBackupTask(context.Background(), args[0]))
	},
}

var backupPreviewCmd = &cobra.Command{
	Use:   "preview [serverId]",
	Short: "Show what a new backup would contain",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		check("previewing backup", handleBackupPreview(context.Background(), args[0], fileOpts))
	},
}

var backupFilesCmd = &cobra.Command{
	Use:   "files [backupId]",
	Short: "List the files stored in a backup",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		check("listing backup files", handleBackupFiles(context.Background(), args[0], fileOpts))
	},
}

var backupCompareCmd = &cobra.Command{
	Use:   "compare [backupId] [targetId]",
	Short: "Compare two backups",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		check("comparing backups", handleCompare(context.Background(), func(ctx context.Context) (*sdk.BackupCompareResult, error) {
			return Client.CompareBackups(ctx, args[0], args[1], fileOpts)
		}))
	},
}

var backupDiffCmd = &cobra.Command{
	Use:   "diff [serverId] [backupId]",
	Short: "Compare a backup with the server's current files",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		check("comparing with server", handleCompare(context.Background(), func(ctx context.Context) (*sdk.BackupCompareResult, error) {
			return Client.CompareWithServer(ctx, args[0], args[1], fileOpts)
		}))
	},
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify [serverId] [backupId]",
	Short: "Check a backup's content against the server's files",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		check("verifying backup", handleCompare(context.Background(), func(ctx context.Context) (*sdk.BackupCompareResult, error) {
			return Client.VerifyBackup(ctx, args[0], args[1], fileOpts)
		}))
	},
}

var backupExportCmd = &cobra.Command{
	Use:   "export [backupId]",
	Short: "Download a backup archive",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		check("exporting backup", handleBackupExport(context.Background(), args[0], backupOutput))
	},
}

var backupCatCmd = &cobra.Command{
	Use:   "cat [serverId] [backupId] [path]",
	Short: "Download one file out of a backup",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		check("reading backup file", handleBackupCat(context.Background(), args[0], args[1], args[2], backupOutput))
	},
}

func init() {
	for _, c := range []*cobra.Command{backupPreviewCmd, backupFilesCmd, backupCompareCmd, backupDiffCmd, backupVerifyCmd} {
		c.Flags().BoolVar(&fileOpts.IncludeFiles, "files", false, "List every file")
		c.Flags().BoolVar(&fileOpts.IncludeErrors, "errors", false, "List files that could not be read")
		c.Flags().BoolVar(&fileOpts.CheckFiles, "check", false, "Compare file content instead of sizes and times")
	}
	for _, c := range []*cobra.Command{backupCompareCmd, backupDiffCmd, backupVerifyCmd} {
		c.Flags().BoolVar(&fileOpts.OnlyUpdates, "changed", false, "Only list changed files")
	}
	backupExportCmd.Flags().StringVarP(&backupOutput, "output", "o", "", "Local file to write")
	backupCatCmd.Flags().StringVarP(&backupOutput, "output", "o", "", "Local file to write")

	backupCmd.AddCommand(backupTaskCmd, backupPreviewCmd, backupFilesCmd, backupCompareCmd,
		backupDiffCmd, backupVerifyCmd, backupExportCmd, backupCatCmd)
}

func handleBackupTask(ctx context.Context, serverID string) error {
	task, err := Client.BackupTaskOf(ctx, serverID)
	if err != nil {
		return err
	}
	if task == nil {
		fmt.Fprintln(out, "No backup running.")
		return nil
	}
	progress := "-"
	if task.Progress != nil {
		progress = fmt.Sprintf("%.0f%%", *task.Progress)
	}
	fmt.Fprintf(out, "#%d %s %s %s\n", task.ID, task.Type, task.BackupID, progress)
	return nil
}

func printErrors(errs []sdk.BackupFileError) {
	for _, e := range errs {
		fmt.Fprintf(out, "! %s: %s\n", e.Path, deref(e.ErrorMessage))
	}
}

func printPaths(files []sdk.BackupFilePathInfo) {
	for _, f := range files {
		if f.IsDir {
			fmt.Fprintf(out, "  %s/\n", f.Path)
		} else {
			fmt.Fprintf(out, "  %s  %s\n", f.Path, ui.FormatBytes(f.Size))
		}
	}
}

func handleBackupPreview(ctx context.Context, serverID string, opts sdk.BackupFileOptions) error {
	res, err := Client.PreviewBackup(ctx, serverID, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Files:   %d (%s, %d unreadable)\n", res.TotalFiles, ui.FormatBytes(res.TotalFilesSize), res.ErrorFiles)
	if res.SnapshotSource != "" {
		fmt.Fprintf(out, "Changed: %d (%s) since %s\n", res.UpdateFiles, ui.FormatBytes(res.UpdateFilesSize), res.SnapshotSource)
	}
	printPaths(res.Files)
	printErrors(res.Errors)
	return nil
}

func handleBackupFiles(ctx context.Context, backupID string, opts sdk.BackupFileOptions) error {
	res, err := Client.BackupFiles(ctx, backupID, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Files:   %d (%s)\n", res.TotalFiles, ui.FormatBytes(res.TotalFilesSize))
	fmt.Fprintf(out, "Archive: %s\n", ui.FormatBytes(res.BackupFilesSize))
	printPaths(res.Files)
	printErrors(res.Errors)
	return nil
}

var statusMarks = map[sdk.SnapshotStatus]string{
	sdk.StatusCreate:   "+",
	sdk.StatusUpdate:   "~",
	sdk.StatusDelete:   "-",
	sdk.StatusNoChange: " ",
}

func handleCompare(ctx context.Context, call func(context.Context) (*sdk.BackupCompareResult, error)) error {
	res, err := call(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Backup:  %d files (%s)\n", res.TotalFiles, ui.FormatBytes(res.TotalFilesSize))
	fmt.Fprintf(out, "Target:  %d files (%s)\n", res.TargetTotalFiles, ui.FormatBytes(res.TargetTotalFilesSize))
	fmt.Fprintf(out, "Changed: %d (%s)\n", res.UpdateFiles, ui.FormatBytes(res.UpdateFilesSize))
	for _, f := range res.Files {
		fmt.Fprintf(out, "%s %s\n", statusMarks[f.Status], f.Path)
	}
	printErrors(res.Errors)
	printErrors(res.TargetErrors)
	return nil
}

func handleBackupExport(ctx context.Context, backupID, dest string) error {
	if dest == "" {
		dest = backupID + ".zip"
	}
	r, err := Client.ExportBackup(ctx, backupID)
	if err != nil {
		return err
	}
	return save(r, dest)
}

func handleBackupCat(ctx context.Context, serverID, backupID, p, dest string) error {
	r, err := Client.BackupFile(ctx, serverID, backupID, p)
	if err != nil {
		return err
	}
	if dest == "" {
		defer r.Close()
		_, err = io.Copy(out, r)
		return err
	}
	return save(r, dest)
}
