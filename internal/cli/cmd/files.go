package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"craftdeck/internal/cli/ui"
	"craftdeck/pkg/sdk"
	"craftdeck/pkg/sdk/events"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Browse and change server files",
}

var filesLsCmd = &cobra.Command{
	Use:   "ls [server] [path]",
	Short: "List a directory",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		check("listing files", handleLs(context.Background(), args[0], argOr(args, 1, "/")))
	},
}

var filesInfoCmd = &cobra.Command{
	Use:   "info [server] [path]",
	Short: "Describe one path",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		check("reading file info", handleFileInfo(context.Background(), args[0], args[1]))
	},
}

var filesCpCmd = &cobra.Command{
	Use:   "cp [server] [path] [target-dir]",
	Short: "Copy a file or directory into target-dir",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		check("copying", runOp(args[0], args[1], func(ctx context.Context, e sdk.Entry) (*sdk.FileOperationResult, error) {
			return e.Meta().Copy(ctx, args[2])
		}))
	},
}

var filesMvCmd = &cobra.Command{
	Use:   "mv [server] [path] [target-dir]",
	Short: "Move a file or directory into target-dir",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		check("moving", runOp(args[0], args[1], func(ctx context.Context, e sdk.Entry) (*sdk.FileOperationResult, error) {
			return e.Meta().Move(ctx, args[2])
		}))
	},
}

var filesRenameCmd = &cobra.Command{
	Use:   "rename [server] [path] [new-name]",
	Short: "Rename a file or directory in place",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		check("renaming", runOp(args[0], args[1], func(ctx context.Context, e sdk.Entry) (*sdk.FileOperationResult, error) {
			return e.Meta().Rename(ctx, args[2])
		}))
	},
}

var filesRmCmd = &cobra.Command{
	Use:   "rm [server] [path]",
	Short: "Remove a file or directory",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		check("removing", runOp(args[0], args[1], func(ctx context.Context, e sdk.Entry) (*sdk.FileOperationResult, error) {
			return e.Meta().Remove(ctx)
		}))
	},
}

var mkdirParents bool

var filesMkdirCmd = &cobra.Command{
	Use:   "mkdir [server] [path]",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		check("creating directory", handleMkdir(context.Background(), args[0], args[1], mkdirParents))
	},
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload [server] [local-file] [target-dir]",
	Short: "Upload a local file",
	Args:  cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		check("uploading", handleUpload(context.Background(), args[0], args[1], argOr(args, 2, "/")))
	},
}

var downloadOutput string

var filesDownloadCmd = &cobra.Command{
	Use:   "download [server] [path]",
	Short: "Download a file",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		check("downloading", handleDownload(context.Background(), args[0], args[1], downloadOutput))
	},
}

var extractPassword string

var filesExtractCmd = &cobra.Command{
	Use:   "extract [server] [archive] [output-dir]",
	Short: "Unpack an archive",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		check("extracting", runOp(args[0], args[1], func(ctx context.Context, e sdk.Entry) (*sdk.FileOperationResult, error) {
			f, ok := e.(*sdk.File)
			if !ok {
				return nil, errors.Wrap(sdk.ErrNotArchive, args[1])
			}
			return f.Extract(ctx, args[2], extractPassword)
		}))
	},
}

var archiveRoot string

var filesArchiveCmd = &cobra.Command{
	Use:   "archive [server] [archive-path] [paths...]",
	Short: "Pack paths into a zip archive",
	Args:  cobra.MinimumNArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		check("archiving", handleArchive(context.Background(), args[0], args[1], archiveRoot, args[2:]))
	},
}

var filesTasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List running file tasks",
	Run: func(cmd *cobra.Command, args []string) {
		check("listing tasks", handleTasks(context.Background()))
	},
}

var filesStorageCmd = &cobra.Command{
	Use:   "storage [server]",
	Short: "Show disk usage",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		check("reading storage info", handleStorage(context.Background(), argOr(args, 0, "")))
	},
}

var filesBrowseCmd = &cobra.Command{
	Use:   "browse [server]",
	Short: "Browse server files interactively",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ui.RunFiles(Client, args[0], Profile)
	},
}

func init() {
	filesMkdirCmd.Flags().BoolVarP(&mkdirParents, "parents", "p", false, "Create missing parents")
	filesDownloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "Local destination, defaults to the file name")
	filesExtractCmd.Flags().StringVar(&extractPassword, "password", "", "Archive password")
	filesArchiveCmd.Flags().StringVar(&archiveRoot, "root", "/", "Directory archive entries are relative to")

	filesCmd.AddCommand(
		filesLsCmd, filesInfoCmd, filesCpCmd, filesMvCmd, filesRenameCmd, filesRmCmd,
		filesMkdirCmd, filesUploadCmd, filesDownloadCmd, filesExtractCmd, filesArchiveCmd,
		filesTasksCmd, filesStorageCmd, filesBrowseCmd,
	)
	RootCmd.AddCommand(filesCmd)
}

func argOr(args []string, i int, def string) string {
	if len(args) > i {
		return args[i]
	}
	return def
}

func handleLs(ctx context.Context, serverID, dir string) error {
	d, err := Client.Files().Get(ctx, serverID, dir)
	if err != nil {
		return err
	}
	children, err := d.Children(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s:\n", d.Path())
	for _, e := range children {
		fmt.Fprintln(out, formatEntry(e))
	}
	return nil
}

func formatEntry(e sdk.Entry) string {
	n := e.Meta()
	modified := formatTime(n.ModifiedAt)
	switch v := e.(type) {
	case *sdk.Directory:
		return fmt.Sprintf("d %10s  %s  %s/", "-", modified, n.Name)
	case *sdk.File:
		return fmt.Sprintf("- %10s  %s  %s", ui.FormatBytes(v.Size), modified, n.Name)
	}
	return n.Name
}

func handleFileInfo(ctx context.Context, serverID, p string) error {
	e, err := Client.Files().GetInfo(ctx, serverID, p)
	if err != nil {
		return err
	}
	n := e.Meta()
	fmt.Fprintf(out, "Path:     %s\n", n.Path())
	fmt.Fprintf(out, "Modified: %s\n", formatTime(n.ModifiedAt))
	switch v := e.(type) {
	case *sdk.Directory:
		fmt.Fprintln(out, "Kind:     directory")
		if v.IsServerDir {
			fmt.Fprintf(out, "Server:   %s\n", v.RegisteredServerID)
		}
	case *sdk.File:
		fmt.Fprintf(out, "Kind:     %s file\n", v.Type)
		fmt.Fprintf(out, "Size:     %s\n", ui.FormatBytes(v.Size))
	}
	return nil
}

// runOp applies op to the entry at p and waits for the task it may start.
func runOp(serverID, p string, op func(context.Context, sdk.Entry) (*sdk.FileOperationResult, error)) error {
	ctx := context.Background()
	e, err := Client.Files().GetInfo(ctx, serverID, p)
	if err != nil {
		return err
	}
	return track(ctx, func() (*sdk.FileOperationResult, error) { return op(ctx, e) })
}

// track listens for task ends before issuing op, so a task that ends
// before the response arrives is still seen.
func track(ctx context.Context, op func() (*sdk.FileOperationResult, error)) error {
	w, done := newWaiter(ctx)
	defer done()
	res, err := op()
	if err != nil {
		return err
	}
	return finish(ctx, w, res)
}

func finish(ctx context.Context, w *sdk.TaskWaiter, res *sdk.FileOperationResult) error {
	result := res.Result
	if res.Pending() {
		fmt.Fprintln(out, "Task started, waiting for it to finish...")
		var err error
		if result, err = w.Await(ctx, res); err != nil {
			return err
		}
	}
	if err := taskOutcome("the operation", result); err != nil {
		return err
	}
	if res.File != nil {
		fmt.Fprintf(out, "Done: %s\n", path.Join(res.File.Path, res.File.Name))
	} else {
		fmt.Fprintln(out, "Done.")
	}
	return nil
}

// taskOutcome maps a task result to an error. An empty result means the task
// ended without its outcome being seen.
func taskOutcome(what string, result events.TaskResult) error {
	switch result {
	case events.ResultSuccess:
		return nil
	case events.ResultFailed:
		return errors.Errorf("%s failed", what)
	}
	return errors.Errorf("%s ended but its outcome is unknown, check the target before retrying", what)
}

func handleMkdir(ctx context.Context, serverID, p string, parents bool) error {
	fm := Client.Files()
	p = path.Clean("/" + p)
	parent := path.Dir(p)
	name := path.Base(p)
	if parents {
		parent = "/"
		name = strings.TrimPrefix(p, "/")
	}

	e, err := fm.GetInfo(ctx, serverID, parent)
	if err != nil {
		return err
	}
	d, ok := e.(*sdk.Directory)
	if !ok {
		return errors.Errorf("%s is not a directory", parent)
	}
	return track(ctx, func() (*sdk.FileOperationResult, error) {
		if parents {
			return d.MkdirAll(ctx, name)
		}
		return d.Mkdir(ctx, name)
	})
}

func handleUpload(ctx context.Context, serverID, local, dir string) error {
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()

	e, err := Client.Files().GetInfo(ctx, serverID, dir)
	if err != nil {
		return err
	}
	d, ok := e.(*sdk.Directory)
	if !ok {
		return errors.Errorf("%s is not a directory", dir)
	}
	return track(ctx, func() (*sdk.FileOperationResult, error) {
		return d.UploadFile(ctx, filepath.Base(local), f)
	})
}

func handleDownload(ctx context.Context, serverID, p, dest string) error {
	e, err := Client.Files().GetInfo(ctx, serverID, p)
	if err != nil {
		return err
	}
	f, ok := e.(*sdk.File)
	if !ok {
		return errors.Errorf("%s is a directory", p)
	}
	if dest == "" {
		dest = f.Name
	}

	r, err := f.Data(ctx)
	if err != nil {
		return err
	}
	return save(r, dest)
}

// save copies r into the local file dest and closes r.
func save(r io.ReadCloser, dest string) error {
	defer r.Close()
	w, err := os.Create(dest)
	if err != nil {
		return err
	}
	n, err := io.Copy(w, r)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved %s (%s)\n", dest, ui.FormatBytes(n))
	return nil
}

func handleArchive(ctx context.Context, serverID, archivePath, root string, paths []string) error {
	fm := Client.Files()
	selection := make(sdk.FileList, 0, len(paths))
	for _, p := range paths {
		e, err := fm.GetInfo(ctx, serverID, p)
		if err != nil {
			return err
		}
		selection = append(selection, e)
	}
	archivePath = path.Clean("/" + archivePath)
	return track(ctx, func() (*sdk.FileOperationResult, error) {
		return selection.CreateArchive(ctx, path.Base(archivePath), path.Dir(archivePath), root)
	})
}

func handleTasks(ctx context.Context) error {
	tasks, err := Client.Files().Tasks(ctx)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks.")
		return nil
	}
	for _, t := range tasks {
		status := string(t.Result)
		if t.Result == events.ResultPending && t.Progress != nil {
			status = fmt.Sprintf("%.0f%%", *t.Progress)
		}
		fmt.Fprintf(out, "#%d %s %s %s -> %s [%s]\n", t.ID, t.Type, deref(t.Server), deref(t.Src), deref(t.Dst), status)
	}
	return nil
}

func handleStorage(ctx context.Context, serverID string) error {
	info, err := Client.Files().StorageInfo(ctx, serverID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Used:  %s\n", ui.FormatBytes(info.UsedSize))
	fmt.Fprintf(out, "Free:  %s\n", ui.FormatBytes(info.FreeSize))
	fmt.Fprintf(out, "Total: %s\n", ui.FormatBytes(info.TotalSize))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
