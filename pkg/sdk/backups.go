package sdk

import (
	"context"
	"io"
	"net/url"
	"strconv"
)

func (o BackupFileOptions) query() url.Values {
	q := url.Values{}
	set := func(key string, v bool) {
		if v {
			q.Set(key, "true")
		}
	}
	set("check_files", o.CheckFiles)
	set("include_files", o.IncludeFiles)
	set("include_errors", o.IncludeErrors)
	set("only_updates", o.OnlyUpdates)
	return q
}

func backupPath(id string, parts ...string) string {
	p := "/backup/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func (c *Client) ListBackupIDs(ctx context.Context) ([]BackupID, error) {
	var ids []BackupID
	err := c.get(ctx, "/backups", nil, &ids)
	return ids, err
}

func (c *Client) GetBackup(ctx context.Context, id string) (*Backup, error) {
	var b Backup
	if err := c.get(ctx, backupPath(id), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) ListServerBackups(ctx context.Context, serverID string) ([]Backup, error) {
	var backups []Backup
	err := c.get(ctx, serverPath(serverID, "backups"), nil, &backups)
	return backups, err
}

// CreateBackup starts a backup. The returned task completes through the
// file task stream like any other file operation.
func (c *Client) CreateBackup(ctx context.Context, serverID, comments string, snapshot bool) (*BackupTask, error) {
	query := url.Values{"snapshot": {strconv.FormatBool(snapshot)}}
	if comments != "" {
		query.Set("comments", comments)
	}
	var task BackupTask
	if err := c.post(ctx, serverPath(serverID, "backup"), query, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) RestoreBackup(ctx context.Context, serverID, backupID string) (*BackupTask, error) {
	var task BackupTask
	if err := c.post(ctx, serverPath(serverID, "backup", url.PathEscape(backupID), "restore"), nil, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) RemoveBackup(ctx context.Context, id string) error {
	return c.delete(ctx, backupPath(id), nil, nil)
}

// BackupTaskOf returns the server's running backup, or nil when none runs.
func (c *Client) BackupTaskOf(ctx context.Context, serverID string) (*BackupTask, error) {
	var task *BackupTask
	err := c.get(ctx, serverPath(serverID, "backup"), nil, &task)
	return task, err
}

// PreviewBackup describes the backup that would be made now. Updates are
// counted against the server's newest backup.
func (c *Client) PreviewBackup(ctx context.Context, serverID string, opts BackupFileOptions) (*BackupPreviewResult, error) {
	var res BackupPreviewResult
	if err := c.get(ctx, serverPath(serverID, "backup", "preview"), opts.query(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) BackupFiles(ctx context.Context, backupID string, opts BackupFileOptions) (*BackupFilesResult, error) {
	var res BackupFilesResult
	if err := c.get(ctx, backupPath(backupID, "files"), opts.query(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CompareBackups reports the changes from backupID to targetID.
func (c *Client) CompareBackups(ctx context.Context, backupID, targetID string, opts BackupFileOptions) (*BackupCompareResult, error) {
	q := opts.query()
	q.Set("target_backup_id", targetID)
	var res BackupCompareResult
	if err := c.get(ctx, backupPath(backupID, "files", "compare"), q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CompareWithServer reports the changes from the backup to the server's
// current files.
func (c *Client) CompareWithServer(ctx context.Context, serverID, backupID string, opts BackupFileOptions) (*BackupCompareResult, error) {
	var res BackupCompareResult
	if err := c.get(ctx, serverPath(serverID, "backup", url.PathEscape(backupID), "files", "compare"), opts.query(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// VerifyBackup reads the whole backup and compares it with the server's
// files by content.
func (c *Client) VerifyBackup(ctx context.Context, serverID, backupID string, opts BackupFileOptions) (*BackupCompareResult, error) {
	var res BackupCompareResult
	if err := c.post(ctx, serverPath(serverID, "backup", url.PathEscape(backupID), "verify"), opts.query(), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ExportBackup streams the backup archive. The caller closes it.
func (c *Client) ExportBackup(ctx context.Context, backupID string) (io.ReadCloser, error) {
	return c.download(ctx, backupPath(backupID, "export"), nil)
}

// BackupFile streams one file stored in the backup. The caller closes it.
func (c *Client) BackupFile(ctx context.Context, serverID, backupID, path string) (io.ReadCloser, error) {
	return c.download(ctx, serverPath(serverID, "backup", url.PathEscape(backupID), "file"), url.Values{"path": {path}})
}
