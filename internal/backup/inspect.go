package backup

import (
	"archive/zip"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"craftdeck/internal/domain"
	"craftdeck/pkg/sdk"

	"github.com/pkg/errors"
)

// entry is one path in a scanned file set.
type entry struct {
	info sdk.BackupFileInfo
	crc  uint32
}

// fileSet is a backup archive or a server directory, keyed by slash path.
type fileSet struct {
	entries map[string]entry
	errors  []sdk.BackupFileError
	// stored is what the set occupies on disk.
	stored int64
}

func (s *fileSet) fail(p string, kind sdk.BackupFileErrorType, err error) {
	msg := err.Error()
	s.errors = append(s.errors, sdk.BackupFileError{Path: p, ErrorType: kind, ErrorMessage: &msg})
}

func (s *fileSet) totals() (files int, size int64) {
	for _, e := range s.entries {
		if !e.info.IsDir {
			files++
			size += e.info.Size
		}
	}
	return files, size
}

func (s *fileSet) paths() []string {
	out := make([]string, 0, len(s.entries))
	for p := range s.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *fileSet) list(only func(string) bool) []sdk.BackupFilePathInfo {
	out := []sdk.BackupFilePathInfo{}
	for _, p := range s.paths() {
		if only != nil && !only(p) {
			continue
		}
		e := s.entries[p]
		out = append(out, sdk.BackupFilePathInfo{Path: p, IsDir: e.info.IsDir, Size: e.info.Size, ModifyTime: e.info.ModifyTime})
	}
	return out
}

// zip keeps whole seconds
func modTime(t time.Time) time.Time {
	return t.Truncate(time.Second).UTC()
}

// scanArchive reads the backup's entries. With check every file is read
// so that broken entries show up as errors.
func scanArchive(archive string, check bool) (*fileSet, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrInvalidBackup, "%s: %v", archive, err)
	}
	defer r.Close()

	set := &fileSet{entries: make(map[string]entry)}
	if info, err := os.Stat(archive); err == nil {
		set.stored = info.Size()
	}
	for _, f := range r.File {
		name := strings.TrimSuffix(f.Name, "/")
		fi := f.FileInfo()
		set.entries[name] = entry{
			info: sdk.BackupFileInfo{Size: int64(f.UncompressedSize64), ModifyTime: modTime(f.Modified), IsDir: fi.IsDir()},
			crc:  f.CRC32,
		}
		if check && !fi.IsDir() {
			if err := readEntry(f); err != nil {
				set.fail(name, sdk.BackupErrorScan, err)
			}
		}
	}
	return set, nil
}

// readEntry reads f to the end, which makes the zip reader verify its
// checksum.
func readEntry(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

// scanDirectory walks root. With check every file is read and its
// checksum kept for content comparison.
func scanDirectory(root string, check bool) *fileSet {
	set := &fileSet{entries: make(map[string]entry)}
	filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		rel, _ := filepath.Rel(root, p)
		name := filepath.ToSlash(rel)
		if err != nil {
			set.fail(name, sdk.BackupErrorScan, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if name == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			set.fail(name, sdk.BackupErrorScan, err)
			return nil
		}
		e := entry{info: sdk.BackupFileInfo{ModifyTime: modTime(info.ModTime()), IsDir: d.IsDir()}}
		if !d.IsDir() {
			e.info.Size = info.Size()
			if check {
				crc, err := fileCRC(p)
				if err != nil {
					set.fail(name, sdk.BackupErrorScan, err)
				}
				e.crc = crc
			}
		}
		set.entries[name] = e
		return nil
	})
	_, set.stored = set.totals()
	return set
}

func fileCRC(p string) (uint32, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}

// compare reports how every path changed from old to new. byContent
// decides file updates by checksum instead of size and time.
func compare(from, to *fileSet, byContent bool) []sdk.BackupFileDifference {
	seen := make(map[string]bool)
	var diffs []sdk.BackupFileDifference
	add := func(p string) {
		if seen[p] {
			return
		}
		seen[p] = true
		d := sdk.BackupFileDifference{Path: p}
		o, inOld := from.entries[p]
		n, inNew := to.entries[p]
		if inOld {
			info := o.info
			d.OldInfo = &info
		}
		if inNew {
			info := n.info
			d.NewInfo = &info
		}
		switch {
		case !inOld:
			d.Status = sdk.StatusCreate
		case !inNew:
			d.Status = sdk.StatusDelete
		case changed(o, n, byContent):
			d.Status = sdk.StatusUpdate
		default:
			d.Status = sdk.StatusNoChange
		}
		diffs = append(diffs, d)
	}
	for _, p := range from.paths() {
		add(p)
	}
	for _, p := range to.paths() {
		add(p)
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Path < diffs[j].Path })
	return diffs
}

func changed(o, n entry, byContent bool) bool {
	if o.info.IsDir != n.info.IsDir {
		return true
	}
	if o.info.IsDir {
		return false
	}
	if o.info.Size != n.info.Size {
		return true
	}
	if byContent {
		return o.crc != n.crc
	}
	return !o.info.ModifyTime.Equal(n.info.ModifyTime)
}

func compareResult(from, to *fileSet, byContent bool, opts sdk.BackupFileOptions) *sdk.BackupCompareResult {
	res := &sdk.BackupCompareResult{
		ErrorFiles:            len(from.errors),
		BackupFilesSize:       from.stored,
		TargetErrorFiles:      len(to.errors),
		TargetBackupFilesSize: to.stored,
	}
	res.TotalFiles, res.TotalFilesSize = from.totals()
	res.TargetTotalFiles, res.TargetTotalFilesSize = to.totals()

	diffs := compare(from, to, byContent)
	files := []sdk.BackupFileDifference{}
	for _, d := range diffs {
		updated := d.Status != sdk.StatusNoChange
		if updated {
			res.UpdateFiles++
			if d.NewInfo != nil && !d.NewInfo.IsDir {
				res.UpdateFilesSize += d.NewInfo.Size
			}
		}
		if opts.IncludeFiles && (updated || !opts.OnlyUpdates) {
			files = append(files, d)
		}
	}
	if opts.IncludeFiles {
		res.Files = files
	}
	if opts.IncludeErrors {
		res.Errors = orEmpty(from.errors)
		res.TargetErrors = orEmpty(to.errors)
	}
	return res
}

func orEmpty(errs []sdk.BackupFileError) []sdk.BackupFileError {
	if errs == nil {
		return []sdk.BackupFileError{}
	}
	return errs
}

func (m *Manager) archive(backupID string) (*domain.Backup, error) {
	b, err := m.GetBackup(backupID)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(b.Path); err != nil {
		return nil, errors.Wrapf(domain.ErrInvalidBackup, "%s: %v", b.Path, err)
	}
	return b, nil
}

// serverBackup loads a backup that has to belong to serverID.
func (m *Manager) serverBackup(serverID, backupID string) (*domain.Server, *domain.Backup, error) {
	srv, err := m.Servers.GetServer(serverID)
	if err != nil {
		return nil, nil, err
	}
	b, err := m.archive(backupID)
	if err != nil {
		return nil, nil, err
	}
	if b.ServerID != serverID {
		return nil, nil, errors.Wrapf(domain.ErrBackupNotFound, "%s belongs to %s", backupID, b.ServerID)
	}
	return srv, b, nil
}

// Files lists what the backup holds.
func (m *Manager) Files(backupID string, opts sdk.BackupFileOptions) (*sdk.BackupFilesResult, error) {
	b, err := m.archive(backupID)
	if err != nil {
		return nil, err
	}
	set, err := scanArchive(b.Path, opts.CheckFiles)
	if err != nil {
		return nil, err
	}
	res := &sdk.BackupFilesResult{ErrorFiles: len(set.errors), BackupFilesSize: set.stored}
	res.TotalFiles, res.TotalFilesSize = set.totals()
	if opts.IncludeFiles {
		res.Files = set.list(nil)
	}
	if opts.IncludeErrors {
		res.Errors = orEmpty(set.errors)
	}
	return res, nil
}

// Preview describes a backup of the server made now, with updates counted
// against its newest backup.
func (m *Manager) Preview(serverID string, opts sdk.BackupFileOptions) (*sdk.BackupPreviewResult, error) {
	srv, err := m.Servers.GetServer(serverID)
	if err != nil {
		return nil, err
	}
	current := scanDirectory(srv.Directory, opts.CheckFiles)
	previous := &fileSet{entries: make(map[string]entry)}
	res := &sdk.BackupPreviewResult{ErrorFiles: len(current.errors)}

	if latest, err := m.latest(serverID); err != nil {
		return nil, err
	} else if latest != nil {
		if set, err := scanArchive(latest.Path, false); err == nil {
			previous = set
			res.SnapshotSource = latest.ID
		}
	}

	res.TotalFiles, res.TotalFilesSize = current.totals()
	res.BackupFilesSize = res.TotalFilesSize
	updated := make(map[string]bool)
	for _, d := range compare(previous, current, false) {
		if d.Status == sdk.StatusCreate || d.Status == sdk.StatusUpdate {
			updated[d.Path] = true
			if !d.NewInfo.IsDir {
				res.UpdateFiles++
				res.UpdateFilesSize += d.NewInfo.Size
			}
		}
	}
	if opts.IncludeFiles {
		var only func(string) bool
		if opts.OnlyUpdates {
			only = func(p string) bool { return updated[p] }
		}
		res.Files = current.list(only)
	}
	if opts.IncludeErrors {
		res.Errors = orEmpty(current.errors)
	}
	return res, nil
}

func (m *Manager) latest(serverID string) (*domain.Backup, error) {
	backups, err := m.Store.ListServerBackups(serverID)
	if err != nil {
		return nil, err
	}
	var newest *domain.Backup
	for i := range backups {
		if newest == nil || backups[i].Created.After(newest.Created) {
			newest = &backups[i]
		}
	}
	return newest, nil
}

// Compare reports the changes from one backup to a target backup.
func (m *Manager) Compare(backupID, targetID string, opts sdk.BackupFileOptions) (*sdk.BackupCompareResult, error) {
	b, err := m.archive(backupID)
	if err != nil {
		return nil, err
	}
	target, err := m.archive(targetID)
	if err != nil {
		return nil, err
	}
	from, err := scanArchive(b.Path, opts.CheckFiles)
	if err != nil {
		return nil, err
	}
	to, err := scanArchive(target.Path, opts.CheckFiles)
	if err != nil {
		return nil, err
	}
	return compareResult(from, to, opts.CheckFiles, opts), nil
}

// CompareWithServer reports the changes from the backup to the server's
// current files.
func (m *Manager) CompareWithServer(serverID, backupID string, opts sdk.BackupFileOptions) (*sdk.BackupCompareResult, error) {
	srv, b, err := m.serverBackup(serverID, backupID)
	if err != nil {
		return nil, err
	}
	from, err := scanArchive(b.Path, opts.CheckFiles)
	if err != nil {
		return nil, err
	}
	return compareResult(from, scanDirectory(srv.Directory, opts.CheckFiles), opts.CheckFiles, opts), nil
}

// Verify reads the whole backup and compares its content with the
// server's files by checksum.
func (m *Manager) Verify(serverID, backupID string, opts sdk.BackupFileOptions) (*sdk.BackupCompareResult, error) {
	opts.CheckFiles = true
	return m.CompareWithServer(serverID, backupID, opts)
}

// OpenFile opens one file stored in the backup. The caller closes both the
// reader and the archive through the returned closer.
func (m *Manager) OpenFile(serverID, backupID, p string) (io.ReadCloser, sdk.BackupFileInfo, error) {
	_, b, err := m.serverBackup(serverID, backupID)
	if err != nil {
		return nil, sdk.BackupFileInfo{}, err
	}
	name := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(p)), "/")

	r, err := zip.OpenReader(b.Path)
	if err != nil {
		return nil, sdk.BackupFileInfo{}, errors.Wrapf(domain.ErrInvalidBackup, "%s: %v", b.Path, err)
	}
	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		if f.FileInfo().IsDir() {
			r.Close()
			return nil, sdk.BackupFileInfo{}, errors.Wrap(domain.ErrNotFile, p)
		}
		rc, err := f.Open()
		if err != nil {
			r.Close()
			return nil, sdk.BackupFileInfo{}, err
		}
		info := sdk.BackupFileInfo{Size: int64(f.UncompressedSize64), ModifyTime: modTime(f.Modified)}
		return &entryReader{ReadCloser: rc, archive: r}, info, nil
	}
	r.Close()
	return nil, sdk.BackupFileInfo{}, errors.Wrap(domain.ErrPathNotFound, p)
}

type entryReader struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (e *entryReader) Close() error {
	err := e.ReadCloser.Close()
	if cerr := e.archive.Close(); err == nil {
		err = cerr
	}
	return err
}

// Export opens the backup archive for download.
func (m *Manager) Export(backupID string) (*os.File, *domain.Backup, error) {
	b, err := m.archive(backupID)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(b.Path)
	if err != nil {
		return nil, nil, err
	}
	return f, b, nil
}
