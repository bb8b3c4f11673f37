package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"craftdeck/internal/domain"
	"craftdeck/internal/tasks"
	"craftdeck/pkg/sdk"

	"github.com/shirou/gopsutil/v3/disk"
)

// target is a request path resolved inside a server's directory. Clean is
// slash-rooted and relative to the server directory.
type target struct {
	serverID string
	root     string
	clean    string
	full     string
}

func (t target) isRoot() bool { return t.clean == "/" }

func (m *Manager) resolve(serverID, requestPath string) (target, error) {
	srv, err := m.GetServer(serverID)
	if err != nil {
		return target{}, err
	}

	root := filepath.Clean(srv.Directory)
	clean := path.Clean("/" + strings.ReplaceAll(requestPath, "\\", "/"))
	full := filepath.Join(root, filepath.FromSlash(clean))

	if rel, err := filepath.Rel(root, full); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return target{}, fmt.Errorf("%s: %w", requestPath, domain.ErrPathNotAllowed)
	}
	return target{serverID: serverID, root: root, clean: clean, full: full}, nil
}

func (m *Manager) describe(t target, info os.FileInfo) sdk.FileInfo {
	mod := float64(info.ModTime().UnixNano()) / 1e9
	fi := sdk.FileInfo{
		Name:       path.Base(t.clean),
		Path:       path.Dir(t.clean),
		IsDir:      info.IsDir(),
		ModifyTime: &mod,
	}
	if !info.IsDir() {
		fi.Size = info.Size()
	}
	if t.isRoot() {
		id := t.serverID
		fi.Name = ""
		fi.IsServerDir = true
		fi.RegisteredServerID = &id
	}
	return fi
}

func statTarget(t target) (os.FileInfo, error) {
	info, err := os.Stat(t.full)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", t.clean, domain.ErrPathNotFound)
	}
	return info, err
}

func (m *Manager) Stat(serverID, p string) (sdk.FileInfo, error) {
	t, err := m.resolve(serverID, p)
	if err != nil {
		return sdk.FileInfo{}, err
	}
	info, err := statTarget(t)
	if err != nil {
		return sdk.FileInfo{}, err
	}
	return m.describe(t, info), nil
}

// Listing is one directory and its immediate children, directories first.
type Listing struct {
	Name     string         `json:"name"`
	Path     string         `json:"path"`
	Info     *sdk.FileInfo  `json:"info"`
	Children []sdk.FileInfo `json:"children"`
}

func (m *Manager) ListFiles(serverID, p string) (*Listing, error) {
	t, err := m.resolve(serverID, p)
	if err != nil {
		return nil, err
	}
	info, err := statTarget(t)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", t.clean, domain.ErrNotDirectory)
	}

	entries, err := os.ReadDir(t.full)
	if err != nil {
		return nil, err
	}

	self := m.describe(t, info)
	listing := &Listing{Name: self.Name, Path: self.Path, Info: &self, Children: []sdk.FileInfo{}}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		child := target{serverID: serverID, root: t.root, clean: path.Join(t.clean, entry.Name()), full: filepath.Join(t.full, entry.Name())}
		listing.Children = append(listing.Children, m.describe(child, info))
	}

	sort.Slice(listing.Children, func(i, j int) bool {
		a, b := listing.Children[i], listing.Children[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return listing, nil
}

// Open returns the file for download. The caller closes it.
func (m *Manager) Open(serverID, p string) (*os.File, sdk.FileInfo, error) {
	t, err := m.resolve(serverID, p)
	if err != nil {
		return nil, sdk.FileInfo{}, err
	}
	info, err := statTarget(t)
	if err != nil {
		return nil, sdk.FileInfo{}, err
	}
	if info.IsDir() {
		return nil, sdk.FileInfo{}, fmt.Errorf("%s: %w", t.clean, domain.ErrNotFile)
	}
	f, err := os.Open(t.full)
	return f, m.describe(t, info), err
}

// UploadFile writes content to p, replacing an existing file and creating
// missing parents.
func (m *Manager) UploadFile(serverID, p string, content io.Reader) (sdk.FileInfo, error) {
	t, err := m.resolve(serverID, p)
	if err != nil {
		return sdk.FileInfo{}, err
	}
	if t.isRoot() {
		return sdk.FileInfo{}, fmt.Errorf("%s: %w", t.clean, domain.ErrNotFile)
	}
	if info, err := os.Stat(t.full); err == nil && info.IsDir() {
		return sdk.FileInfo{}, fmt.Errorf("%s: %w", t.clean, domain.ErrNotFile)
	}

	if err := os.MkdirAll(filepath.Dir(t.full), 0755); err != nil {
		return sdk.FileInfo{}, fmt.Errorf("failed to create directories: %w", err)
	}

	f, err := os.Create(t.full)
	if err != nil {
		return sdk.FileInfo{}, err
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		return sdk.FileInfo{}, err
	}
	if err := f.Close(); err != nil {
		return sdk.FileInfo{}, err
	}

	info, err := os.Stat(t.full)
	if err != nil {
		return sdk.FileInfo{}, err
	}
	return m.describe(t, info), nil
}

func (m *Manager) CreateDirectory(serverID, p string, parents bool) (sdk.FileInfo, error) {
	t, err := m.resolve(serverID, p)
	if err != nil {
		return sdk.FileInfo{}, err
	}
	if _, err := os.Stat(t.full); err == nil {
		return sdk.FileInfo{}, fmt.Errorf("%s: %w", t.clean, domain.ErrPathExists)
	}

	if parents {
		err = os.MkdirAll(t.full, 0755)
	} else {
		err = os.Mkdir(t.full, 0755)
		if os.IsNotExist(err) {
			return sdk.FileInfo{}, fmt.Errorf("%s: %w", path.Dir(t.clean), domain.ErrPathNotFound)
		}
	}
	if err != nil {
		return sdk.FileInfo{}, err
	}

	info, err := os.Stat(t.full)
	if err != nil {
		return sdk.FileInfo{}, err
	}
	return m.describe(t, info), nil
}

// transferTargets checks a copy or move before anything is touched: the
// source exists, the destination does not and its parent is a directory.
func (m *Manager) transferTargets(serverID, src, dst string) (target, target, error) {
	from, err := m.resolve(serverID, src)
	if err != nil {
		return target{}, target{}, err
	}
	to, err := m.resolve(serverID, dst)
	if err != nil {
		return target{}, target{}, err
	}
	if from.isRoot() || to.isRoot() {
		return target{}, target{}, fmt.Errorf("%s: %w", from.clean, domain.ErrPathNotAllowed)
	}
	if _, err := statTarget(from); err != nil {
		return target{}, target{}, err
	}
	if _, err := os.Stat(to.full); err == nil {
		return target{}, target{}, fmt.Errorf("%s: %w", to.clean, domain.ErrPathExists)
	}
	parent, err := os.Stat(filepath.Dir(to.full))
	if err != nil {
		return target{}, target{}, fmt.Errorf("%s: %w", path.Dir(to.clean), domain.ErrPathNotFound)
	}
	if !parent.IsDir() {
		return target{}, target{}, fmt.Errorf("%s: %w", path.Dir(to.clean), domain.ErrNotDirectory)
	}
	if from.full == to.full || strings.HasPrefix(to.full, from.full+string(os.PathSeparator)) {
		return target{}, target{}, fmt.Errorf("%s into itself: %w", from.clean, domain.ErrPathNotAllowed)
	}
	return from, to, nil
}

// Move renames src to dst. It completes immediately.
func (m *Manager) Move(serverID, src, dst string) (sdk.FileInfo, error) {
	from, to, err := m.transferTargets(serverID, src, dst)
	if err != nil {
		return sdk.FileInfo{}, err
	}
	if err := os.Rename(from.full, to.full); err != nil {
		return sdk.FileInfo{}, err
	}
	info, err := os.Stat(to.full)
	if err != nil {
		return sdk.FileInfo{}, err
	}
	return m.describe(to, info), nil
}

// Copy validates the copy and returns the work that performs it.
func (m *Manager) Copy(serverID, src, dst string) (tasks.Work, error) {
	from, to, err := m.transferTargets(serverID, src, dst)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, report func(float64)) error {
		total := treeSize(from.full)
		var done int64
		return filepath.Walk(from.full, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(from.full, p)
			if err != nil {
				return err
			}
			out := filepath.Join(to.full, rel)
			if info.IsDir() {
				return os.MkdirAll(out, info.Mode().Perm()|0700)
			}
			if err := copyFile(p, out, info.Mode()); err != nil {
				return err
			}
			done += info.Size()
			if total > 0 {
				report(float64(done) / float64(total) * 100)
			}
			return nil
		})
	}, nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func treeSize(root string) int64 {
	var total int64
	filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// Remove validates the deletion and returns the work that performs it. The
// server directory itself cannot be removed.
func (m *Manager) Remove(serverID, p string) (tasks.Work, error) {
	t, err := m.resolve(serverID, p)
	if err != nil {
		return nil, err
	}
	if t.isRoot() {
		return nil, fmt.Errorf("%s: %w", t.clean, domain.ErrPathNotAllowed)
	}
	if _, err := statTarget(t); err != nil {
		return nil, err
	}
	return func(ctx context.Context, report func(float64)) error {
		return os.RemoveAll(t.full)
	}, nil
}

// MakeArchive validates an archive request and returns the work that
// writes it. Entries are named relative to filesRoot.
func (m *Manager) MakeArchive(serverID, archivePath, filesRoot string, include []string) (tasks.Work, error) {
	dst, err := m.resolve(serverID, archivePath)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(path.Ext(dst.clean), ".zip") {
		return nil, fmt.Errorf("%s: %w", dst.clean, domain.ErrUnsupportedArchive)
	}
	if _, err := os.Stat(dst.full); err == nil {
		return nil, fmt.Errorf("%s: %w", dst.clean, domain.ErrPathExists)
	}

	root, err := m.resolve(serverID, filesRoot)
	if err != nil {
		return nil, err
	}
	if info, err := statTarget(root); err != nil {
		return nil, err
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", root.clean, domain.ErrNotDirectory)
	}

	paths := make([]string, 0, len(include))
	for _, p := range include {
		t, err := m.resolve(serverID, p)
		if err != nil {
			return nil, err
		}
		if t.clean != root.clean && !strings.HasPrefix(t.clean, strings.TrimSuffix(root.clean, "/")+"/") {
			return nil, fmt.Errorf("%s outside %s: %w", t.clean, root.clean, domain.ErrPathNotAllowed)
		}
		if _, err := statTarget(t); err != nil {
			return nil, err
		}
		paths = append(paths, t.full)
	}

	return func(ctx context.Context, report func(float64)) error {
		_, err := WriteZip(ctx, dst.full, root.full, paths, report)
		return err
	}, nil
}

// ExtractArchive validates an extraction and returns the work that performs
// it. Only unencrypted zip archives are understood.
func (m *Manager) ExtractArchive(serverID, archivePath, outputDir, password string) (tasks.Work, error) {
	src, err := m.resolve(serverID, archivePath)
	if err != nil {
		return nil, err
	}
	info, err := statTarget(src)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: %w", src.clean, domain.ErrNotFile)
	}
	if password != "" || !strings.EqualFold(path.Ext(src.clean), ".zip") {
		return nil, fmt.Errorf("%s: %w", src.clean, domain.ErrUnsupportedArchive)
	}

	out, err := m.resolve(serverID, outputDir)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(out.full); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", out.clean, domain.ErrNotDirectory)
	}

	return func(ctx context.Context, report func(float64)) error {
		return Unzip(ctx, src.full, out.full, report)
	}, nil
}

// StorageInfo reports disk usage for the volume holding the servers. With a
// serverID, used size is what that server's directory occupies.
func (m *Manager) StorageInfo(serverID string) (sdk.StorageInfo, error) {
	dir := m.ServersPath
	if serverID != "" {
		srv, err := m.GetServer(serverID)
		if err != nil {
			return sdk.StorageInfo{}, err
		}
		dir = srv.Directory
	}

	usage, err := disk.Usage(dir)
	if err != nil {
		return sdk.StorageInfo{}, fmt.Errorf("disk usage for %s: %w", dir, err)
	}

	info := sdk.StorageInfo{
		TotalSize: int64(usage.Total),
		UsedSize:  int64(usage.Used),
		FreeSize:  int64(usage.Free),
	}
	if serverID != "" {
		info.UsedSize = treeSize(dir)
	}
	return info, nil
}
