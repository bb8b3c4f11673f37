package sdk

import (
	"context"
	"io"
	"math"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultCopySuffix      = " - copy"
	DefaultMaxCopyAttempts = 1000
)

// FileInfo is the backend's description of one path.
type FileInfo struct {
	Name               string   `json:"name"`
	Path               string   `json:"path"`
	IsDir              bool     `json:"is_dir"`
	Size               int64    `json:"size"`
	ModifyTime         *float64 `json:"modify_time"`
	CreateTime         *float64 `json:"create_time"`
	IsServerDir        bool     `json:"is_server_dir"`
	RegisteredServerID *string  `json:"registered_server_id"`
}

type directoryListing struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	Info     *FileInfo  `json:"info"`
	Children []FileInfo `json:"children"`
}

// FileManager talks to the remote file API of a backend.
type FileManager struct {
	client *Client

	// CopySuffix is inserted before the extension when a copy lands in the
	// source's own directory.
	CopySuffix      string
	MaxCopyAttempts int
}

func NewFileManager(c *Client) *FileManager {
	return &FileManager{
		client:          c,
		CopySuffix:      DefaultCopySuffix,
		MaxCopyAttempts: DefaultMaxCopyAttempts,
	}
}

func (c *Client) Files() *FileManager {
	return NewFileManager(c)
}

// Entry is a *File or a *Directory.
type Entry interface {
	Meta() *Node
	isEntry()
}

// Node holds what files and directories have in common. Dir is the
// containing directory; Path joins it with Name.
type Node struct {
	Name       string
	Dir        string
	ModifiedAt *time.Time
	CreatedAt  *time.Time
	ServerID   string

	fm *FileManager
}

func (n *Node) Meta() *Node { return n }

func (n *Node) Path() string {
	return path.Join(n.Dir, n.Name)
}

type File struct {
	Node
	Size int64
	Type FileType
}

type Directory struct {
	Node
	Size               int64
	IsServerDir        bool
	RegisteredServerID string

	mu       sync.Mutex
	children FileList
	loaded   bool
}

func (*File) isEntry()      {}
func (*Directory) isEntry() {}

func (fm *FileManager) entry(info FileInfo, serverID string) Entry {
	n := Node{
		Name:       info.Name,
		Dir:        info.Path,
		ModifiedAt: unixTime(info.ModifyTime),
		CreatedAt:  unixTime(info.CreateTime),
		ServerID:   serverID,
		fm:         fm,
	}
	if info.IsDir {
		d := &Directory{Node: n, Size: info.Size, IsServerDir: info.IsServerDir}
		if info.RegisteredServerID != nil {
			d.RegisteredServerID = *info.RegisteredServerID
		}
		return d
	}
	return &File{Node: n, Size: info.Size, Type: FileTypeOf(info.Name)}
}

func unixTime(ts *float64) *time.Time {
	if ts == nil {
		return nil
	}
	sec, frac := math.Modf(*ts)
	t := time.Unix(int64(sec), int64(frac*1e9))
	return &t
}

func (fm *FileManager) filePath(serverID, action string) string {
	if action == "" {
		return serverPath(serverID, "file")
	}
	return serverPath(serverID, "file", action)
}

// Get lists the directory at dirPath. The listing is kept as the
// directory's children.
func (fm *FileManager) Get(ctx context.Context, serverID, dirPath string) (*Directory, error) {
	var listing directoryListing
	if err := fm.client.get(ctx, serverPath(serverID, "files"), url.Values{"path": {dirPath}}, &listing); err != nil {
		return nil, err
	}

	children := make(FileList, 0, len(listing.Children))
	for _, info := range listing.Children {
		children = append(children, fm.entry(info, serverID))
	}
	d := &Directory{Node: Node{Name: listing.Name, Dir: listing.Path, ServerID: serverID, fm: fm}}
	if listing.Info != nil && listing.Info.IsDir {
		d = fm.entry(*listing.Info, serverID).(*Directory)
	}
	d.children = children
	d.loaded = true
	return d, nil
}

// GetInfo describes one path without listing it.
func (fm *FileManager) GetInfo(ctx context.Context, serverID, p string) (Entry, error) {
	var info FileInfo
	if err := fm.client.get(ctx, fm.filePath(serverID, "info"), url.Values{"path": {p}}, &info); err != nil {
		return nil, err
	}
	return fm.entry(info, serverID), nil
}

// Tasks returns the file tasks the backend is currently tracking.
func (fm *FileManager) Tasks(ctx context.Context) ([]FileTask, error) {
	var tasks []FileTask
	err := fm.client.get(ctx, "/file/tasks", nil, &tasks)
	return tasks, err
}

// StorageInfo reports disk usage. An empty serverID asks for the whole
// backend.
func (fm *FileManager) StorageInfo(ctx context.Context, serverID string) (*StorageInfo, error) {
	var query url.Values
	if serverID != "" {
		query = url.Values{"server_id": {serverID}}
	}
	var info StorageInfo
	if err := fm.client.get(ctx, "/storage/info", query, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// operate issues one mutating request for src. The result remembers the
// server, the source path and when it was issued so that a pending result
// without a task id can still be awaited.
func (fm *FileManager) operate(serverID, src string, call func(res *FileOperationResult) error) (*FileOperationResult, error) {
	res := FileOperationResult{server: serverID, src: src, issued: time.Now()}
	if err := call(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (n *Node) transfer(ctx context.Context, action, dst string) (*FileOperationResult, error) {
	query := url.Values{"path": {n.Path()}, "dst_path": {dst}}
	return n.fm.operate(n.ServerID, n.Path(), func(res *FileOperationResult) error {
		return n.fm.client.put(ctx, n.fm.filePath(n.ServerID, action), query, nil, res)
	})
}

// Copy copies the entry into the directory to. Copying into the entry's own
// directory picks a free name instead of failing on the collision.
func (n *Node) Copy(ctx context.Context, to string) (*FileOperationResult, error) {
	if path.Clean(to) != path.Clean(n.Dir) {
		return n.transfer(ctx, "copy", path.Join(to, n.Name))
	}

	attempts := n.fm.MaxCopyAttempts
	if attempts <= 0 {
		attempts = DefaultMaxCopyAttempts
	}
	for i := 1; i <= attempts; i++ {
		res, err := n.transfer(ctx, "copy", path.Join(to, n.fm.copyName(n.Name, i)))
		if err == nil {
			return res, nil
		}
		if !IsCode(err, CodeAlreadyExistsPath) {
			return nil, err
		}
	}
	return nil, errors.Wrapf(ErrTooManyCollisions, "copy %s", n.Path())
}

// copyName returns the n-th candidate name for a copy of name.
func (fm *FileManager) copyName(name string, n int) string {
	ext := path.Ext(name)
	if ext == name {
		ext = ""
	}
	base := name[:len(name)-len(ext)]
	suffix := fm.CopySuffix
	if n > 1 {
		suffix += " (" + strconv.Itoa(n) + ")"
	}
	return base + suffix + ext
}

func (n *Node) Move(ctx context.Context, to string) (*FileOperationResult, error) {
	return n.transfer(ctx, "move", path.Join(to, n.Name))
}

func (n *Node) Rename(ctx context.Context, newName string) (*FileOperationResult, error) {
	return n.transfer(ctx, "move", path.Join(n.Dir, newName))
}

func (n *Node) Remove(ctx context.Context) (*FileOperationResult, error) {
	return n.fm.operate(n.ServerID, n.Path(), func(res *FileOperationResult) error {
		return n.fm.client.delete(ctx, n.fm.filePath(n.ServerID, ""), url.Values{"path": {n.Path()}}, res)
	})
}

// Extract unpacks the archive into outputDir. It fails with ErrNotArchive,
// without contacting the backend, when the file is not an archive.
func (f *File) Extract(ctx context.Context, outputDir, password string) (*FileOperationResult, error) {
	if f.Type != FileTypeArchive {
		return nil, errors.Wrap(ErrNotArchive, f.Name)
	}

	var body struct {
		Password *string `json:"password"`
	}
	if password != "" {
		body.Password = &password
	}
	query := url.Values{"path": {f.Path()}, "output_dir": {outputDir}}
	return f.fm.operate(f.ServerID, f.Path(), func(res *FileOperationResult) error {
		return f.fm.client.post(ctx, f.fm.filePath(f.ServerID, "archive/extract"), query, body, res)
	})
}

// Data downloads the file. The caller closes the reader.
func (f *File) Data(ctx context.Context) (io.ReadCloser, error) {
	return f.fm.client.download(ctx, f.fm.filePath(f.ServerID, ""), url.Values{"path": {f.Path()}})
}

// Save replaces the file's content. The result carries the refreshed
// description of the file.
func (f *File) Save(ctx context.Context, r io.Reader) (*FileOperationResult, error) {
	return f.fm.operate(f.ServerID, f.Path(), func(res *FileOperationResult) error {
		return f.fm.client.postFile(ctx, f.fm.filePath(f.ServerID, ""), url.Values{"path": {f.Path()}}, f.Name, r, res)
	})
}

// Children returns the directory's entries, fetching them on first use. The
// result is kept for the life of the Directory; call Get again for a fresh
// view.
func (d *Directory) Children(ctx context.Context) (FileList, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return d.children, nil
	}

	fresh, err := d.fm.Get(ctx, d.ServerID, d.Path())
	if err != nil {
		return nil, err
	}
	d.children = fresh.children
	d.loaded = true
	return d.children, nil
}

func (d *Directory) Mkdir(ctx context.Context, name string) (*FileOperationResult, error) {
	return d.mkdir(ctx, name, nil)
}

// MkdirAll also creates missing parents of name.
func (d *Directory) MkdirAll(ctx context.Context, name string) (*FileOperationResult, error) {
	return d.mkdir(ctx, name, url.Values{"parents": {"true"}})
}

func (d *Directory) mkdir(ctx context.Context, name string, query url.Values) (*FileOperationResult, error) {
	if query == nil {
		query = url.Values{}
	}
	p := path.Join(d.Path(), name)
	query.Set("path", p)
	return d.fm.operate(d.ServerID, p, func(res *FileOperationResult) error {
		return d.fm.client.post(ctx, d.fm.filePath(d.ServerID, "mkdir"), query, nil, res)
	})
}

// UploadFile stores r as name inside the directory. name may contain
// slashes to land in a subdirectory.
func (d *Directory) UploadFile(ctx context.Context, name string, r io.Reader) (*FileOperationResult, error) {
	p := path.Join(d.Path(), name)
	return d.fm.operate(d.ServerID, p, func(res *FileOperationResult) error {
		return d.fm.client.postFile(ctx, d.fm.filePath(d.ServerID, ""), url.Values{"path": {p}}, path.Base(name), r, res)
	})
}

// FileList is a selection of entries.
type FileList []Entry

// CreateArchive packs the selection into location/name. Paths inside the
// archive are relative to filesRoot. All entries must belong to one server.
func (l FileList) CreateArchive(ctx context.Context, name, location, filesRoot string) (*FileOperationResult, error) {
	if len(l) == 0 {
		return nil, ErrEmptySelection
	}
	first := l[0].Meta()
	query := url.Values{
		"path":       {path.Join(location, name)},
		"files_root": {filesRoot},
	}
	for _, e := range l {
		n := e.Meta()
		if n.ServerID != first.ServerID {
			return nil, errors.Wrapf(ErrMixedServers, "%s and %s", first.ServerID, n.ServerID)
		}
		query.Add("include_files", n.Path())
	}

	target := path.Join(location, name)
	return first.fm.operate(first.ServerID, target, func(res *FileOperationResult) error {
		return first.fm.client.post(ctx, first.fm.filePath(first.ServerID, "archive/make"), query, nil, res)
	})
}
