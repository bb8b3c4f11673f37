package api

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"craftdeck/internal/app"
	"craftdeck/internal/config"
	"craftdeck/pkg/sdk"
	"craftdeck/pkg/sdk/events"

	"github.com/rs/zerolog"
)

var testPolicy = sdk.WaitPolicy{PollInterval: 50 * time.Millisecond, Timeout: 5 * time.Second}

func newTestAPI(t *testing.T, authRequired bool) (*app.Container, *sdk.Client) {
	t.Helper()
	return newTestAPIWith(t, authRequired, nil)
}

// newTestAPIWith lets prepare swap services before the handler is built.
func newTestAPIWith(t *testing.T, authRequired bool, prepare func(*app.Container)) (*app.Container, *sdk.Client) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		ServersPath:    filepath.Join(dir, "servers"),
		BackupsPath:    filepath.Join(dir, "backups"),
		RuntimesPath:   filepath.Join(dir, "runtimes"),
		DatabasePath:   filepath.Join(dir, "test.db"),
		SampleInterval: 1,
		AuthRequired:   authRequired,
	}
	c, err := app.New(cfg, "test-secret", zerolog.Nop())
	if err != nil {
		t.Fatalf("app.New failed: %v", err)
	}
	if prepare != nil {
		prepare(c)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.Run(ctx)
	srv := httptest.NewServer(NewAPIServer(c).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		c.Shutdown()
	})
	return c, sdk.NewClient(srv.URL, sdk.WithRetryMax(0))
}

// connectEvents opens an event client and waits until the hub has
// registered it, so no frame published afterwards is missed.
func connectEvents(t *testing.T, c *app.Container, client *sdk.Client) *events.Client {
	t.Helper()
	ec, err := client.NewEventClient()
	if err != nil {
		t.Fatalf("NewEventClient failed: %v", err)
	}
	before := c.Hub.ClientCount()
	if err := ec.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { ec.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for c.Hub.ClientCount() == before && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return ec
}

func createServer(t *testing.T, client *sdk.Client, command string) *sdk.Server {
	t.Helper()
	srv, err := client.CreateServer(context.Background(), sdk.CreateServerRequest{
		Name:                "Lobby",
		EnableLaunchCommand: true,
		LaunchCommand:       command,
	})
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	return srv
}

func TestSessionLifecycle(t *testing.T) {
	_, admin := newTestAPI(t, true)
	ctx := context.Background()

	if ok, err := admin.IsValidSession(ctx); err != nil || ok {
		t.Errorf("Expected no session before setup, got %v %v", ok, err)
	}
	if _, err := admin.ListServers(ctx); !sdk.IsCode(err, sdk.CodeInvalidCredentials) {
		t.Errorf("Expected invalid credentials, got %v", err)
	}

	if err := admin.Setup(ctx, "admin", "hunter2"); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := admin.Setup(ctx, "other", "hunter2"); err == nil {
		t.Error("Expected a second setup to be refused")
	}
	if ok, _ := admin.IsValidSession(ctx); !ok {
		t.Error("Expected setup to open a session")
	}

	if ok, err := admin.AddUser(ctx, "bob", "pw"); err != nil || !ok {
		t.Fatalf("AddUser failed: %v %v", ok, err)
	}
	if _, err := admin.AddUser(ctx, "bob", "pw"); !sdk.IsCode(err, sdk.CodeAlreadyExistsUserName) {
		t.Errorf("Expected duplicate user error, got %v", err)
	}

	users, err := admin.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 2 || users[0].Name != "admin" || users[0].Permission != 100 {
		t.Fatalf("Unexpected users %+v", users)
	}

	bob := sdk.NewClient(admin.BaseURL(), sdk.WithRetryMax(0))
	if err := bob.Login(ctx, "bob", "wrong"); !sdk.IsCode(err, sdk.CodeIncorrectUsernameOrPassword) {
		t.Errorf("Expected bad login, got %v", err)
	}
	if err := bob.Login(ctx, "bob", "pw"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := bob.ListServers(ctx); err != nil {
		t.Errorf("Expected bob to list servers, got %v", err)
	}
	if _, err := bob.ListUsers(ctx); err == nil {
		t.Error("Expected user management to need an administrator")
	}

	if ok, err := admin.RemoveUser(ctx, users[1].ID); err != nil || !ok {
		t.Fatalf("RemoveUser failed: %v %v", ok, err)
	}
	if ok, _ := bob.IsValidSession(ctx); ok {
		t.Error("Expected the removed user's session to be invalid")
	}

	if err := admin.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if ok, _ := admin.IsValidSession(ctx); ok {
		t.Error("Expected no session after logout")
	}
}

func TestJavaPresets(t *testing.T) {
	c, client := newTestAPI(t, false)
	ctx := context.Background()

	if v, err := client.BackendVersion(ctx); err != nil || v == "" {
		t.Errorf("Expected a backend version, got %q, %v", v, err)
	}

	presets, err := client.ListJavaPresets(ctx)
	if err != nil || len(presets) != 0 {
		t.Errorf("Expected no presets, got %v, %v", presets, err)
	}

	if err := os.MkdirAll(filepath.Join(c.Config.RuntimesPath, "java-17"), 0755); err != nil {
		t.Fatal(err)
	}
	presets, err = client.ListJavaPresets(ctx)
	if err != nil || len(presets) != 1 || presets[0] != "java17" {
		t.Errorf("Expected [java17], got %v, %v", presets, err)
	}

	preset := "java8"
	_, err = client.CreateServer(ctx, sdk.CreateServerRequest{
		Name:         "Modded",
		LaunchOption: sdk.LaunchOption{JarFile: "server.jar", JavaPreset: &preset},
	})
	if !sdk.IsCode(err, sdk.CodeUnknownJavaPreset) {
		t.Errorf("Expected unknown java preset, got %v", err)
	}
}

func TestServerConfigAndEula(t *testing.T) {
	_, client := newTestAPI(t, false)
	ctx := context.Background()

	srv := createServer(t, client, "cat")
	if srv.Name != "Lobby" || srv.State != events.StateStopped || !srv.IsLoaded {
		t.Errorf("Unexpected server %+v", srv)
	}

	cfg, err := client.GetServerConfig(ctx, srv.ID)
	if err != nil {
		t.Fatalf("GetServerConfig failed: %v", err)
	}
	if cfg.LaunchCommand != "cat" || cfg.StopCommand == nil || *cfg.StopCommand != "stop" {
		t.Errorf("Unexpected config %+v", cfg)
	}

	cfg.Name = "Hub"
	if err := client.PutServerConfig(ctx, srv.ID, *cfg); err != nil {
		t.Fatalf("PutServerConfig failed: %v", err)
	}
	if got, _ := client.GetServer(ctx, srv.ID); got.Name != "Hub" {
		t.Errorf("Expected renamed server, got %+v", got)
	}

	if accepted, _ := client.GetEula(ctx, srv.ID); accepted {
		t.Error("Expected eula to start unaccepted")
	}
	if err := client.SetEula(ctx, srv.ID, true); err != nil {
		t.Fatalf("SetEula failed: %v", err)
	}
	if accepted, _ := client.GetEula(ctx, srv.ID); !accepted {
		t.Error("Expected eula to be accepted")
	}

	if _, err := client.StopServer(ctx, srv.ID); !sdk.IsCode(err, sdk.CodeServerNotRunning) {
		t.Errorf("Expected not running, got %v", err)
	}
	if _, err := client.GetServer(ctx, "missing"); !sdk.IsCode(err, sdk.CodeServerNotFound) {
		t.Errorf("Expected server not found, got %v", err)
	}

	if ok, err := client.RemoveServer(ctx, srv.ID, false); err != nil || !ok {
		t.Fatalf("RemoveServer failed: %v %v", ok, err)
	}
	if servers, _ := client.ListServers(ctx); len(servers) != 0 {
		t.Errorf("Expected no servers, got %+v", servers)
	}
}

func await(t *testing.T, w *sdk.TaskWaiter, res *sdk.FileOperationResult, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("operation failed: %v", err)
	}
	if !res.Pending() || res.TaskID == nil {
		t.Fatalf("Expected a pending task, got %+v", res)
	}
	result, err := w.Await(context.Background(), res)
	if err != nil || result != events.ResultSuccess {
		t.Fatalf("Expected the task to succeed, got %s %v", result, err)
	}
}

func childNames(t *testing.T, fm *sdk.FileManager, serverID, dir string) string {
	t.Helper()
	listing, err := fm.Get(context.Background(), serverID, dir)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", dir, err)
	}
	children, _ := listing.Children(context.Background())
	var names []string
	for _, e := range children {
		names = append(names, e.Meta().Name)
	}
	return strings.Join(names, ",")
}

func TestFileOperations(t *testing.T) {
	c, client := newTestAPI(t, false)
	ctx := context.Background()
	srv := createServer(t, client, "cat")

	fm := client.Files()
	w := sdk.NewTaskWaiter(connectEvents(t, c, client), fm, testPolicy)
	defer w.Close()

	root, err := fm.Get(ctx, srv.ID, "/")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !root.IsServerDir || root.RegisteredServerID != srv.ID || root.ModifiedAt == nil {
		t.Errorf("Expected the root listing to describe the server directory, got %+v", root.Node)
	}
	res, err := root.UploadFile(ctx, "config/notes.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}
	if res.Result != events.ResultSuccess || res.File == nil || res.File.Name != "notes.txt" {
		t.Errorf("Unexpected upload result %+v", res)
	}

	entry, err := fm.GetInfo(ctx, srv.ID, "/config/notes.txt")
	if err != nil {
		t.Fatalf("GetInfo failed: %v", err)
	}
	file, ok := entry.(*sdk.File)
	if !ok || file.Size != 5 || file.Dir != "/config" {
		t.Fatalf("Unexpected entry %+v", entry)
	}

	res, err = file.Copy(ctx, "/config")
	await(t, w, res, err)
	if got := childNames(t, fm, srv.ID, "/config"); got != "notes - copy.txt,notes.txt" {
		t.Errorf("Expected copy beside the original, got %s", got)
	}

	rc, err := file.Data(ctx)
	if err != nil {
		t.Fatalf("Data failed: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Errorf("Expected downloaded content, got %q", data)
	}

	if res, err := file.Rename(ctx, "renamed.txt"); err != nil || res.Result != events.ResultSuccess {
		t.Fatalf("Rename failed: %+v %v", res, err)
	}
	if _, err := fm.GetInfo(ctx, srv.ID, "/config/notes.txt"); !sdk.IsCode(err, sdk.CodeNotExistsPath) {
		t.Errorf("Expected the old name to be gone, got %v", err)
	}

	dup, _ := fm.GetInfo(ctx, srv.ID, "/config/notes - copy.txt")
	res, err = dup.Meta().Remove(ctx)
	await(t, w, res, err)

	renamed, _ := fm.GetInfo(ctx, srv.ID, "/config/renamed.txt")
	res, err = sdk.FileList{renamed}.CreateArchive(ctx, "pack.zip", "/", "/config")
	await(t, w, res, err)

	archive, err := fm.GetInfo(ctx, srv.ID, "/pack.zip")
	if err != nil {
		t.Fatalf("GetInfo(pack.zip) failed: %v", err)
	}
	if _, err := archive.(*sdk.File).Extract(ctx, "/out", "secret"); !sdk.IsCode(err, sdk.CodeUnsupportedArchive) {
		t.Errorf("Expected encrypted extraction to be refused, got %v", err)
	}
	res, err = archive.(*sdk.File).Extract(ctx, "/out", "")
	await(t, w, res, err)
	if got := childNames(t, fm, srv.ID, "/out"); got != "renamed.txt" {
		t.Errorf("Expected extracted file, got %s", got)
	}

	if _, err := root.Mkdir(ctx, "a/b"); !sdk.IsCode(err, sdk.CodeNotExistsPath) {
		t.Errorf("Expected Mkdir without parents to fail, got %v", err)
	}
	if res, err := root.MkdirAll(ctx, "a/b"); err != nil || res.File == nil || res.File.Name != "b" {
		t.Errorf("MkdirAll failed: %+v %v", res, err)
	}

	info, err := fm.StorageInfo(ctx, srv.ID)
	if err != nil || info.TotalSize <= 0 || info.UsedSize <= 0 {
		t.Errorf("Unexpected storage info %+v %v", info, err)
	}
	list, err := fm.Tasks(ctx)
	if err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}
	for _, task := range list {
		if task.Result != events.ResultSuccess {
			t.Errorf("Expected every listed task to have succeeded, got %+v", task)
		}
	}
}

func TestBackups(t *testing.T) {
	c, client := newTestAPI(t, false)
	ctx := context.Background()
	srv := createServer(t, client, "cat")
	w := sdk.NewTaskWaiter(connectEvents(t, c, client), client.Files(), testPolicy)
	defer w.Close()

	if _, err := client.CreateBackup(ctx, srv.ID, "", true); !sdk.IsCode(err, sdk.CodeUnavailableSnapshot) {
		t.Errorf("Expected snapshot to be unavailable, got %v", err)
	}

	task, err := client.CreateBackup(ctx, srv.ID, "nightly", false)
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	if task.Type != events.FileEventBackup || task.BackupID == "" {
		t.Errorf("Unexpected backup task %+v", task)
	}
	if ev, err := w.Wait(ctx, task.ID); err != nil || ev.Result != events.ResultSuccess {
		t.Fatalf("Backup did not succeed: %+v %v", ev, err)
	}

	b, err := client.GetBackup(ctx, task.BackupID)
	if err != nil {
		t.Fatalf("GetBackup failed: %v", err)
	}
	if b.Comments == nil || *b.Comments != "nightly" || b.TotalFiles == 0 {
		t.Errorf("Unexpected backup %+v", b)
	}
	if ids, _ := client.ListBackupIDs(ctx); len(ids) != 1 || ids[0].Server != srv.ID {
		t.Errorf("Unexpected backup ids %+v", ids)
	}
	if cfg, _ := client.GetServerConfig(ctx, srv.ID); cfg.LastBackupAt == nil {
		t.Error("Expected the server config to report the last backup")
	}

	restore, err := client.RestoreBackup(ctx, srv.ID, b.ID)
	if err != nil {
		t.Fatalf("RestoreBackup failed: %v", err)
	}
	if ev, err := w.Wait(ctx, restore.ID); err != nil || ev.Result != events.ResultSuccess {
		t.Fatalf("Restore did not succeed: %+v %v", ev, err)
	}

	opts := sdk.BackupFileOptions{IncludeFiles: true, IncludeErrors: true}
	files, err := client.BackupFiles(ctx, b.ID, opts)
	if err != nil {
		t.Fatalf("BackupFiles failed: %v", err)
	}
	if files.TotalFiles != b.TotalFiles || len(files.Files) == 0 {
		t.Errorf("Unexpected backup files %+v", files)
	}
	if same, err := client.CompareBackups(ctx, b.ID, b.ID, opts); err != nil || same.UpdateFiles != 0 {
		t.Errorf("Expected a backup to equal itself, got %+v %v", same, err)
	}
	if _, err := client.CompareBackups(ctx, b.ID, "missing", opts); !sdk.IsCode(err, sdk.CodeBackupNotFound) {
		t.Errorf("Expected backup not found, got %v", err)
	}

	fm := client.Files()
	dir, _ := fm.Get(ctx, srv.ID, "/")
	if _, err := dir.UploadFile(ctx, "added.txt", strings.NewReader("added")); err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}
	diff, err := client.CompareWithServer(ctx, srv.ID, b.ID, sdk.BackupFileOptions{IncludeFiles: true, OnlyUpdates: true})
	if err != nil {
		t.Fatalf("CompareWithServer failed: %v", err)
	}
	if len(diff.Files) != 1 || diff.Files[0].Path != "added.txt" || diff.Files[0].Status != sdk.StatusCreate {
		t.Errorf("Expected added.txt to show as created, got %+v", diff.Files)
	}
	verified, err := client.VerifyBackup(ctx, srv.ID, b.ID, opts)
	if err != nil || verified.ErrorFiles != 0 || verified.UpdateFiles != 1 {
		t.Errorf("Unexpected verify result %+v %v", verified, err)
	}
	preview, err := client.PreviewBackup(ctx, srv.ID, sdk.BackupFileOptions{IncludeFiles: true, OnlyUpdates: true})
	if err != nil {
		t.Fatalf("PreviewBackup failed: %v", err)
	}
	if preview.SnapshotSource != b.ID || preview.UpdateFiles != 1 {
		t.Errorf("Expected one update since %s, got %+v", b.ID, preview)
	}
	if running, err := client.BackupTaskOf(ctx, srv.ID); err != nil || running != nil {
		t.Errorf("Expected no running backup, got %+v %v", running, err)
	}

	rc, err := client.BackupFile(ctx, srv.ID, b.ID, "craftdeck.yaml")
	if err != nil {
		t.Fatalf("BackupFile failed: %v", err)
	}
	stored, _ := io.ReadAll(rc)
	rc.Close()
	if !strings.Contains(string(stored), "launch_command: cat") {
		t.Errorf("Expected the stored server config, got %q", stored)
	}
	rc, err = client.ExportBackup(ctx, b.ID)
	if err != nil {
		t.Fatalf("ExportBackup failed: %v", err)
	}
	archive, _ := io.ReadAll(rc)
	rc.Close()
	if b.FinalSize == nil || int64(len(archive)) != *b.FinalSize {
		t.Errorf("Expected the whole archive, got %d bytes", len(archive))
	}

	if err := client.RemoveBackup(ctx, b.ID); err != nil {
		t.Fatalf("RemoveBackup failed: %v", err)
	}
	if _, err := client.GetBackup(ctx, b.ID); !sdk.IsCode(err, sdk.CodeBackupNotFound) {
		t.Errorf("Expected backup not found, got %v", err)
	}
}
