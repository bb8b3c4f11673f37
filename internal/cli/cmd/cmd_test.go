package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"craftdeck/internal/api"
	"craftdeck/internal/app"
	"craftdeck/internal/config"
	"craftdeck/internal/loader"
	"craftdeck/internal/version"
	"craftdeck/pkg/sdk"
	"craftdeck/pkg/sdk/events"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// newTestBackend points the package globals at an in-process backend and
// captures command output.
func newTestBackend(t *testing.T, authRequired bool) *bytes.Buffer {
	t.Helper()
	return newTestBackendWith(t, authRequired, nil)
}

// newTestBackendWith lets prepare swap parts of the container before the
// backend starts serving.
func newTestBackendWith(t *testing.T, authRequired bool, prepare func(*app.Container)) *bytes.Buffer {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("HOME", filepath.Join(dir, "home"))

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
	srv := httptest.NewServer(api.NewAPIServer(c).Handler())

	prevClient, prevProfile, prevOut := Client, Profile, out
	buf := &bytes.Buffer{}
	Client = sdk.NewClient(srv.URL, sdk.WithRetryMax(0))
	Profile = config.DefaultProfile()
	Profile.URL = srv.URL
	Profile.TaskPollInterval = 50 * time.Millisecond
	Profile.TaskTimeout = 5 * time.Second
	Profile.ReconnectDelay = 100 * time.Millisecond
	out = buf

	t.Cleanup(func() {
		Client, Profile, out = prevClient, prevProfile, prevOut
		srv.Close()
		cancel()
		c.Shutdown()
	})
	return buf
}

func TestDescribe(t *testing.T) {
	known := errors.Wrap(&sdk.APIError{Code: sdk.CodeServerNotFound, Status: 404}, "get server")
	if got := describe(known); got != "server not found" {
		t.Errorf("Expected catalogue message, got %q", got)
	}

	plain := errors.New("no username given")
	if got := describe(plain); got != "no username given" {
		t.Errorf("Expected the error text for local errors, got %q", got)
	}
}

func TestNewCreateRequest(t *testing.T) {
	req := newCreateRequest("Lobby", "lobby", "custom", "", "server.jar", "java17", 2048)
	if req.EnableLaunchCommand {
		t.Errorf("Expected the java launcher without a command")
	}
	if req.LaunchOption.MaxHeapMemory == nil || *req.LaunchOption.MaxHeapMemory != 2048 {
		t.Errorf("Expected heap 2048, got %v", req.LaunchOption.MaxHeapMemory)
	}
	if req.LaunchOption.JavaPreset == nil || *req.LaunchOption.JavaPreset != "java17" {
		t.Errorf("Expected preset java17, got %v", req.LaunchOption.JavaPreset)
	}

	req = newCreateRequest("Proxy", "proxy", "custom", "./start.sh", "server.jar", "", 0)
	if !req.EnableLaunchCommand || req.LaunchCommand != "./start.sh" {
		t.Errorf("Expected launch command ./start.sh, got %+v", req)
	}
	if req.LaunchOption.MaxHeapMemory != nil || req.LaunchOption.JavaPreset != nil {
		t.Errorf("Expected no heap or preset, got %+v", req.LaunchOption)
	}
}

func TestCredentials(t *testing.T) {
	prevProfile, prevOut := Profile, out
	t.Cleanup(func() { Profile, out = prevProfile, prevOut })
	out = &bytes.Buffer{}

	Profile = config.Profile{}
	if _, _, err := credentials("", "pw", nil); err == nil {
		t.Errorf("Expected an error without a username")
	}

	Profile.Username = "alex"
	user, password, err := credentials("", "", strings.NewReader("s3cret\n"))
	if err != nil {
		t.Fatalf("credentials failed: %v", err)
	}
	if user != "alex" || password != "s3cret" {
		t.Errorf("Expected alex/s3cret, got %s/%s", user, password)
	}

	if _, _, err := credentials("alex", "", strings.NewReader("")); err == nil {
		t.Errorf("Expected an error for an empty password")
	}
}

func TestSetupPersistsSession(t *testing.T) {
	buf := newTestBackend(t, true)
	ctx := context.Background()

	if err := handleSetup(ctx, "admin", "pw", nil); err != nil {
		t.Fatalf("handleSetup failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Admin account admin created") {
		t.Errorf("Unexpected output %q", buf.String())
	}

	// a fresh client for the same backend picks the token back up
	Client = sdk.NewClient(Client.BaseURL(), sdk.WithRetryMax(0))
	restoreSession()
	if ok, err := Client.IsValidSession(ctx); err != nil || !ok {
		t.Fatalf("Expected the saved session to be valid, got %v %v", ok, err)
	}

	if err := handleListUsers(ctx); err != nil {
		t.Fatalf("handleListUsers failed: %v", err)
	}
	if !strings.Contains(buf.String(), "admin [admin]") {
		t.Errorf("Expected the admin in the user list, got %q", buf.String())
	}

	if err := handleLogout(ctx); err != nil {
		t.Fatalf("handleLogout failed: %v", err)
	}
	path, _ := config.SessionsPath()
	sessions, err := config.LoadSessions(path)
	if err != nil {
		t.Fatalf("LoadSessions failed: %v", err)
	}
	if _, ok := sessions[Client.BaseURL()]; ok {
		t.Errorf("Expected logout to forget the session, got %v", sessions)
	}
}

func TestServerCommands(t *testing.T) {
	buf := newTestBackend(t, false)
	ctx := context.Background()

	if err := handleCreate(ctx, newCreateRequest("Lobby", "lobby", "custom", "sleep 60", "", "", 0)); err != nil {
		t.Fatalf("handleCreate failed: %v", err)
	}
	servers, err := Client.ListServers(ctx)
	if err != nil || len(servers) != 1 {
		t.Fatalf("Expected one server, got %v, %v", servers, err)
	}
	id := servers[0].ID

	buf.Reset()
	if err := handleList(ctx); err != nil {
		t.Fatalf("handleList failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Lobby ("+id+") [stopped]") {
		t.Errorf("Unexpected list output %q", buf.String())
	}

	buf.Reset()
	if err := handleInfo(ctx, id); err != nil {
		t.Fatalf("handleInfo failed: %v", err)
	}
	if !strings.Contains(buf.String(), "ID:        "+id) {
		t.Errorf("Unexpected info output %q", buf.String())
	}

	if err := handleEula(ctx, id, true, true); err == nil {
		t.Errorf("Expected --accept with --decline to fail")
	}
	buf.Reset()
	if err := handleEula(ctx, id, true, false); err != nil {
		t.Fatalf("handleEula failed: %v", err)
	}
	if !strings.Contains(buf.String(), "EULA accepted: true") {
		t.Errorf("Unexpected eula output %q", buf.String())
	}

	buf.Reset()
	if err := handlePresets(ctx); err != nil {
		t.Fatalf("handlePresets failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No java presets installed.") {
		t.Errorf("Unexpected presets output %q", buf.String())
	}

	buf.Reset()
	if err := handleVersion(ctx); err != nil {
		t.Fatalf("handleVersion failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Backend: "+version.Current) || strings.Contains(buf.String(), "Warning") {
		t.Errorf("Unexpected version output %q", buf.String())
	}

	if err := handleDelete(ctx, id, true); err != nil {
		t.Fatalf("handleDelete failed: %v", err)
	}
	if _, err := Client.GetServer(ctx, id); !sdk.IsCode(err, sdk.CodeServerNotFound) {
		t.Errorf("Expected the server to be gone, got %v", err)
	}
}

func TestFileCommands(t *testing.T) {
	buf := newTestBackend(t, false)
	ctx := context.Background()

	srv, err := Client.CreateServer(ctx, newCreateRequest("Files", "files", "custom", "sleep 60", "", "", 0))
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}

	if err := handleMkdir(ctx, srv.ID, "world/region", true); err != nil {
		t.Fatalf("handleMkdir -p failed: %v", err)
	}
	if err := handleMkdir(ctx, srv.ID, "/plugins", false); err != nil {
		t.Fatalf("handleMkdir failed: %v", err)
	}

	local := filepath.Join(t.TempDir(), "motd.txt")
	if err := os.WriteFile(local, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := handleUpload(ctx, srv.ID, local, "/world"); err != nil {
		t.Fatalf("handleUpload failed: %v", err)
	}

	buf.Reset()
	if err := handleLs(ctx, srv.ID, "/world"); err != nil {
		t.Fatalf("handleLs failed: %v", err)
	}
	listing := buf.String()
	if !strings.Contains(listing, "region/") || !strings.Contains(listing, "motd.txt") {
		t.Errorf("Unexpected listing %q", listing)
	}

	dest := filepath.Join(t.TempDir(), "copy.txt")
	if err := handleDownload(ctx, srv.ID, "/world/motd.txt", dest); err != nil {
		t.Fatalf("handleDownload failed: %v", err)
	}
	if data, err := os.ReadFile(dest); err != nil || string(data) != "hello" {
		t.Errorf("Expected downloaded content hello, got %q, %v", data, err)
	}

	err = runOp(srv.ID, "/world/motd.txt", func(ctx context.Context, e sdk.Entry) (*sdk.FileOperationResult, error) {
		return e.Meta().Copy(ctx, "/plugins")
	})
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if _, err := Client.Files().GetInfo(ctx, srv.ID, "/plugins/motd.txt"); err != nil {
		t.Errorf("Expected the copy in /plugins, got %v", err)
	}

	err = runOp(srv.ID, "/world", func(ctx context.Context, e sdk.Entry) (*sdk.FileOperationResult, error) {
		return e.Meta().Remove(ctx)
	})
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := Client.Files().GetInfo(ctx, srv.ID, "/world"); !sdk.IsCode(err, sdk.CodeNotExistsPath) {
		t.Errorf("Expected /world to be gone, got %v", err)
	}

	buf.Reset()
	if err := handleTasks(ctx); err != nil {
		t.Fatalf("handleTasks failed: %v", err)
	}
	tasks := buf.String()
	if !strings.Contains(tasks, "copy s") || !strings.Contains(tasks, "[success]") {
		t.Errorf("Expected the ended copy to be listed with its result, got %q", tasks)
	}
}

func TestFailedExtractIsReported(t *testing.T) {
	buf := newTestBackend(t, false)
	ctx := context.Background()

	srv, err := Client.CreateServer(ctx, newCreateRequest("Broken", "broken", "custom", "sleep 60", "", "", 0))
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	root, err := Client.Files().Get(ctx, srv.ID, "/")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := root.UploadFile(ctx, "bad.zip", strings.NewReader("not a zip")); err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}

	buf.Reset()
	err = runOp(srv.ID, "/bad.zip", func(ctx context.Context, e sdk.Entry) (*sdk.FileOperationResult, error) {
		return e.(*sdk.File).Extract(ctx, "/out", "")
	})
	if err == nil || !strings.Contains(err.Error(), "failed") {
		t.Fatalf("Expected the extraction to fail, got %v", err)
	}
	if strings.Contains(buf.String(), "Done") {
		t.Errorf("Expected no success message, got %q", buf.String())
	}
}

func TestTaskOutcome(t *testing.T) {
	if err := taskOutcome("copy", events.ResultSuccess); err != nil {
		t.Errorf("Expected success to pass, got %v", err)
	}
	if err := taskOutcome("copy", events.ResultFailed); err == nil || err.Error() != "copy failed" {
		t.Errorf("Expected a failure error, got %v", err)
	}
	if err := taskOutcome("copy", ""); err == nil || !strings.Contains(err.Error(), "unknown") {
		t.Errorf("Expected an unknown outcome to be an error, got %v", err)
	}
}

func TestBackupCommands(t *testing.T) {
	buf := newTestBackend(t, false)
	ctx := context.Background()

	srv, err := Client.CreateServer(ctx, newCreateRequest("Saves", "saves", "custom", "sleep 60", "", "", 0))
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	dir, err := Client.Files().Get(ctx, srv.ID, "/")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := dir.UploadFile(ctx, "level.dat", strings.NewReader("level")); err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}

	if err := handleBackupCreate(ctx, srv.ID, "nightly", false); err != nil {
		t.Fatalf("handleBackupCreate failed: %v", err)
	}
	backups, err := Client.ListServerBackups(ctx, srv.ID)
	if err != nil || len(backups) != 1 {
		t.Fatalf("Expected one backup, got %v, %v", backups, err)
	}

	buf.Reset()
	if err := handleBackupInfo(ctx, backups[0].ID); err != nil {
		t.Fatalf("handleBackupInfo failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Comments: nightly") {
		t.Errorf("Unexpected backup info %q", buf.String())
	}

	if err := handleRestoreBackup(ctx, srv.ID, backups[0].ID); err != nil {
		t.Fatalf("handleRestoreBackup failed: %v", err)
	}
	if err := handleDeleteBackup(ctx, backups[0].ID); err != nil {
		t.Fatalf("handleDeleteBackup failed: %v", err)
	}
	if _, err := Client.GetBackup(ctx, backups[0].ID); err == nil {
		t.Errorf("Expected the backup to be gone")
	}
}

func TestBackupInspectCommands(t *testing.T) {
	buf := newTestBackend(t, false)
	ctx := context.Background()

	srv, err := Client.CreateServer(ctx, newCreateRequest("Inspect", "inspect", "custom", "sleep 60", "", "", 0))
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	dir, err := Client.Files().Get(ctx, srv.ID, "/")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := dir.UploadFile(ctx, "level.dat", strings.NewReader("level")); err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}
	if err := handleBackupCreate(ctx, srv.ID, "", false); err != nil {
		t.Fatalf("handleBackupCreate failed: %v", err)
	}
	backups, err := Client.ListServerBackups(ctx, srv.ID)
	if err != nil || len(backups) != 1 {
		t.Fatalf("Expected one backup, got %v, %v", backups, err)
	}
	id := backups[0].ID

	buf.Reset()
	if err := handleBackupTask(ctx, srv.ID); err != nil {
		t.Fatalf("handleBackupTask failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No backup running.") {
		t.Errorf("Unexpected task output %q", buf.String())
	}

	buf.Reset()
	if err := handleBackupFiles(ctx, id, sdk.BackupFileOptions{IncludeFiles: true}); err != nil {
		t.Fatalf("handleBackupFiles failed: %v", err)
	}
	if !strings.Contains(buf.String(), "level.dat") {
		t.Errorf("Expected level.dat in the listing, got %q", buf.String())
	}

	if _, err := dir.UploadFile(ctx, "new.txt", strings.NewReader("new")); err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}
	buf.Reset()
	err = handleCompare(ctx, func(ctx context.Context) (*sdk.BackupCompareResult, error) {
		return Client.CompareWithServer(ctx, srv.ID, id, sdk.BackupFileOptions{IncludeFiles: true, OnlyUpdates: true})
	})
	if err != nil {
		t.Fatalf("handleCompare failed: %v", err)
	}
	if !strings.Contains(buf.String(), "+ new.txt") || strings.Contains(buf.String(), "level.dat") {
		t.Errorf("Expected only new.txt as created, got %q", buf.String())
	}

	buf.Reset()
	if err := handleBackupPreview(ctx, srv.ID, sdk.BackupFileOptions{}); err != nil {
		t.Fatalf("handleBackupPreview failed: %v", err)
	}
	if !strings.Contains(buf.String(), "since "+id) {
		t.Errorf("Expected the preview to compare against %s, got %q", id, buf.String())
	}

	dest := filepath.Join(t.TempDir(), "level.dat")
	if err := handleBackupCat(ctx, srv.ID, id, "level.dat", dest); err != nil {
		t.Fatalf("handleBackupCat failed: %v", err)
	}
	if data, err := os.ReadFile(dest); err != nil || string(data) != "level" {
		t.Errorf("Expected level, got %q, %v", data, err)
	}

	buf.Reset()
	archive := filepath.Join(t.TempDir(), "export.zip")
	if err := handleBackupExport(ctx, id, archive); err != nil {
		t.Fatalf("handleBackupExport failed: %v", err)
	}
	if info, err := os.Stat(archive); err != nil || info.Size() == 0 {
		t.Errorf("Expected a non-empty archive, got %v", err)
	}
	if !strings.Contains(buf.String(), "Saved "+archive) {
		t.Errorf("Unexpected export output %q", buf.String())
	}
}

func TestServerConfigCommands(t *testing.T) {
	stop := "end"
	buf := newTestBackendWith(t, false, func(c *app.Container) {
		c.ServerManager.Defaults = sdk.GlobalServerConfig{StopCommand: &stop}
	})
	ctx := context.Background()

	srv, err := Client.CreateServer(ctx, newCreateRequest("Lobby", "lobby", "custom", "sleep 60", "", "", 0))
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}

	buf.Reset()
	if err := handleDefaults(ctx); err != nil {
		t.Fatalf("handleDefaults failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Stop command:     end") {
		t.Errorf("Unexpected defaults output %q", buf.String())
	}

	buf.Reset()
	if err := handleAction(ctx, srv.ID, "Config reloaded.", Client.ReloadConfig); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Config reloaded.") {
		t.Errorf("Unexpected reload output %q", buf.String())
	}

	if err := handleDelete(ctx, srv.ID, false); err != nil {
		t.Fatalf("handleDelete failed: %v", err)
	}
	buf.Reset()
	if err := handleImport(ctx, srv.Directory); err != nil {
		t.Fatalf("handleImport failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Server Lobby imported") {
		t.Errorf("Unexpected import output %q", buf.String())
	}
	servers, err := Client.ListServers(ctx)
	if err != nil || len(servers) != 1 || servers[0].Directory != srv.Directory {
		t.Errorf("Expected the directory registered again, got %+v, %v", servers, err)
	}
}

func TestPickBuild(t *testing.T) {
	if _, err := pickBuild(nil); err == nil {
		t.Errorf("Expected an error without builds")
	}
	builds := []sdk.ServerBuild{{Build: "1"}, {Build: "2", Recommended: true}, {Build: "3"}}
	if got, _ := pickBuild(builds); got != "2" {
		t.Errorf("Expected the recommended build 2, got %s", got)
	}
	if got, _ := pickBuild(builds[2:]); got != "3" {
		t.Errorf("Expected the newest build 3, got %s", got)
	}
}

func TestInstallCommands(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/paper", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"versions": []string{"1.21.1"}})
	})
	mux.HandleFunc("/paper/versions/1.21.1/builds", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"builds": []map[string]any{
			{"build": 129, "time": "2024-09-30T10:00:00Z", "channel": "experimental", "downloads": map[string]any{"application": map[string]any{"name": "paper.jar"}}},
			{"build": 130, "time": "2024-10-01T10:00:00Z", "channel": "default", "downloads": map[string]any{"application": map[string]any{"name": "paper.jar"}}},
		}})
	})
	mux.HandleFunc("/paper/versions/1.21.1/builds/130/downloads/paper.jar", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "paper-130")
	})
	upstream := httptest.NewServer(mux)
	t.Cleanup(upstream.Close)

	buf := newTestBackendWith(t, false, func(c *app.Container) {
		hc := loader.NewHTTPClient()
		hc.RetryMax = 0
		c.Loaders = loader.NewRegistry(hc, loader.Endpoints{Paper: upstream.URL + "/paper"})
		c.ServerManager.Builds = c.Loaders
	})
	ctx := context.Background()

	buf.Reset()
	if err := handleServerTypes(ctx); err != nil {
		t.Fatalf("handleServerTypes failed: %v", err)
	}
	if !strings.Contains(buf.String(), "- paper") {
		t.Errorf("Unexpected types output %q", buf.String())
	}

	buf.Reset()
	if err := handleServerBuilds(ctx, "paper", "1.21.1"); err != nil {
		t.Fatalf("handleServerBuilds failed: %v", err)
	}
	if !strings.Contains(buf.String(), "- 130") || !strings.Contains(buf.String(), "[recommended]") {
		t.Errorf("Unexpected builds output %q", buf.String())
	}

	srv, err := Client.CreateServer(ctx, newCreateRequest("Paper", "paper", "paper", "sleep 60", "", "", 0))
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	buf.Reset()
	if err := handleInstall(ctx, srv.ID, "paper", "1.21.1", ""); err != nil {
		t.Fatalf("handleInstall failed: %v", err)
	}
	if !strings.Contains(buf.String(), "build 130") || !strings.Contains(buf.String(), "Done") {
		t.Errorf("Unexpected install output %q", buf.String())
	}
	data, err := os.ReadFile(filepath.Join(srv.Directory, "server.jar"))
	if err != nil || string(data) != "paper-130" {
		t.Errorf("Expected the recommended build installed, got %q, %v", data, err)
	}

	buf.Reset()
	if err := handleRemoveBuild(ctx, srv.ID); err != nil {
		t.Fatalf("handleRemoveBuild failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No installer files found.") {
		t.Errorf("Unexpected remove-build output %q", buf.String())
	}
}
