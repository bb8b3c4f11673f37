package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"craftdeck/internal/domain"
	"craftdeck/internal/server"
	"craftdeck/internal/storage"
	"craftdeck/pkg/sdk"

	"github.com/rs/zerolog"
)

func setup(t *testing.T) (*Manager, *domain.Server) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewGormStore(filepath.Join(dir, "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewGormStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	servers := server.NewManager(filepath.Join(dir, "servers"), store)
	srv, err := servers.CreateServer("s1", sdk.CreateServerRequest{Name: "Lobby", EnableLaunchCommand: true, LaunchCommand: "cat"})
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	os.WriteFile(filepath.Join(srv.Directory, "world.dat"), []byte("original"), 0644)

	return NewManager(filepath.Join(dir, "backups"), servers, store), srv
}

func noProgress(float64) {}

func TestCreateAndRestoreBackup(t *testing.T) {
	m, srv := setup(t)

	b, work, err := m.CreateBackup("s1", "before update", false)
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	if _, _, err := m.CreateBackup("s1", "", false); !errors.Is(err, domain.ErrBackupRunning) {
		t.Errorf("Expected ErrBackupRunning while the first is pending, got %v", err)
	}
	if err := work(context.Background(), noProgress); err != nil {
		t.Fatalf("backup work failed: %v", err)
	}

	saved, err := m.GetBackup(b.ID)
	if err != nil {
		t.Fatalf("GetBackup failed: %v", err)
	}
	if saved.TotalFiles != 2 || saved.FinalSize == 0 || saved.Comments != "before update" {
		t.Errorf("Unexpected backup record: %+v", saved)
	}
	if got, _ := m.Servers.GetServer("s1"); got.LastBackupAt == nil {
		t.Error("Expected the server to record its last backup time")
	}

	os.WriteFile(filepath.Join(srv.Directory, "world.dat"), []byte("broken"), 0644)
	os.WriteFile(filepath.Join(srv.Directory, "junk.log"), []byte("x"), 0644)

	restore, err := m.RestoreBackup("s1", b.ID)
	if err != nil {
		t.Fatalf("RestoreBackup failed: %v", err)
	}
	if err := restore(context.Background(), noProgress); err != nil {
		t.Fatalf("restore work failed: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(srv.Directory, "world.dat"))
	if string(data) != "original" {
		t.Errorf("Expected restored content, got %q", data)
	}
	if _, err := os.Stat(filepath.Join(srv.Directory, "junk.log")); !os.IsNotExist(err) {
		t.Errorf("Expected files newer than the backup to be gone, got %v", err)
	}

	if err := m.DeleteBackup(b.ID); err != nil {
		t.Fatalf("DeleteBackup failed: %v", err)
	}
	if _, err := os.Stat(saved.Path); !os.IsNotExist(err) {
		t.Errorf("Expected archive to be removed, got %v", err)
	}
}

func TestBackupRejections(t *testing.T) {
	m, _ := setup(t)

	if _, _, err := m.CreateBackup("s1", "", true); !errors.Is(err, domain.ErrNoSnapshot) {
		t.Errorf("Expected ErrNoSnapshot, got %v", err)
	}
	if _, _, err := m.CreateBackup("nope", "", false); !errors.Is(err, domain.ErrServerNotFound) {
		t.Errorf("Expected ErrServerNotFound, got %v", err)
	}
	if _, err := m.RestoreBackup("s1", "missing"); !errors.Is(err, domain.ErrBackupNotFound) {
		t.Errorf("Expected ErrBackupNotFound, got %v", err)
	}
}

func TestSanitizeFileName(t *testing.T) {
	if got := sanitizeFileName("My World/1"); got != "My-World-1" {
		t.Errorf("Expected My-World-1, got %s", got)
	}
}
