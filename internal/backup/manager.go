package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"craftdeck/internal/domain"
	"craftdeck/internal/server"
	"craftdeck/internal/tasks"

	"github.com/google/uuid"
)

const (
	TypeFull   = "full"
	SourceUser = "user"
)

type Manager struct {
	BackupsPath string
	Servers     *server.Manager
	Store       domain.BackupRepository

	mu      sync.Mutex
	running map[string]*domain.Backup
}

func NewManager(backupsPath string, servers *server.Manager, store domain.BackupRepository) *Manager {
	return &Manager{
		BackupsPath: backupsPath,
		Servers:     servers,
		Store:       store,
		running:     make(map[string]*domain.Backup),
	}
}

func (m *Manager) ListAllBackups() ([]domain.Backup, error) {
	return m.Store.ListBackups()
}

func (m *Manager) ListBackups(serverID string) ([]domain.Backup, error) {
	if _, err := m.Servers.GetServer(serverID); err != nil {
		return nil, err
	}
	return m.Store.ListServerBackups(serverID)
}

func (m *Manager) GetBackup(id string) (*domain.Backup, error) {
	b, err := m.Store.GetBackup(id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrBackupNotFound)
	}
	return b, nil
}

func (m *Manager) DeleteBackup(id string) error {
	b, err := m.GetBackup(id)
	if err != nil {
		return err
	}
	if err := os.Remove(b.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return m.Store.DeleteBackup(id)
}

// CreateBackup reserves a backup of the server and returns its record with
// the work that writes the archive. Only one backup per server runs at a
// time. Snapshots are not supported.
func (m *Manager) CreateBackup(serverID, comments string, snapshot bool) (*domain.Backup, tasks.Work, error) {
	if snapshot {
		return nil, nil, domain.ErrNoSnapshot
	}
	srv, err := m.Servers.GetServer(serverID)
	if err != nil {
		return nil, nil, err
	}

	name := srv.Name
	if name == "" {
		name = srv.ID
	}
	now := time.Now()
	id := uuid.NewString()
	fileName := fmt.Sprintf("%s-%s-%s.zip", sanitizeFileName(name), now.Format("20060102-150405"), id[:8])

	b := &domain.Backup{
		ID:       id,
		ServerID: serverID,
		Type:     TypeFull,
		Source:   SourceUser,
		Path:     filepath.Join(m.BackupsPath, fileName),
		Comments: comments,
		Created:  now,
	}

	m.mu.Lock()
	if m.running[serverID] != nil {
		m.mu.Unlock()
		return nil, nil, fmt.Errorf("%s: %w", serverID, domain.ErrBackupRunning)
	}
	m.running[serverID] = b
	m.mu.Unlock()

	work := func(ctx context.Context, report func(float64)) error {
		defer func() {
			m.mu.Lock()
			delete(m.running, serverID)
			m.mu.Unlock()
		}()

		if err := os.MkdirAll(m.BackupsPath, 0755); err != nil {
			return fmt.Errorf("could not create backups directory: %w", err)
		}
		stats, err := server.WriteZip(ctx, b.Path, srv.Directory, []string{srv.Directory}, report)
		if err != nil {
			return err
		}
		b.TotalFiles = stats.Files
		b.TotalFilesSize = stats.TotalSize
		b.FinalSize = stats.FinalSize
		if err := m.Store.SaveBackup(b); err != nil {
			return err
		}
		return m.Servers.Store.MarkBackedUp(serverID, b.Created)
	}
	return b, work, nil
}

// Running returns the backup being written for the server, or nil.
func (m *Manager) Running(serverID string) *domain.Backup {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[serverID]
}

// RestoreBackup returns the work that replaces the server's files with the
// backup's content. The caller makes sure the server is stopped.
func (m *Manager) RestoreBackup(serverID, backupID string) (tasks.Work, error) {
	srv, err := m.Servers.GetServer(serverID)
	if err != nil {
		return nil, err
	}
	b, err := m.GetBackup(backupID)
	if err != nil {
		return nil, err
	}
	if b.ServerID != serverID {
		return nil, fmt.Errorf("%s belongs to %s: %w", backupID, b.ServerID, domain.ErrBackupNotFound)
	}
	if _, err := os.Stat(b.Path); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Path, domain.ErrInvalidBackup)
	}

	return func(ctx context.Context, report func(float64)) error {
		entries, err := os.ReadDir(srv.Directory)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(srv.Directory, e.Name())); err != nil {
				return err
			}
		}
		if err := server.Unzip(ctx, b.Path, srv.Directory, report); err != nil {
			return fmt.Errorf("failed to unzip backup: %w", err)
		}
		return nil
	}, nil
}

func sanitizeFileName(name string) string {
	reg := regexp.MustCompile(`[^a-zA-Z0-9_.-]`)
	sanitized := reg.ReplaceAllString(name, "-")
	if len(sanitized) > 50 {
		sanitized = sanitized[:50]
	}
	return sanitized
}
