package storage

import (
	"craftdeck/internal/domain"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Server struct {
	ID              string `gorm:"primaryKey"`
	Name            string
	Type            string
	Directory       string `gorm:"uniqueIndex"`
	LaunchCommand   string
	StopCommand     string
	ShutdownTimeout int
	Status          string
	CreatedAt       time.Time
	LastLaunchedAt  *time.Time
	LastBackupAt    *time.Time
}

type User struct {
	ID          int    `gorm:"primaryKey;autoIncrement"`
	Username    string `gorm:"uniqueIndex"`
	Password    string
	Permission  int
	LastLogin   *time.Time
	LastAddress string
}

type Backup struct {
	ID             string `gorm:"primaryKey"`
	ServerID       string `gorm:"index"`
	Type           string
	Source         string
	Path           string
	Comments       string
	Created        time.Time
	TotalFiles     int
	TotalFilesSize int64
	FinalSize      int64
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(path string, logger zerolog.Logger) (*GormStore, error) {
	newLogger := gormlogger.New(
		log.New(logger, "", 0),
		gormlogger.Config{
			IgnoreRecordNotFoundError: true,
			LogLevel:                  gormlogger.Error,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(&Server{}, &User{}, &Backup{})
	if err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toDomainServer(gs Server) domain.Server {
	return domain.Server{
		ID:              gs.ID,
		Name:            gs.Name,
		Type:            gs.Type,
		Directory:       gs.Directory,
		LaunchCommand:   gs.LaunchCommand,
		StopCommand:     gs.StopCommand,
		ShutdownTimeout: gs.ShutdownTimeout,
		Status:          gs.Status,
		CreatedAt:       gs.CreatedAt,
		LastLaunchedAt:  gs.LastLaunchedAt,
		LastBackupAt:    gs.LastBackupAt,
	}
}

func fromDomainServer(srv *domain.Server) *Server {
	return &Server{
		ID:              srv.ID,
		Name:            srv.Name,
		Type:            srv.Type,
		Directory:       srv.Directory,
		LaunchCommand:   srv.LaunchCommand,
		StopCommand:     srv.StopCommand,
		ShutdownTimeout: srv.ShutdownTimeout,
		Status:          srv.Status,
		CreatedAt:       srv.CreatedAt,
		LastLaunchedAt:  srv.LastLaunchedAt,
		LastBackupAt:    srv.LastBackupAt,
	}
}

func (s *GormStore) SaveServer(srv *domain.Server) error {
	return s.db.Create(fromDomainServer(srv)).Error
}

func (s *GormStore) UpdateServer(srv *domain.Server) error {
	return s.db.Save(fromDomainServer(srv)).Error
}

func (s *GormStore) ListServers() ([]domain.Server, error) {
	var gormServers []Server
	if err := s.db.Order("created_at").Find(&gormServers).Error; err != nil {
		return nil, err
	}

	servers := make([]domain.Server, 0, len(gormServers))
	for _, gs := range gormServers {
		servers = append(servers, toDomainServer(gs))
	}
	return servers, nil
}

func (s *GormStore) GetServerByID(id string) (*domain.Server, error) {
	var gormServer Server
	result := s.db.First(&gormServer, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying server: %w", result.Error)
	}

	srv := toDomainServer(gormServer)
	return &srv, nil
}

func (s *GormStore) DeleteServer(id string) error {
	return s.db.Delete(&Server{}, "id = ?", id).Error
}

func (s *GormStore) UpdateStatus(id string, status string) error {
	return s.db.Model(&Server{}).Where("id = ?", id).Update("status", status).Error
}

func (s *GormStore) MarkLaunched(id string, at time.Time) error {
	return s.db.Model(&Server{}).Where("id = ?", id).Update("last_launched_at", at).Error
}

func (s *GormStore) MarkBackedUp(id string, at time.Time) error {
	return s.db.Model(&Server{}).Where("id = ?", id).Update("last_backup_at", at).Error
}

func toDomainUser(u User) domain.User {
	return domain.User{
		ID:          u.ID,
		Username:    u.Username,
		Password:    u.Password,
		Permission:  u.Permission,
		LastLogin:   u.LastLogin,
		LastAddress: u.LastAddress,
	}
}

func (s *GormStore) CreateUser(user *domain.User) error {
	gu := &User{Username: user.Username, Password: user.Password, Permission: user.Permission}
	if err := s.db.Create(gu).Error; err != nil {
		return err
	}
	user.ID = gu.ID
	return nil
}

func (s *GormStore) GetUserByUsername(username string) (*domain.User, error) {
	return s.findUser("username = ?", username)
}

func (s *GormStore) GetUserByID(id int) (*domain.User, error) {
	return s.findUser("id = ?", id)
}

func (s *GormStore) findUser(query string, arg interface{}) (*domain.User, error) {
	var gu User
	result := s.db.First(&gu, query, arg)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying user: %w", result.Error)
	}
	u := toDomainUser(gu)
	return &u, nil
}

func (s *GormStore) ListUsers() ([]domain.User, error) {
	var gormUsers []User
	if err := s.db.Order("id").Find(&gormUsers).Error; err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(gormUsers))
	for _, gu := range gormUsers {
		users = append(users, toDomainUser(gu))
	}
	return users, nil
}

func (s *GormStore) DeleteUser(id int) error {
	result := s.db.Delete(&User{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *GormStore) RecordLogin(id int, at time.Time, address string) error {
	return s.db.Model(&User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_login":   at,
		"last_address": address,
	}).Error
}

func toDomainBackup(b Backup) domain.Backup {
	return domain.Backup{
		ID:             b.ID,
		ServerID:       b.ServerID,
		Type:           b.Type,
		Source:         b.Source,
		Path:           b.Path,
		Comments:       b.Comments,
		Created:        b.Created,
		TotalFiles:     b.TotalFiles,
		TotalFilesSize: b.TotalFilesSize,
		FinalSize:      b.FinalSize,
	}
}

func (s *GormStore) SaveBackup(b *domain.Backup) error {
	err := s.db.Create(&Backup{
		ID:             b.ID,
		ServerID:       b.ServerID,
		Type:           b.Type,
		Source:         b.Source,
		Path:           b.Path,
		Comments:       b.Comments,
		Created:        b.Created,
		TotalFiles:     b.TotalFiles,
		TotalFilesSize: b.TotalFilesSize,
		FinalSize:      b.FinalSize,
	}).Error
	if err != nil {
		return err
	}
	return s.db.Model(&Server{}).Where("id = ?", b.ServerID).Update("last_backup_at", b.Created).Error
}

func (s *GormStore) GetBackup(id string) (*domain.Backup, error) {
	var gb Backup
	result := s.db.First(&gb, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying backup: %w", result.Error)
	}
	b := toDomainBackup(gb)
	return &b, nil
}

func (s *GormStore) ListBackups() ([]domain.Backup, error) {
	return s.listBackups(s.db)
}

func (s *GormStore) ListServerBackups(serverID string) ([]domain.Backup, error) {
	return s.listBackups(s.db.Where("server_id = ?", serverID))
}

func (s *GormStore) listBackups(q *gorm.DB) ([]domain.Backup, error) {
	var gormBackups []Backup
	if err := q.Order("created").Find(&gormBackups).Error; err != nil {
		return nil, err
	}
	backups := make([]domain.Backup, 0, len(gormBackups))
	for _, gb := range gormBackups {
		backups = append(backups, toDomainBackup(gb))
	}
	return backups, nil
}

func (s *GormStore) DeleteBackup(id string) error {
	return s.db.Delete(&Backup{}, "id = ?", id).Error
}
