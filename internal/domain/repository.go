package domain

import "time"

type ServerRepository interface {
	SaveServer(srv *Server) error
	UpdateServer(srv *Server) error
	ListServers() ([]Server, error)
	GetServerByID(id string) (*Server, error)
	DeleteServer(id string) error
	UpdateStatus(id string, status string) error
	MarkLaunched(id string, at time.Time) error
	MarkBackedUp(id string, at time.Time) error
}

type UserRepository interface {
	CreateUser(user *User) error
	GetUserByUsername(username string) (*User, error)
	GetUserByID(id int) (*User, error)
	ListUsers() ([]User, error)
	DeleteUser(id int) error
	RecordLogin(id int, at time.Time, address string) error
}

type BackupRepository interface {
	SaveBackup(b *Backup) error
	GetBackup(id string) (*Backup, error)
	ListBackups() ([]Backup, error)
	ListServerBackups(serverID string) ([]Backup, error)
	DeleteBackup(id string) error
}

type Repository interface {
	ServerRepository
	UserRepository
	BackupRepository
}
