package domain

import "time"

type User struct {
	ID          int        `json:"id"`
	Username    string     `json:"name"`
	Password    string     `json:"-"`
	Permission  int        `json:"permission"`
	LastLogin   *time.Time `json:"last_login"`
	LastAddress string     `json:"last_address"`
}

const PermissionAdmin = 100
