package model

import "time"

// User はサービス利用ユーザーを表す。
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	LastLogin    time.Time
}
