package domain

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleCertifier Role = "certifier"
	RoleNotary    Role = "notary"
	RoleAdmin     Role = "admin"
	RolePartner   Role = "partner"
)

type User struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
