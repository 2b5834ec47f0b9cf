// internal/domain/access/entity.go
package access

import "time"

// Role is the authorization role of an identity
type Role string

const (
	RoleUnknown Role = ""
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
)

// Profile holds the role of an identity issued by the auth service
type Profile struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Role      Role      `gorm:"not null;size:20;default:'user'" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (Profile) TableName() string {
	return "profiles"
}

// IsAdmin reports whether the profile may use admin routes
func (p *Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}
