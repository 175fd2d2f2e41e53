package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Roles
const (
	// Admin (dashboard administration)
	RoleAdmin = "admin:"

	// Quality assurers
	RoleIQA = "assessor:iqa"
	RoleEQA = "assessor:eqa"
)

var (
	AdminRoles    = []string{RoleAdmin}
	AssessorRoles = []string{RoleIQA, RoleEQA}
	AllRoles      = append(append([]string{}, AdminRoles...), AssessorRoles...)

	rolePriorities = map[string]int{
		RoleAdmin: 30,
		RoleIQA:   20,
		RoleEQA:   10,
	}

	Roles = []Role{
		{Name: "External Quality Assurer", Value: RoleEQA},
		{Name: "Internal Quality Assurer", Value: RoleIQA},
		{Name: "Admin", Value: RoleAdmin},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password))
}

func (u User) hasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u User) IsAdmin() bool { return u.hasRole(RoleAdmin) }
func (u User) IsIQA() bool   { return u.hasRole(RoleIQA) }
func (u User) IsEQA() bool   { return u.hasRole(RoleEQA) }

// IsAssessor reports whether the user consumes the QA sampling workflow.
func (u User) IsAssessor() bool { return u.IsIQA() || u.IsEQA() }
