package user

import (
	"testing"

	"github.com/kymoni/elimika/core"
)

func TestNewUserValidate(t *testing.T) {
	validate, translator := core.NewValidator()
	RegisterValidations(validate, translator)

	tests := []struct {
		name    string
		usr     NewUser
		wantErr bool
	}{
		{
			name: "valid assessor",
			usr:  NewUser{Name: "Amina K", Username: "aminak", Email: "amina@test.test", Password: "LakeN4kuru!", Roles: []string{RoleIQA}},
		},
		{
			name:    "username or email required",
			usr:     NewUser{Name: "Amina K", Password: "LakeN4kuru!"},
			wantErr: true,
		},
		{
			name:    "unknown role",
			usr:     NewUser{Name: "Amina K", Username: "aminak", Password: "LakeN4kuru!", Roles: []string{"pirate:"}},
			wantErr: true,
		},
		{
			name:    "short password",
			usr:     NewUser{Name: "Amina K", Username: "aminak", Password: "Ab1!"},
			wantErr: true,
		},
		{
			name:    "all numeric password",
			usr:     NewUser{Name: "Amina K", Username: "aminak", Password: "1234567890"},
			wantErr: true,
		},
		{
			name:    "password too similar to username",
			usr:     NewUser{Name: "Amina K", Username: "aminakrules1", Password: "Aminakrules1!"},
			wantErr: true,
		},
		{
			name:    "missing complexity",
			usr:     NewUser{Name: "Amina K", Username: "aminak", Password: "alllowercase1"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.usr.Validate(validate)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUserRoles(t *testing.T) {
	usr := User{Roles: []string{RoleEQA}}
	if !usr.IsEQA() || usr.IsIQA() || usr.IsAdmin() {
		t.Errorf("role checks wrong for %v", usr.Roles)
	}
	if !usr.IsAssessor() {
		t.Errorf("EQA must count as assessor")
	}
	if MaxRolePriority([]string{RoleEQA, RoleAdmin}) != RolePriority(RoleAdmin) {
		t.Errorf("MaxRolePriority() should pick the admin role")
	}
}

func TestSetCheckPassword(t *testing.T) {
	var usr User
	if err := usr.SetPassword("LakeN4kuru!"); err != nil {
		t.Fatalf("SetPassword() failed: %v", err)
	}
	if err := usr.CheckPassword("LakeN4kuru!"); err != nil {
		t.Errorf("CheckPassword() failed on the right password: %v", err)
	}
	if err := usr.CheckPassword("wrong"); err == nil {
		t.Errorf("CheckPassword() accepted a wrong password")
	}
}
