package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kymoni/elimika/core/user"
	"github.com/kymoni/elimika/tests"

	. "github.com/kymoni/elimika/apps/api/echo"
)

func TestUserAPI_login(t *testing.T) {
	usr := testutil.CreateUser(t, usrRepo, "Login Larry", "larry", "larry@test.cd", "LePass123!", []string{user.RoleIQA}, true)
	testutil.CreateUser(t, usrRepo, "Gone Gary", "gary", "gary@test.cd", "LePass123!", nil, false)

	tests := []httpTest{
		{
			name: "empty credentials fail", method: http.MethodPost, path: "/v1/users/login",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"username": "this field is required", "password": "this field is required"}`),
		},
		{
			name: "wrong password fails", method: http.MethodPost, path: "/v1/users/login",
			body:     []byte(`{"username": "larry", "password": "nope"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "unknown user fails the same way", method: http.MethodPost, path: "/v1/users/login",
			body:     []byte(`{"username": "whoami", "password": "nope"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account is rejected", method: http.MethodPost, path: "/v1/users/login",
			body:     []byte(`{"username": "gary", "password": "LePass123!"}`),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("valid credentials return a token", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/login", []byte(`{"username": "larry", "password": "LePass123!"}`))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp LoginResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)

		// the token authenticates follow-up calls
		req, rec = newAuthRequest(http.MethodGet, "/v1/users/"+usr.ID, resp.Token)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		var got user.User
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, usr.ID, got.ID)
		assert.Equal(t, "larry", got.Username)
	})
}

func TestUserAPI_adminOnly(t *testing.T) {
	admin := testutil.CreateUser(t, usrRepo, "Admin Abe", "abe", "abe@test.cd", "LePass123!", user.AdminRoles, true)
	iqa := testutil.CreateUser(t, usrRepo, "Plain Pat", "pat", "pat@test.cd", "LePass123!", []string{user.RoleIQA}, true)

	t.Run("assessors cannot register users", func(t *testing.T) {
		body := []byte(`{"name": "New Nia", "username": "nia", "password": "LePass123!"}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/register", getToken(t, iqa), body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admins can register users", func(t *testing.T) {
		body := []byte(`{"name": "New Nia", "username": "nia", "password": "LePass123!", "roles": ["assessor:eqa"]}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/register", getToken(t, admin), body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var got user.User
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "nia", got.Username)
		assert.Equal(t, []string{user.RoleEQA}, got.Roles)
	})

	t.Run("listing users is admin only", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users", getToken(t, iqa))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, "/v1/users", getToken(t, admin))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		var users []user.User
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
		assert.NotEmpty(t, users)
	})

	t.Run("users cannot retrieve each other", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+admin.ID, getToken(t, iqa))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
