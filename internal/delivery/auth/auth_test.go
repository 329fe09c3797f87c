package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"okeyonline/internal/domain/user"
	errs "okeyonline/internal/errors"
	"okeyonline/internal/mocks"
	authUC "okeyonline/internal/usecase/auth"
)

func newHandler() (*AuthHandler, *mocks.MockAuthUsecase) {
	uc := new(mocks.MockAuthUsecase)
	return NewAuthHandler(uc, zap.NewNop().Sugar()), uc
}

func TestRegister(t *testing.T) {
	h, uc := newHandler()
	uc.On("RegisterUser", mock.Anything, "weddy", "w@x.io", "secret1").
		Return(authUC.Result{Token: "tok", User: user.Summary{ID: "u1", Username: "weddy"}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"username":"weddy","email":"w@x.io","password":"secret1"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "tok", resp.Token)
	assert.Equal(t, "u1", resp.User.ID)
}

func TestRegisterDuplicate(t *testing.T) {
	h, uc := newHandler()
	uc.On("RegisterUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(authUC.Result{}, errs.ErrUserExists)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"username":"weddy","email":"w@x.io","password":"secret1"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"username or email is already in use"}`, rec.Body.String())
}

func TestRegisterMalformedJSON(t *testing.T) {
	h, uc := newHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"username":`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	uc.AssertNotCalled(t, "RegisterUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLoginUnknownEmailLooksLikeBadPassword(t *testing.T) {
	for name, ucErr := range map[string]error{
		"unknown email":  errs.ErrUserNotFound,
		"wrong password": errs.ErrWrongPassword,
	} {
		t.Run(name, func(t *testing.T) {
			h, uc := newHandler()
			uc.On("LoginUser", mock.Anything, "w@x.io", "nope").Return(authUC.Result{}, ucErr)

			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"w@x.io","password":"nope"}`))
			rec := httptest.NewRecorder()
			h.Login(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"success":false,"error":"invalid credentials"}`, rec.Body.String())
		})
	}
}

func TestLogin(t *testing.T) {
	h, uc := newHandler()
	uc.On("LoginUser", mock.Anything, "w@x.io", "secret1").
		Return(authUC.Result{Token: "tok", User: user.Summary{ID: "u1"}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"w@x.io","password":"secret1"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tok", resp.Token)
	assert.Equal(t, "Login successful", resp.Message)
}
