package auth

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"okeyonline/internal/domain/user"
	errs "okeyonline/internal/errors"
	"okeyonline/internal/httpresponse"
	authUC "okeyonline/internal/usecase/auth"
	"okeyonline/internal/utils"
)

type AuthUsecase interface {
	RegisterUser(ctx context.Context, username, email, password string) (authUC.Result, error)
	LoginUser(ctx context.Context, email, password string) (authUC.Result, error)
}

type AuthHandler struct {
	usecaseHandler AuthUsecase
	log            *zap.SugaredLogger
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    user.Summary `json:"user"`
}

func NewAuthHandler(usecaseHandler AuthUsecase, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{usecaseHandler: usecaseHandler, log: log}
}

// Register creates an account and returns a token for it.
func (a *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		a.log.Warn("Register: bad request: ", err)
		httpresponse.WriteError(w, err)
		return
	}

	res, err := a.usecaseHandler.RegisterUser(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		a.logError("Register", err)
		httpresponse.WriteError(w, err)
		return
	}

	a.log.Infof("Register: new user %s (%s)", res.User.Username, res.User.ID)
	httpresponse.WriteJSON(w, http.StatusCreated, AuthResponse{
		Success: true,
		Message: "User registered successfully",
		Token:   res.Token,
		User:    res.User,
	})
}

func (a *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		a.log.Warn("Login: bad request: ", err)
		httpresponse.WriteError(w, err)
		return
	}

	res, err := a.usecaseHandler.LoginUser(r.Context(), req.Email, req.Password)
	if err != nil {
		a.logError("Login", err)
		// unknown email and wrong password look the same to the caller
		if errors.Is(err, errs.ErrUserNotFound) {
			err = errs.ErrWrongPassword
		}
		httpresponse.WriteError(w, err)
		return
	}

	httpresponse.WriteJSON(w, http.StatusOK, AuthResponse{
		Success: true,
		Message: "Login successful",
		Token:   res.Token,
		User:    res.User,
	})
}

func (a *AuthHandler) logError(op string, err error) {
	status, _ := httpresponse.StatusFromError(err)
	if status >= http.StatusInternalServerError {
		a.log.Errorf("%s: internal error: %v", op, err)
		return
	}
	a.log.Warnf("%s: %v", op, err)
}
