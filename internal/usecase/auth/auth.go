package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	userDomain "okeyonline/internal/domain/user"
	errs "okeyonline/internal/errors"
)

type TokenIssuer interface {
	Generate(userID, username string) (string, error)
}

type AuthUsecaseHandler struct {
	users      userDomain.Repository
	tokens     TokenIssuer
	bcryptCost int
	log        *zap.SugaredLogger
	now        func() time.Time
}

func NewAuthUsecaseHandler(users userDomain.Repository, tokens TokenIssuer, bcryptCost int, log *zap.SugaredLogger) *AuthUsecaseHandler {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthUsecaseHandler{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		log:        log,
		now:        time.Now,
	}
}

type Result struct {
	Token string             `json:"token"`
	User  userDomain.Summary `json:"user"`
}

func (a *AuthUsecaseHandler) RegisterUser(ctx context.Context, username, email, password string) (Result, error) {
	username = strings.TrimSpace(username)
	email = userDomain.NormalizeEmail(email)

	if err := userDomain.ValidateRegistration(username, email, password); err != nil {
		return Result{}, err
	}

	exists, err := a.users.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return Result{}, errs.ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return Result{}, fmt.Errorf("%w: password is too long", errs.ErrValidation)
		}
		return Result{}, err
	}

	u := userDomain.New(username, email, string(hash), a.now())
	if err = a.users.Create(ctx, &u); err != nil {
		return Result{}, err
	}
	a.log.Infof("registered user %s (%s)", u.Username, u.ID.Hex())

	return a.issue(u)
}

func (a *AuthUsecaseHandler) LoginUser(ctx context.Context, email, password string) (Result, error) {
	email = userDomain.NormalizeEmail(email)
	if email == "" || password == "" {
		return Result{}, fmt.Errorf("%w: email and password are required", errs.ErrValidation)
	}

	u, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		return Result{}, err
	}

	if err = bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Result{}, errs.ErrWrongPassword
	}

	now := a.now()
	if err = a.users.UpdateLogin(ctx, u.ID, now); err != nil {
		return Result{}, err
	}
	u.LastLogin = now
	u.IsOnline = true

	return a.issue(u)
}

func (a *AuthUsecaseHandler) issue(u userDomain.User) (Result, error) {
	signed, err := a.tokens.Generate(u.ID.Hex(), u.Username)
	if err != nil {
		a.log.Errorf("failed to sign token for %s: %v", u.ID.Hex(), err)
		return Result{}, err
	}
	return Result{Token: signed, User: u.Summary()}, nil
}
