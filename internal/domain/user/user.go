package user

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"

	errs "okeyonline/internal/errors"
)

const (
	DefaultGoldCoins  = 1000
	DefaultLevel      = 1
	MinUsernameLength = 3
	MaxUsernameLength = 20
	MinPasswordLength = 6
	MaxAvatarLength   = 512

	avatarBaseURL = "https://api.dicebear.com/7.x/avataaars/svg?seed="
)

var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

type User struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Username     string             `json:"username" bson:"username"`
	Email        string             `json:"email" bson:"email"`
	PasswordHash string             `json:"-" bson:"password_hash,omitempty"`
	Avatar       string             `json:"avatar" bson:"avatar"`
	GoldCoins    int64              `json:"goldCoins" bson:"gold_coins"`
	Level        int                `json:"level" bson:"level"`
	Stats        Statistic          `json:"stats" bson:"stats"`
	IsOnline     bool               `json:"isOnline" bson:"is_online"`
	LastLogin    time.Time          `json:"lastLogin" bson:"last_login"`
	CreatedAt    time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time          `json:"updatedAt" bson:"updated_at"`
}

type Statistic struct {
	GamesPlayed int     `json:"gamesPlayed" bson:"games_played"`
	GamesWon    int     `json:"gamesWon" bson:"games_won"`
	TotalScore  int     `json:"totalScore" bson:"total_score"`
	WinRate     float64 `json:"winRate" bson:"win_rate"`
}

// Summary is the user block returned together with a token.
type Summary struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar"`
	GoldCoins int64  `json:"goldCoins"`
	Level     int    `json:"level"`
}

type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Avatar    string    `json:"avatar"`
	GoldCoins int64     `json:"goldCoins"`
	Level     int       `json:"level"`
	CreatedAt time.Time `json:"createdAt"`
}

type StatsView struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Level    int       `json:"level"`
	Stats    Statistic `json:"stats"`
}

// Repository is implemented by the MongoDB and in-memory user storages.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id primitive.ObjectID) (User, error)
	// GetByEmail is the only lookup that returns the password hash.
	GetByEmail(ctx context.Context, email string) (User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string, except primitive.ObjectID) (bool, error)
	UpdateLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error
	SetOnline(ctx context.Context, id primitive.ObjectID, online bool) error
	UpdateProfile(ctx context.Context, id primitive.ObjectID, username, avatar string) error
	RecordGame(ctx context.Context, id primitive.ObjectID, won bool, score int) error
}

// New builds a user with the registration defaults applied.
func New(username, email, passwordHash string, now time.Time) User {
	return User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Avatar:       DefaultAvatar(username),
		GoldCoins:    DefaultGoldCoins,
		Level:        DefaultLevel,
		LastLogin:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func DefaultAvatar(username string) string {
	return avatarBaseURL + url.QueryEscape(username)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return fmt.Errorf("%w: username must be between %d and %d characters", errs.ErrValidation, MinUsernameLength, MaxUsernameLength)
	}
	return nil
}

// ValidateRegistration expects username and email to be normalized already.
func ValidateRegistration(username, email, password string) error {
	if username == "" || email == "" || password == "" {
		return fmt.Errorf("%w: username, email and password are required", errs.ErrValidation)
	}
	if err := ValidateUsername(username); err != nil {
		return err
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: email address is not valid", errs.ErrValidation)
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", errs.ErrValidation, MinPasswordLength)
	}
	return nil
}

func ValidateAvatar(avatar string) error {
	if avatar == "" || len(avatar) > MaxAvatarLength {
		return fmt.Errorf("%w: avatar must be a non-empty URL up to %d characters", errs.ErrValidation, MaxAvatarLength)
	}
	u, err := url.Parse(avatar)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: avatar must be an http(s) URL", errs.ErrValidation)
	}
	return nil
}

// Record applies one finished game to the statistics.
func (s *Statistic) Record(won bool, score int) {
	s.GamesPlayed++
	if won {
		s.GamesWon++
	}
	s.TotalScore += score
	s.WinRate = WinRate(s.GamesWon, s.GamesPlayed)
}

// WinRate is a percentage; a user without games has a 0% win rate.
func WinRate(won, played int) float64 {
	if played <= 0 {
		return 0
	}
	return float64(won) / float64(played) * 100
}

func (u User) Summary() Summary {
	return Summary{
		ID:        u.ID.Hex(),
		Username:  u.Username,
		Email:     u.Email,
		Avatar:    u.Avatar,
		GoldCoins: u.GoldCoins,
		Level:     u.Level,
	}
}

func (u User) Profile() Profile {
	return Profile{
		ID:        u.ID.Hex(),
		Username:  u.Username,
		Email:     u.Email,
		Avatar:    u.Avatar,
		GoldCoins: u.GoldCoins,
		Level:     u.Level,
		CreatedAt: u.CreatedAt,
	}
}

func (u User) StatsView() StatsView {
	return StatsView{ID: u.ID.Hex(), Username: u.Username, Level: u.Level, Stats: u.Stats}
}
