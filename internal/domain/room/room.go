package room

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"

	errs "okeyonline/internal/errors"
)

type GameType string

const (
	GameOkey  GameType = "okey"
	GameBatak GameType = "batak"
	GameTavla GameType = "tavla"
	GamePisti GameType = "pisti"
)

var GameTypes = []GameType{GameOkey, GameBatak, GameTavla, GamePisti}

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusPlaying   Status = "playing"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
)

var Statuses = []Status{StatusWaiting, StatusPlaying, StatusFinished, StatusCancelled}

// Seats are handed out in join order.
var Seats = []string{"top", "right", "bottom", "left"}

const (
	MinPlayers        = 2
	MaxPlayers        = 4
	DefaultMaxPlayers = 4
	MinBet            = 10
	MaxBet            = 10000
	DefaultBet        = 100
	MaxNameLength     = 50
	DefaultTimeLimit  = 30
	MaxChatHistory    = 50
)

type Room struct {
	ID           primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	RoomID       string             `json:"roomId" bson:"room_id"`
	Name         string             `json:"name" bson:"name"`
	GameType     GameType           `json:"gameType" bson:"game_type"`
	Players      []string           `json:"players" bson:"players"`
	MaxPlayers   int                `json:"maxPlayers" bson:"max_players"`
	Status       Status             `json:"status" bson:"status"`
	BetAmount    int64              `json:"betAmount" bson:"bet_amount"`
	Settings     Settings           `json:"settings" bson:"settings"`
	CreatedBy    string             `json:"createdBy" bson:"created_by"`
	CurrentGame  *Game              `json:"currentGame,omitempty" bson:"current_game,omitempty"`
	Spectators   []string           `json:"spectators" bson:"spectators"`
	ChatMessages []ChatMessage      `json:"chatMessages" bson:"chat_messages"`
	Statistics   Statistics         `json:"statistics" bson:"statistics"`
	IsActive     bool               `json:"isActive" bson:"is_active"`
	PasswordHash string             `json:"-" bson:"password_hash,omitempty"`
	Version      int64              `json:"version" bson:"version"`
	CreatedAt    time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time          `json:"updatedAt" bson:"updated_at"`
}

type Settings struct {
	TimeLimit       int            `json:"timeLimit" bson:"time_limit"`
	AutoStart       bool           `json:"autoStart" bson:"auto_start"`
	AllowSpectators bool           `json:"allowSpectators" bson:"allow_spectators"`
	PrivateRoom     bool           `json:"privateRoom" bson:"private_room"`
	Extra           map[string]any `json:"extra,omitempty" bson:"extra,omitempty"`
}

// SettingsInput is the client supplied part of Settings; nil fields keep defaults.
type SettingsInput struct {
	TimeLimit       *int           `json:"timeLimit,omitempty"`
	AutoStart       *bool          `json:"autoStart,omitempty"`
	AllowSpectators *bool          `json:"allowSpectators,omitempty"`
	PrivateRoom     *bool          `json:"privateRoom,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

type Game struct {
	GameID    string         `json:"gameId" bson:"game_id"`
	StartedAt time.Time      `json:"startedAt" bson:"started_at"`
	EndedAt   *time.Time     `json:"endedAt,omitempty" bson:"ended_at,omitempty"`
	Players   []GamePlayer   `json:"players" bson:"players"`
	GameData  map[string]any `json:"gameData" bson:"game_data"`
	Winner    string         `json:"winner,omitempty" bson:"winner,omitempty"`
}

type GamePlayer struct {
	UserID   string `json:"userId" bson:"user_id"`
	Position string `json:"position" bson:"position"`
	Score    int    `json:"score" bson:"score"`
	IsReady  bool   `json:"isReady" bson:"is_ready"`
}

type Statistics struct {
	TotalGames      int     `json:"totalGames" bson:"total_games"`
	TotalPlayers    int     `json:"totalPlayers" bson:"total_players"`
	AverageGameTime float64 `json:"averageGameTime" bson:"average_game_time"`
	TotalBetAmount  int64   `json:"totalBetAmount" bson:"total_bet_amount"`
}

type CreateParams struct {
	Name         string
	GameType     GameType
	MaxPlayers   int
	BetAmount    int64
	Settings     *SettingsInput
	PasswordHash string
}

type ListFilter struct {
	GameType GameType
	Status   Status
	Page     int
	Limit    int
}

type Repository interface {
	Create(ctx context.Context, r *Room) error
	RoomIDExists(ctx context.Context, roomID string) (bool, error)
	GetByRoomID(ctx context.Context, roomID string) (Room, error)
	// Update stores r if the stored version still equals r.Version and
	// bumps r.Version on success. A stale version yields ErrVersionConflict.
	Update(ctx context.Context, r *Room) error
	AppendChatMessage(ctx context.Context, roomID string, msg ChatMessage) error
	FindActive(ctx context.Context, f ListFilter) ([]Room, error)
	FindByMember(ctx context.Context, userID string) ([]Room, error)
}

func ValidGameType(t GameType) bool { return slices.Contains(GameTypes, t) }

func ValidStatus(s Status) bool { return slices.Contains(Statuses, s) }

func DefaultSettings() Settings {
	return Settings{
		TimeLimit:       DefaultTimeLimit,
		AutoStart:       true,
		AllowSpectators: true,
	}
}

func (in *SettingsInput) apply(s Settings) Settings {
	if in == nil {
		return s
	}
	if in.TimeLimit != nil && *in.TimeLimit > 0 {
		s.TimeLimit = *in.TimeLimit
	}
	if in.AutoStart != nil {
		s.AutoStart = *in.AutoStart
	}
	if in.AllowSpectators != nil {
		s.AllowSpectators = *in.AllowSpectators
	}
	if in.PrivateRoom != nil {
		s.PrivateRoom = *in.PrivateRoom
	}
	if len(in.Extra) > 0 {
		s.Extra = in.Extra
	}
	return s
}

// New validates p and builds a waiting room owned by creator. Zero
// MaxPlayers, BetAmount and Name fall back to their defaults.
func New(roomID, creator string, p CreateParams, now time.Time) (Room, error) {
	if !ValidGameType(p.GameType) {
		return Room{}, fmt.Errorf("%w: gameType must be one of okey, batak, tavla, pisti", errs.ErrValidation)
	}
	if p.MaxPlayers == 0 {
		p.MaxPlayers = DefaultMaxPlayers
	}
	if p.MaxPlayers < MinPlayers || p.MaxPlayers > MaxPlayers {
		return Room{}, fmt.Errorf("%w: maxPlayers must be between %d and %d", errs.ErrValidation, MinPlayers, MaxPlayers)
	}
	if p.BetAmount == 0 {
		p.BetAmount = DefaultBet
	}
	if p.BetAmount < MinBet || p.BetAmount > MaxBet {
		return Room{}, fmt.Errorf("%w: betAmount must be between %d and %d", errs.ErrValidation, MinBet, MaxBet)
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = defaultName(p.GameType)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return Room{}, fmt.Errorf("%w: name must be at most %d characters", errs.ErrValidation, MaxNameLength)
	}

	settings := p.Settings.apply(DefaultSettings())
	if p.PasswordHash != "" {
		settings.PrivateRoom = true
	}

	return Room{
		RoomID:       roomID,
		Name:         name,
		GameType:     p.GameType,
		Players:      []string{},
		MaxPlayers:   p.MaxPlayers,
		Status:       StatusWaiting,
		BetAmount:    p.BetAmount,
		Settings:     settings,
		CreatedBy:    creator,
		Spectators:   []string{},
		ChatMessages: []ChatMessage{},
		IsActive:     true,
		PasswordHash: p.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func defaultName(t GameType) string {
	s := string(t)
	return strings.ToUpper(s[:1]) + s[1:] + " Salonu"
}

func (r *Room) CurrentPlayerCount() int { return len(r.Players) }

func (r *Room) AvailableSlots() int { return max(r.MaxPlayers-len(r.Players), 0) }

func (r *Room) IsFull() bool { return len(r.Players) >= r.MaxPlayers }

func (r *Room) CanStartGame() bool {
	return len(r.Players) >= MinPlayers && r.Status == StatusWaiting
}

func (r *Room) HasPlayer(userID string) bool { return slices.Contains(r.Players, userID) }

func (r *Room) HasSpectator(userID string) bool { return slices.Contains(r.Spectators, userID) }

func (r *Room) IsPrivate() bool { return r.PasswordHash != "" || r.Settings.PrivateRoom }

func (r *Room) joinable() bool {
	return r.IsActive && r.Status != StatusCancelled && r.Status != StatusFinished
}

func (r *Room) AddPlayer(userID string) error {
	if !r.joinable() {
		return errs.ErrInvalidTransition
	}
	if r.HasPlayer(userID) {
		return errs.ErrAlreadyInRoom
	}
	if r.IsFull() {
		return errs.ErrRoomFull
	}
	r.Players = append(r.Players, userID)
	r.Spectators = slices.DeleteFunc(r.Spectators, func(id string) bool { return id == userID })
	return nil
}

// RemovePlayer reports whether userID was seated.
func (r *Room) RemovePlayer(userID string) bool {
	n := len(r.Players)
	r.Players = slices.DeleteFunc(r.Players, func(id string) bool { return id == userID })
	return len(r.Players) != n
}

func (r *Room) AddSpectator(userID string) error {
	if !r.joinable() {
		return errs.ErrInvalidTransition
	}
	if !r.Settings.AllowSpectators {
		return errs.ErrSpectatorsDisabled
	}
	if r.HasPlayer(userID) || r.HasSpectator(userID) {
		return errs.ErrAlreadyInRoom
	}
	r.Spectators = append(r.Spectators, userID)
	return nil
}

func (r *Room) RemoveSpectator(userID string) bool {
	n := len(r.Spectators)
	r.Spectators = slices.DeleteFunc(r.Spectators, func(id string) bool { return id == userID })
	return len(r.Spectators) != n
}

func (r *Room) StartGame(gameID string, now time.Time) error {
	if r.Status != StatusWaiting || !r.IsActive {
		return errs.ErrInvalidTransition
	}
	if len(r.Players) < MinPlayers {
		return errs.ErrNotEnoughPlayers
	}
	if len(r.Players) > len(Seats) {
		return fmt.Errorf("%w: at most %d players can be seated", errs.ErrValidation, len(Seats))
	}

	players := make([]GamePlayer, len(r.Players))
	for i, id := range r.Players {
		players[i] = GamePlayer{UserID: id, Position: Seats[i], IsReady: true}
	}

	r.Status = StatusPlaying
	r.CurrentGame = &Game{
		GameID:    gameID,
		StartedAt: now,
		Players:   players,
		GameData:  map[string]any{},
	}
	r.Statistics.TotalPlayers += len(players)
	r.Statistics.TotalBetAmount += r.BetAmount * int64(len(players))
	return nil
}

// EndGame applies finalScores to seated players; players missing from the
// map score 0.
func (r *Room) EndGame(winnerID string, finalScores map[string]int, now time.Time) error {
	if r.Status != StatusPlaying || r.CurrentGame == nil {
		return errs.ErrInvalidTransition
	}
	if !r.CurrentGame.seated(winnerID) {
		return fmt.Errorf("%w: winner must be a seated player", errs.ErrValidation)
	}

	for i := range r.CurrentGame.Players {
		p := &r.CurrentGame.Players[i]
		p.Score = finalScores[p.UserID]
	}
	r.CurrentGame.Winner = winnerID
	ended := now
	r.CurrentGame.EndedAt = &ended

	r.Status = StatusFinished
	r.Statistics.TotalGames++
	minutes := now.Sub(r.CurrentGame.StartedAt).Minutes()
	n := float64(r.Statistics.TotalGames)
	r.Statistics.AverageGameTime += (minutes - r.Statistics.AverageGameTime) / n
	return nil
}

func (r *Room) Cancel() error {
	if r.Status != StatusWaiting {
		return errs.ErrInvalidTransition
	}
	r.Status = StatusCancelled
	r.IsActive = false
	return nil
}

// AddChatMessage appends msg and keeps the last MaxChatHistory entries.
func (r *Room) AddChatMessage(msg ChatMessage) {
	r.ChatMessages = append(r.ChatMessages, msg)
	if over := len(r.ChatMessages) - MaxChatHistory; over > 0 {
		r.ChatMessages = slices.Clone(r.ChatMessages[over:])
	}
}

func (g *Game) seated(userID string) bool {
	for _, p := range g.Players {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func (r Room) Clone() Room {
	c := r
	c.Players = slices.Clone(r.Players)
	c.Spectators = slices.Clone(r.Spectators)
	c.ChatMessages = slices.Clone(r.ChatMessages)
	if r.Settings.Extra != nil {
		c.Settings.Extra = cloneMap(r.Settings.Extra)
	}
	if r.CurrentGame != nil {
		g := *r.CurrentGame
		g.Players = slices.Clone(r.CurrentGame.Players)
		g.GameData = cloneMap(r.CurrentGame.GameData)
		if r.CurrentGame.EndedAt != nil {
			ended := *r.CurrentGame.EndedAt
			g.EndedAt = &ended
		}
		c.CurrentGame = &g
	}
	return c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// View is the public representation of a room with the derived fields.
type View struct {
	Room
	CurrentPlayerCount int  `json:"currentPlayerCount"`
	AvailableSlots     int  `json:"availableSlots"`
	IsFull             bool `json:"isFull"`
	CanStartGame       bool `json:"canStartGame"`
	HasPassword        bool `json:"hasPassword"`
}

func (r Room) View() View {
	return View{
		Room:               r,
		CurrentPlayerCount: r.CurrentPlayerCount(),
		AvailableSlots:     r.AvailableSlots(),
		IsFull:             r.IsFull(),
		CanStartGame:       r.CanStartGame(),
		HasPassword:        r.PasswordHash != "",
	}
}
