package presence

import "context"

type OnlineUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Store is the server-side presence registry. A user may hold several
// connections; Connect and Disconnect report the first and last one.
type Store interface {
	Connect(ctx context.Context, u OnlineUser) (first bool, err error)
	Disconnect(ctx context.Context, userID string) (last bool, err error)
	Online(ctx context.Context) ([]OnlineUser, error)
	JoinChannel(ctx context.Context, channel string, u OnlineUser) error
	LeaveChannel(ctx context.Context, channel, userID string) error
	ChannelMembers(ctx context.Context, channel string) ([]OnlineUser, error)
}
