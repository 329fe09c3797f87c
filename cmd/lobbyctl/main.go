package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"okeyonline/internal/client"
	"okeyonline/internal/realtime"
	roomUC "okeyonline/internal/usecase/room"
)

func main() {
	app := &cli.App{
		Name:  "lobbyctl",
		Usage: "talk to an OkeyOnline lobby server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://localhost:5000", EnvVars: []string{"LOBBY_SERVER"}},
			&cli.StringFlag{Name: "token", EnvVars: []string{"LOBBY_TOKEN"}, Usage: "bearer token from login"},
			&cli.DurationFlag{Name: "timeout", Value: 15 * time.Second},
		},
		Commands: []*cli.Command{
			{
				Name:      "register",
				ArgsUsage: "<username> <email> <password>",
				Action: withClient(3, func(ctx context.Context, c *client.Client, args cli.Args) (any, error) {
					return c.Register(ctx, args.Get(0), args.Get(1), args.Get(2))
				}),
			},
			{
				Name:      "login",
				ArgsUsage: "<email> <password>",
				Action: withClient(2, func(ctx context.Context, c *client.Client, args cli.Args) (any, error) {
					return c.Login(ctx, args.Get(0), args.Get(1))
				}),
			},
			{
				Name: "profile",
				Action: withClient(0, func(ctx context.Context, c *client.Client, _ cli.Args) (any, error) {
					return c.Profile(ctx)
				}),
			},
			{
				Name: "rooms",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "game-type"},
					&cli.StringFlag{Name: "status"},
					&cli.IntFlag{Name: "page", Value: 1},
				},
				Action: func(cctx *cli.Context) error {
					return run(cctx, 0, func(ctx context.Context, c *client.Client, _ cli.Args) (any, error) {
						return c.Rooms(ctx, client.RoomFilter{
							GameType: cctx.String("game-type"),
							Status:   cctx.String("status"),
							Page:     cctx.Int("page"),
						})
					})
				},
			},
			{
				Name:      "create-room",
				ArgsUsage: "<gameType>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name"},
					&cli.IntFlag{Name: "max-players"},
					&cli.Int64Flag{Name: "bet"},
					&cli.StringFlag{Name: "password"},
				},
				Action: func(cctx *cli.Context) error {
					return run(cctx, 1, func(ctx context.Context, c *client.Client, args cli.Args) (any, error) {
						return c.CreateRoom(ctx, roomUC.CreateRequest{
							Name:       cctx.String("name"),
							GameType:   args.Get(0),
							MaxPlayers: cctx.Int("max-players"),
							BetAmount:  cctx.Int64("bet"),
							Password:   cctx.String("password"),
						})
					})
				},
			},
			{
				Name:      "join",
				ArgsUsage: "<roomId>",
				Flags:     []cli.Flag{&cli.StringFlag{Name: "password"}},
				Action: func(cctx *cli.Context) error {
					return run(cctx, 1, func(ctx context.Context, c *client.Client, args cli.Args) (any, error) {
						return c.JoinRoom(ctx, args.Get(0), cctx.String("password"))
					})
				},
			},
			{
				Name:      "leave",
				ArgsUsage: "<roomId>",
				Action: withClient(1, func(ctx context.Context, c *client.Client, args cli.Args) (any, error) {
					return c.LeaveRoom(ctx, args.Get(0))
				}),
			},
			{
				Name:      "start",
				ArgsUsage: "<roomId>",
				Action: withClient(1, func(ctx context.Context, c *client.Client, args cli.Args) (any, error) {
					return c.StartGame(ctx, args.Get(0))
				}),
			},
			{
				Name:      "chat",
				Usage:     "send one message to a room channel",
				ArgsUsage: "<roomId> <message>",
				Action: withClient(2, func(ctx context.Context, c *client.Client, args cli.Args) (any, error) {
					return chat(ctx, c, args.Get(0), args.Get(1))
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type command func(ctx context.Context, c *client.Client, args cli.Args) (any, error)

func withClient(nargs int, fn command) cli.ActionFunc {
	return func(cctx *cli.Context) error { return run(cctx, nargs, fn) }
}

func run(cctx *cli.Context, nargs int, fn command) error {
	if cctx.NArg() != nargs {
		return cli.Exit(fmt.Sprintf("usage: lobbyctl %s %s", cctx.Command.Name, cctx.Command.ArgsUsage), 2)
	}

	ctx, cancel := context.WithTimeout(cctx.Context, cctx.Duration("timeout"))
	defer cancel()

	c := client.New(cctx.String("server"), client.WithToken(cctx.String("token")))
	out, err := fn(ctx, c, cctx.Args())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func chat(ctx context.Context, c *client.Client, roomID, text string) (any, error) {
	socket, err := c.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer socket.Close()

	if err = socket.Emit(realtime.EventJoinRoom, realtime.RoomPayload{RoomID: roomID}); err != nil {
		return nil, err
	}
	if _, err = socket.Await(ctx, realtime.EventJoinedRoom); err != nil {
		return nil, err
	}
	if err = socket.Emit(realtime.EventSendMessage, realtime.SendMessagePayload{RoomID: roomID, Message: text}); err != nil {
		return nil, err
	}

	for {
		env, err := socket.Next(ctx)
		if err != nil {
			return nil, err
		}
		switch env.Event {
		case realtime.EventMessageSent:
			return env, nil
		case realtime.EventError:
			return nil, fmt.Errorf("server error: %s", env.Data)
		}
	}
}
