package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"okeyonline/internal/domain/room"
	errs "okeyonline/internal/errors"
)

const roomsCollection = "rooms"

type MongoRoomStorage struct {
	db  *mongo.Database
	log *zap.SugaredLogger
	now func() time.Time
}

func NewMongoRoomStorage(db *mongo.Database, log *zap.SugaredLogger) *MongoRoomStorage {
	return &MongoRoomStorage{db: db, log: log, now: time.Now}
}

func (g *MongoRoomStorage) collection() *mongo.Collection {
	return g.db.Collection(roomsCollection)
}

func (g *MongoRoomStorage) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := g.collection().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "game_type", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "created_by", Value: 1}}},
		{Keys: bson.D{{Key: "room_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "is_active", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create room indexes: %w", err)
	}
	return nil
}

func (g *MongoRoomStorage) Create(ctx context.Context, r *room.Room) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := g.collection().InsertOne(ctx, r)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.ErrRoomExists
		}
		g.log.Errorf("failed to insert room %s: %v", r.RoomID, err)
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		r.ID = id
	}
	g.log.Infof("room inserted successfully with id: %s", r.RoomID)
	return nil
}

func (g *MongoRoomStorage) RoomIDExists(ctx context.Context, roomID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := g.collection().CountDocuments(ctx, bson.D{{Key: "room_id", Value: roomID}}, options.Count().SetLimit(1))
	if err != nil {
		g.log.Error(err)
		return false, err
	}
	return n > 0, nil
}

func (g *MongoRoomStorage) GetByRoomID(ctx context.Context, roomID string) (room.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result room.Room
	err := g.collection().FindOne(ctx, bson.D{{Key: "room_id", Value: roomID}}).Decode(&result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return room.Room{}, errs.ErrRoomNotFound
	}
	if err != nil {
		g.log.Error(err)
		return room.Room{}, err
	}
	return result, nil
}

func (g *MongoRoomStorage) Update(ctx context.Context, r *room.Room) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	next := *r
	next.Version = r.Version + 1
	next.UpdatedAt = g.now()

	filter := bson.D{{Key: "room_id", Value: r.RoomID}, {Key: "version", Value: r.Version}}
	res, err := g.collection().ReplaceOne(ctx, filter, next)
	if err != nil {
		g.log.Errorf("failed to update room %s: %v", r.RoomID, err)
		return err
	}
	if res.MatchedCount == 0 {
		return errs.ErrVersionConflict
	}

	r.Version = next.Version
	r.UpdatedAt = next.UpdatedAt
	return nil
}

func (g *MongoRoomStorage) AppendChatMessage(ctx context.Context, roomID string, msg room.ChatMessage) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.D{
		{Key: "$push", Value: bson.D{{Key: "chat_messages", Value: bson.D{
			{Key: "$each", Value: bson.A{msg}},
			{Key: "$slice", Value: -room.MaxChatHistory},
		}}}},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: g.now()}}},
	}
	res, err := g.collection().UpdateOne(ctx, bson.D{{Key: "room_id", Value: roomID}}, update)
	if err != nil {
		g.log.Errorf("failed to append chat message to room %s: %v", roomID, err)
		return err
	}
	if res.MatchedCount == 0 {
		return errs.ErrRoomNotFound
	}
	return nil
}

func (g *MongoRoomStorage) find(ctx context.Context, filter bson.D, opts *options.FindOptions) ([]room.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := g.collection().Find(ctx, filter, opts)
	if err != nil {
		g.log.Error(err)
		return nil, err
	}
	defer cursor.Close(ctx)

	result := make([]room.Room, 0)
	for cursor.Next(ctx) {
		var r room.Room
		if err = cursor.Decode(&r); err != nil {
			g.log.Error(err)
			return nil, err
		}
		result = append(result, r)
	}
	return result, cursor.Err()
}

func (g *MongoRoomStorage) FindActive(ctx context.Context, f room.ListFilter) ([]room.Room, error) {
	filter := bson.D{{Key: "is_active", Value: true}}
	if f.Status != "" {
		filter = append(filter, bson.E{Key: "status", Value: f.Status})
	} else {
		filter = append(filter, bson.E{Key: "status", Value: bson.D{{Key: "$in", Value: bson.A{room.StatusWaiting, room.StatusPlaying}}}})
	}
	if f.GameType != "" {
		filter = append(filter, bson.E{Key: "game_type", Value: f.GameType})
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if f.Limit > 0 {
		page := max(f.Page, 1)
		opts.SetSkip(int64((page - 1) * f.Limit)).SetLimit(int64(f.Limit))
	}
	return g.find(ctx, filter, opts)
}

func (g *MongoRoomStorage) FindByMember(ctx context.Context, userID string) ([]room.Room, error) {
	filter := bson.D{
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "players", Value: userID}},
			bson.D{{Key: "spectators", Value: userID}},
		}},
		{Key: "is_active", Value: true},
	}
	return g.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}
