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

	"okeyonline/internal/domain/user"
	errs "okeyonline/internal/errors"
)

const usersCollection = "okeyonline_users"

var withoutPassword = bson.D{{Key: "password_hash", Value: 0}}

type MongoUserStorage struct {
	db  *mongo.Database
	log *zap.SugaredLogger
	now func() time.Time
}

func NewMongoUserStorage(db *mongo.Database, log *zap.SugaredLogger) *MongoUserStorage {
	return &MongoUserStorage{db: db, log: log, now: time.Now}
}

func (m *MongoUserStorage) collection() *mongo.Collection {
	return m.db.Collection(usersCollection)
}

func (m *MongoUserStorage) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := m.collection().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "is_online", Value: 1}}},
		{Keys: bson.D{{Key: "level", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (m *MongoUserStorage) Create(ctx context.Context, u *user.User) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := m.collection().InsertOne(ctx, u)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.ErrUserExists
		}
		m.log.Errorf("failed to insert user %s: %v", u.Username, err)
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		u.ID = id
	}
	return nil
}

func (m *MongoUserStorage) findOne(ctx context.Context, filter bson.D, opts ...*options.FindOneOptions) (user.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result user.User
	err := m.collection().FindOne(ctx, filter, opts...).Decode(&result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return user.User{}, errs.ErrUserNotFound
	}
	if err != nil {
		m.log.Error(err)
		return user.User{}, err
	}
	return result, nil
}

func (m *MongoUserStorage) GetByID(ctx context.Context, id primitive.ObjectID) (user.User, error) {
	return m.findOne(ctx, bson.D{{Key: "_id", Value: id}}, options.FindOne().SetProjection(withoutPassword))
}

func (m *MongoUserStorage) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return m.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (m *MongoUserStorage) exists(ctx context.Context, filter bson.D) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := m.collection().CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		m.log.Error(err)
		return false, err
	}
	return n > 0, nil
}

func (m *MongoUserStorage) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	return m.exists(ctx, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "username", Value: username}},
		bson.D{{Key: "email", Value: email}},
	}}})
}

func (m *MongoUserStorage) ExistsByUsername(ctx context.Context, username string, except primitive.ObjectID) (bool, error) {
	return m.exists(ctx, bson.D{
		{Key: "username", Value: username},
		{Key: "_id", Value: bson.D{{Key: "$ne", Value: except}}},
	})
}

func (m *MongoUserStorage) updateByID(ctx context.Context, id primitive.ObjectID, update any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := m.collection().UpdateByID(ctx, id, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.ErrUserExists
		}
		m.log.Errorf("failed to update user %s: %v", id.Hex(), err)
		return err
	}
	if res.MatchedCount == 0 {
		return errs.ErrUserNotFound
	}
	return nil
}

func (m *MongoUserStorage) UpdateLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return m.updateByID(ctx, id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "last_login", Value: at},
		{Key: "is_online", Value: true},
		{Key: "updated_at", Value: at},
	}}})
}

func (m *MongoUserStorage) SetOnline(ctx context.Context, id primitive.ObjectID, online bool) error {
	return m.updateByID(ctx, id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "is_online", Value: online},
		{Key: "updated_at", Value: m.now()},
	}}})
}

func (m *MongoUserStorage) UpdateProfile(ctx context.Context, id primitive.ObjectID, username, avatar string) error {
	return m.updateByID(ctx, id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "username", Value: username},
		{Key: "avatar", Value: avatar},
		{Key: "updated_at", Value: m.now()},
	}}})
}

// RecordGame updates the counters and recomputes win_rate in one pipeline
// update so concurrent results for the same user cannot interleave.
func (m *MongoUserStorage) RecordGame(ctx context.Context, id primitive.ObjectID, won bool, score int) error {
	wonInc := 0
	if won {
		wonInc = 1
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "stats.games_played", Value: bson.D{{Key: "$add", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$stats.games_played", 0}}}, 1}}}},
			{Key: "stats.games_won", Value: bson.D{{Key: "$add", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$stats.games_won", 0}}}, wonInc}}}},
			{Key: "stats.total_score", Value: bson.D{{Key: "$add", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$stats.total_score", 0}}}, score}}}},
			{Key: "updated_at", Value: m.now()},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "stats.win_rate", Value: bson.D{{Key: "$multiply", Value: bson.A{
				bson.D{{Key: "$divide", Value: bson.A{"$stats.games_won", "$stats.games_played"}}},
				100,
			}}}},
		}}},
	}
	return m.updateByID(ctx, id, pipeline)
}
