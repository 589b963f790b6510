// Package mongostore は MongoDB を使った user.Store 実装です。
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/yourusername/member-gate/internal/user"
)

const (
	// CollectionName はユーザーを保存するコレクション名です。
	CollectionName = "users"

	maxPoolSize    = 20
	connectTimeout = 10 * time.Second
)

type document struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	Password  string             `bson:"password"`
	CreatedAt time.Time          `bson:"created_at"`
}

func (d *document) toUser() *user.User {
	return &user.User{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.Password,
		CreatedAt:    d.CreatedAt,
	}
}

// Connect は MongoDB に接続し、疎通確認まで行ったクライアントを返します。
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(maxPoolSize).
		SetReadPreference(readpref.PrimaryPreferred())

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client, nil
}

// Store は users コレクションを扱います。
type Store struct {
	coll *mongo.Collection
}

// NewStore は Store を作成します。
func NewStore(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

// EnsureIndexes は email の一意インデックスを作成します。
// 重複登録の防止はこのインデックスに依存します。
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create users email index: %w", err)
	}
	return nil
}

// FindByEmail はメールアドレスでユーザーを検索します。
func (s *Store) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

// FindByID は ID でユーザーを検索します。ObjectID として解釈できない ID は未登録扱いです。
func (s *Store) FindByID(ctx context.Context, id string) (*user.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, user.ErrNotFound
	}
	return s.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

// Insert はユーザーを追加します。一意インデックス違反は user.ErrConflict になります。
func (s *Store) Insert(ctx context.Context, u *user.User) (*user.User, error) {
	doc := document{
		ID:        primitive.NewObjectID(),
		Name:      u.Name,
		Email:     u.Email,
		Password:  u.PasswordHash,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, user.ErrConflict
		}
		return nil, fmt.Errorf("%w: insert user: %w", user.ErrUnavailable, err)
	}
	return doc.toUser(), nil
}

func (s *Store) findOne(ctx context.Context, filter bson.D) (*user.User, error) {
	var doc document
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("%w: find user: %w", user.ErrUnavailable, err)
	}
	return doc.toUser(), nil
}
