package mongostore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/yourusername/member-gate/internal/user"
)

func TestStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert returns stored user", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		s := NewStore(mt.Coll)

		stored, err := s.Insert(mt.Context(), &user.User{Name: "Jane Doe", Email: "jane@example.com", PasswordHash: "$2a$10$hash"})
		require.NoError(mt, err)
		assert.Len(mt, stored.ID, 24)
		assert.Equal(mt, "jane@example.com", stored.Email)
		assert.Equal(mt, "$2a$10$hash", stored.PasswordHash)
		assert.False(mt, stored.CreatedAt.IsZero())
	})

	mt.Run("insert duplicate email is a conflict", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: member_gate.users index: users_email_unique",
		}))
		s := NewStore(mt.Coll)

		_, err := s.Insert(mt.Context(), &user.User{Name: "Jane Doe", Email: "jane@example.com"})
		assert.ErrorIs(mt, err, user.ErrConflict)
	})

	mt.Run("insert backend failure is unavailable", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    91,
			Name:    "ShutdownInProgress",
			Message: "shutting down",
		}))
		s := NewStore(mt.Coll)

		_, err := s.Insert(mt.Context(), &user.User{Name: "Jane Doe", Email: "jane@example.com"})
		assert.ErrorIs(mt, err, user.ErrUnavailable)
	})

	mt.Run("find by email", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "member_gate.users", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "name", Value: "Jane Doe"},
			{Key: "email", Value: "jane@example.com"},
			{Key: "password", Value: "$2a$10$hash"},
			{Key: "created_at", Value: primitive.NewDateTimeFromTime(created)},
		}))
		s := NewStore(mt.Coll)

		got, err := s.FindByEmail(mt.Context(), "jane@example.com")
		require.NoError(mt, err)
		assert.Equal(mt, id.Hex(), got.ID)
		assert.Equal(mt, "Jane Doe", got.Name)
		assert.Equal(mt, "$2a$10$hash", got.PasswordHash)
		assert.True(mt, created.Equal(got.CreatedAt))
	})

	mt.Run("find by email not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "member_gate.users", mtest.FirstBatch))
		s := NewStore(mt.Coll)

		_, err := s.FindByEmail(mt.Context(), "nobody@example.com")
		assert.ErrorIs(mt, err, user.ErrNotFound)
	})

	mt.Run("find by malformed id", func(mt *mtest.T) {
		s := NewStore(mt.Coll)

		_, err := s.FindByID(mt.Context(), "not-an-object-id")
		assert.ErrorIs(mt, err, user.ErrNotFound)
	})

	mt.Run("find backend failure is unavailable", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    13,
			Name:    "Unauthorized",
			Message: "not authorized",
		}))
		s := NewStore(mt.Coll)

		_, err := s.FindByID(mt.Context(), primitive.NewObjectID().Hex())
		assert.ErrorIs(mt, err, user.ErrUnavailable)
	})

	mt.Run("ensure indexes", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		s := NewStore(mt.Coll)

		assert.NoError(mt, s.EnsureIndexes(mt.Context()))
	})
}
