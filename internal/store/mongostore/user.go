package mongostore

import (
	"context"
	"strings"
	"time"

	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type userDocument struct {
	ID           primitive.ObjectID `bson:"_id"`
	Name         string             `bson:"name"`
	Username     string             `bson:"username"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"passwordHash"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func (d userDocument) toUser() types.User {
	return types.User{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// UserRepository stores users in the "users" collection.
type UserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{coll: db.Collection(usersCollection)}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	oid, err := parseID(id)
	if err != nil {
		return types.User{}, err
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

// GetByIdentifier looks a user up by username or email. Both are stored lower-cased.
func (r *UserRepository) GetByIdentifier(ctx context.Context, identifier string) (types.User, error) {
	identifier = strings.ToLower(identifier)
	return r.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"username": identifier},
		bson.M{"email": identifier},
	}})
}

func (r *UserRepository) UsernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	return r.taken(ctx, "username", strings.ToLower(username), excludeID)
}

func (r *UserRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	return r.taken(ctx, "email", strings.ToLower(email), excludeID)
}

func (r *UserRepository) taken(ctx context.Context, field, value, excludeID string) (bool, error) {
	filter := bson.M{field: value}
	if oid, err := parseID(excludeID); err == nil {
		filter["_id"] = bson.M{"$ne": oid}
	}
	n, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := userDocument{
		ID:           primitive.NewObjectID(),
		Name:         user.Name,
		Username:     strings.ToLower(user.Username),
		Email:        strings.ToLower(user.Email),
		PasswordHash: user.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return types.User{}, translate(err)
	}
	return doc.toUser(), nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	oid, err := parseID(user.ID)
	if err != nil {
		return types.User{}, err
	}

	update := bson.M{"$set": bson.M{
		"name":         user.Name,
		"username":     strings.ToLower(user.Username),
		"email":        strings.ToLower(user.Email),
		"passwordHash": user.PasswordHash,
		"updatedAt":    time.Now().UTC().Truncate(time.Millisecond),
	}}

	var doc userDocument
	err = r.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, returnAfter()).Decode(&doc)
	if err != nil {
		return types.User{}, translate(err)
	}
	return doc.toUser(), nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return translate(err)
	}
	if result.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, filter any) (types.User, error) {
	var doc userDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return types.User{}, translate(err)
	}
	return doc.toUser(), nil
}
