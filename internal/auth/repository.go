package auth

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserRepository is the user directory: credential lookups plus the
// group-membership queries the notification dispatcher resolves targets with.
type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{collection: db.Collection("users")}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, user *User) error {
	_, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.New("email already registered")
		}
		return err
	}
	return nil
}

// FindPrincipalsByRole returns every user holding the given role.
// An empty result is valid, not an error.
func (r *UserRepository) FindPrincipalsByRole(ctx context.Context, role string) ([]*User, error) {
	return r.findPrincipals(ctx, bson.M{"role": role})
}

// FindPrincipalsByRoleAndSemester returns every user holding the given role
// enrolled in the given semester.
func (r *UserRepository) FindPrincipalsByRoleAndSemester(ctx context.Context, role string, semester int) ([]*User, error) {
	return r.findPrincipals(ctx, bson.M{"role": role, "semester": semester})
}

// FindPrincipalsByRoleAndDepartment returns every user holding the given role
// belonging to the given department.
func (r *UserRepository) FindPrincipalsByRoleAndDepartment(ctx context.Context, role, department string) ([]*User, error) {
	return r.findPrincipals(ctx, bson.M{"role": role, "department": department})
}

func (r *UserRepository) findPrincipals(ctx context.Context, filter bson.M) ([]*User, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetProjection(bson.M{"password_hash": 0}))
	if err != nil {
		return nil, err
	}
	var users []*User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Why: the dispatcher never walks the users collection itself; it resolves
// targets through these queries so membership stays a directory concern.
