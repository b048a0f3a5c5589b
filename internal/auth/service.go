package auth

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserService struct {
	repo *UserRepository
}

func NewUserService(repo *UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) RegisterUser(ctx context.Context, req RegisterRequest) error {
	if req.Role != RoleStudent && req.Role != RoleFaculty && req.Role != RoleAdmin {
		return errors.New("unknown role")
	}
	if req.Role == RoleStudent && req.Semester <= 0 {
		return errors.New("semester is required for student registration")
	}

	existingUser, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		return err
	}
	if existingUser != nil {
		return errors.New("email already registered")
	}

	hashPassword, err := HashPassword(req.Password)
	if err != nil {
		return err
	}

	user := &User{
		ID:           primitive.NewObjectID(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hashPassword,
		Role:         req.Role,
		Department:   req.Department,
		Semester:     req.Semester, // Zero for faculty/admin
	}

	return s.repo.CreateUser(ctx, user)
}

func (s *UserService) AuthenticateUser(ctx context.Context, cred Credential) (string, error) {
	user, err := s.repo.FindByEmail(ctx, cred.Email)
	if err != nil || user == nil || !CheckPasswordHash(cred.Password, user.PasswordHash) {
		return "", errors.New("invalid credentials")
	}

	token, err := GenerateJWT(user, time.Hour*24)
	if err != nil {
		return "", errors.New("token not generated")
	}
	return token, nil
}
