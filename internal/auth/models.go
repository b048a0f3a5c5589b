package auth

import "go.mongodb.org/mongo-driver/bson/primitive"

// Roles recognized across the platform.
const (
	RoleStudent = "student"
	RoleFaculty = "faculty"
	RoleAdmin   = "admin"
)

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	Role         string             `bson:"role" json:"role"`
	Department   string             `bson:"department" json:"department"`
	Semester     int                `bson:"semester,omitempty" json:"semester,omitempty"` // Students only
}

type RegisterRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Semester   int    `json:"semester"`
}

type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
