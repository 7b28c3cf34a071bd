package domain

type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// Identity is the verified caller of a request.
type Identity struct {
	UserID int64
	Role   Role
	Email  string
}
