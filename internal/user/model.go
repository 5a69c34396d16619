package user

import "time"

type User struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	Password       string    `json:"-"`
	ProfilePicture string    `json:"profile_picture"`
	IsVerified     bool      `json:"is_verified"`
	Online         bool      `json:"online"`
	LastSeen       time.Time `json:"last_seen"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ID          int64  `json:"id"`
	Username    string `json:"username"`
}

// BlockStatus reports both directions of a block relationship, matching
// what clients need to render a conversation that either side has blocked.
type BlockStatus struct {
	User1ID           int64 `json:"user1Id"`
	User2ID           int64 `json:"user2Id"`
	User1BlockedUser2 bool  `json:"user1BlockedUser2"`
	User2BlockedUser1 bool  `json:"user2BlockedUser1"`
}
