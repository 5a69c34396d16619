package user

import (
	"context"
	"fmt"
	"time"

	"github.com/ShashwatSecure/WIBE-CHAT/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	repo      *Repository
	jwtSecret string
}

type MyJWTClaims struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(repo *Repository, secret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: secret,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return nil, fmt.Errorf("username, email and password are required: %w", apperr.ErrValidation)
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:     req.Name,
		Email:    req.Email,
		Username: req.Username,
		Password: string(hashedPwd),
	}

	return s.repo.CreateUser(ctx, u)
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	u, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		ID:       u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "wibe-chat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: ss,
		ID:          u.ID,
		Username:    u.Username,
	}, nil
}

func (s *Service) ValidateToken(tokenString string) (int64, string, error) {
	claims := &MyJWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})

	if err != nil || !token.Valid {
		return 0, "", err
	}

	return claims.ID, claims.Username, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]User, error) {
	return s.repo.SearchUsers(ctx, query)
}

// ToggleBlock flips blocker's block on blocked and returns the resulting
// block status in both directions.
func (s *Service) ToggleBlock(ctx context.Context, blockerID, blockedID int64) (*BlockStatus, error) {
	if blockerID == blockedID {
		return nil, fmt.Errorf("cannot block yourself: %w", apperr.ErrValidation)
	}
	if _, err := s.repo.GetUserByID(ctx, blockedID); err != nil {
		return nil, err
	}

	currently, err := s.repo.IsBlocked(ctx, blockerID, blockedID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetBlocked(ctx, blockerID, blockedID, !currently); err != nil {
		return nil, err
	}

	reverse, err := s.repo.IsBlocked(ctx, blockedID, blockerID)
	if err != nil {
		return nil, err
	}

	return &BlockStatus{
		User1ID:           blockerID,
		User2ID:           blockedID,
		User1BlockedUser2: !currently,
		User2BlockedUser1: reverse,
	}, nil
}

func (s *Service) UnreadCounts(ctx context.Context, userID int64) (map[int64]int, error) {
	return s.repo.UnreadCounts(ctx, userID)
}
