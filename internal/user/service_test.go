package user

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestValidateTokenRoundTrip(t *testing.T) {
	s := NewService(nil, "test-secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		ID:       42,
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "wibe-chat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	ss, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	id, username, err := s.ValidateToken(ss)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if id != 42 || username != "alice" {
		t.Fatalf("claims = (%d, %q), want (42, %q)", id, username, "alice")
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	s := NewService(nil, "right-secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{ID: 1, Username: "bob"})
	ss, err := token.SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, _, err := s.ValidateToken(ss); err == nil {
		t.Fatal("token signed with the wrong secret was accepted")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	s := NewService(nil, "test-secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		ID:       1,
		Username: "bob",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	ss, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, _, err = s.ValidateToken(ss)
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("err = %v, want token expired", err)
	}
}
