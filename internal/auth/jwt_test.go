package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestMintAndParse(t *testing.T) {
	token, err := MintToken("user-1", "secret", time.Hour)
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}

	claims, err := ParseClaims(token, "secret")
	if err != nil {
		t.Fatalf("ParseClaims() error = %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("ParseClaims() user = %q, want user-1", claims.UserID)
	}
}

func TestParseClaims_Rejects(t *testing.T) {
	expired, _ := MintToken("user-1", "secret", -time.Minute)
	noUser, _ := MintToken("", "secret", time.Hour)
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "user-1"}).SignedString([]byte("secret"))
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		UserID:           "user-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("secret"))
	valid, _ := MintToken("user-1", "secret", time.Hour)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{name: "wrong secret", token: valid, secret: "other"},
		{name: "expired", token: expired, secret: "secret"},
		{name: "no user", token: noUser, secret: "secret"},
		{name: "no expiry", token: noExpiry, secret: "secret"},
		{name: "unexpected algorithm", token: hs512, secret: "secret"},
		{name: "garbage", token: "not.a.token", secret: "secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseClaims(tt.token, tt.secret); err == nil {
				t.Error("ParseClaims() expected error")
			}
		})
	}
}
