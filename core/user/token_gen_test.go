package user

import (
	"testing"
	"time"

	"github.com/volatiletech/null/v8"
)

func TestMakeVerifyToken(t *testing.T) {
	tg := newTokenGenerator("secret", 3*24*time.Hour)

	now := time.Now()
	usr := User{
		ID:        "6f1c2a8e-2a4b-4f0e-9d51-0c8f7b7f2a11",
		Name:      "T",
		Email:     "t@test.test",
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: null.TimeFrom(now),
	}
	_ = usr.SetPassword("pwd")

	validToken := tg.makeToken(usr)

	// generate an expired token
	dayLate := tg.timeout + (24 * time.Hour)
	expiredGen := tg
	expiredGen.now = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken := expiredGen.makeToken(usr)

	// a password change invalidates older tokens
	changed := usr
	_ = changed.SetPassword("other-pwd")

	otherGen := newTokenGenerator("other-secret", tg.timeout)

	tests := []struct {
		name    string
		gen     tokenGenerator
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", gen: tg, usr: usr, wantErr: errInvalidToken},
		{name: "invalid parts len", gen: tg, usr: usr, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", gen: tg, usr: usr, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", gen: tg, usr: usr, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", gen: tg, usr: usr, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "expired token", gen: tg, usr: usr, token: expiredToken, wantErr: errTokenExpired},
		{name: "password changed", gen: tg, usr: changed, token: validToken, wantErr: errInvalidToken},
		{name: "other secret", gen: otherGen, usr: usr, token: validToken, wantErr: errInvalidToken},
		{name: "valid token", gen: tg, usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.gen.verifyToken(tt.usr, tt.token); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeUID(t *testing.T) {
	usr := User{ID: "6f1c2a8e-2a4b-4f0e-9d51-0c8f7b7f2a11"}
	id, err := decodeUID(EncodeUID(usr))
	if err != nil {
		t.Fatalf("decodeUID() error = %v", err)
	}
	if id != usr.ID {
		t.Errorf("decodeUID() = %v, want %v", id, usr.ID)
	}
}
