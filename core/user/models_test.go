package user

import (
	"testing"
	"time"
)

func TestUser_checkVerificationToken(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	var usr User
	raw, err := usr.NewVerificationToken(time.Hour, now)
	if err != nil {
		t.Fatalf("NewVerificationToken() error = %v", err)
	}

	tests := []struct {
		name    string
		usr     User
		token   string
		at      time.Time
		wantErr error
	}{
		{name: "no token issued", usr: User{}, token: raw, at: now, wantErr: errTokenMismatch},
		{name: "wrong token", usr: usr, token: "nope", at: now, wantErr: errTokenMismatch},
		{name: "expired", usr: usr, token: raw, at: now.Add(time.Hour + time.Second), wantErr: errVerificationExpired},
		{name: "valid", usr: usr, token: raw, at: now.Add(59 * time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.usr.checkVerificationToken(tt.token, tt.at); err != tt.wantErr {
				t.Errorf("checkVerificationToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	usr.clearVerificationToken()
	if err := usr.checkVerificationToken(raw, now); err != errTokenMismatch {
		t.Errorf("checkVerificationToken() after clear error = %v, want %v", err, errTokenMismatch)
	}
}
