package interview

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	owned := &SessionRecord{ID: "s1", UserID: "alice"}

	tests := []struct {
		name       string
		auth       AuthResult
		session    *SessionRecord
		authorized bool
		reason     string
	}{
		{"owner", AuthResult{UserID: "alice"}, owned, true, ""},
		{"other user", AuthResult{UserID: "bob"}, owned, false, ReasonAccessForbidden},
		{"missing session", AuthResult{UserID: "alice"}, nil, false, ReasonSessionNotFound},
		{"unauthenticated before ownership", AuthResult{Err: errors.New("no cookie")}, owned, false, ReasonAuthenticationRequired},
		{"unauthenticated before missing session", AuthResult{Err: errors.New("no cookie")}, nil, false, ReasonAuthenticationRequired},
		{"empty identity", AuthResult{}, owned, false, ReasonAuthenticationRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.auth, tt.session)
			if got.Authorized != tt.authorized {
				t.Errorf("Authorized = %v, want %v", got.Authorized, tt.authorized)
			}
			if got.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.reason)
			}
			if tt.authorized && got.UserID != tt.auth.UserID {
				t.Errorf("UserID = %q, want %q", got.UserID, tt.auth.UserID)
			}
		})
	}
}
