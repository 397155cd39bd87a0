package interview

const (
	ReasonAuthenticationRequired = "authentication required"
	ReasonSessionNotFound        = "session not found"
	ReasonAccessForbidden        = "access forbidden"
)

// AuthResult is the outcome of identifying the caller.
type AuthResult struct {
	UserID string
	Err    error
}

// Authenticated reports whether the caller has a usable identity.
func (a AuthResult) Authenticated() bool {
	return a.Err == nil && a.UserID != ""
}

// SessionRecord is the ownership-relevant part of an interview session.
type SessionRecord struct {
	ID     string
	UserID string
}

// Resolution is either authorized for UserID or denied with Reason.
type Resolution struct {
	Authorized bool
	UserID     string
	Reason     string
}

// Resolve decides whether the caller may act on session. Checks run in a
// fixed order: authentication, then existence, then ownership.
func Resolve(auth AuthResult, session *SessionRecord) Resolution {
	if !auth.Authenticated() {
		return Resolution{Reason: ReasonAuthenticationRequired}
	}
	if session == nil {
		return Resolution{Reason: ReasonSessionNotFound}
	}
	if session.UserID != auth.UserID {
		return Resolution{Reason: ReasonAccessForbidden}
	}
	return Resolution{Authorized: true, UserID: auth.UserID}
}
