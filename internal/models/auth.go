// -----------------------------------------------------------------------
// Session Credentials - Stored browser session state per user
// -----------------------------------------------------------------------

package models

import "time"

// SessionCookie is one browser cookie captured from an authenticated
// session, held for later injection
type SessionCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires"`
	Secure   bool      `json:"secure"`
	HTTPOnly bool      `json:"http_only"`
	SameSite string    `json:"same_site"`
}

// SessionCredentials holds the captured session state for one user
type SessionCredentials struct {
	UserID     string          `json:"user_id" badgerhold:"key"`
	Cookies    []SessionCookie `json:"cookies"`
	CapturedAt time.Time       `json:"captured_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
	UserAgent  string          `json:"user_agent,omitempty"`
}

// IsValid reports whether the stored session is present and unexpired
func (s *SessionCredentials) IsValid() bool {
	if s == nil || len(s.Cookies) == 0 {
		return false
	}
	if !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt) {
		return false
	}
	return true
}
