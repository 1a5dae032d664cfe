package models

import "time"

// VerificationRecord is the one durable record kept per user subject to
// verification. A record is never deleted; a stale one simply fails the
// freshness check.
type VerificationRecord struct {
	UserID      int64  `json:"user_id"`
	Token       string `json:"token"`
	DisplayName string `json:"display_name"`
	Verified    bool   `json:"verified"`
	ExpiresAt   int64  `json:"expires_at"` // epoch seconds
}

// CurrentlyVerified reports whether the record grants access at the given
// instant. Pure function of the record and the clock.
func (r VerificationRecord) CurrentlyVerified(now time.Time) bool {
	return r.Verified && r.ExpiresAt > now.Unix()
}

// Remaining returns how much verification time is left, zero when expired.
func (r VerificationRecord) Remaining(now time.Time) time.Duration {
	left := r.ExpiresAt - now.Unix()
	if left <= 0 {
		return 0
	}
	return time.Duration(left) * time.Second
}
