// Package verify issues and checks time-boxed verification tokens. The one
// durable record per user lives in an external key-value store; freshness
// is always computed from the stored expiry, never from deletion.
package verify

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"recorderbot/internal/models"
)

// ErrNoRecord is returned by a KV when the key does not exist.
var ErrNoRecord = errors.New("verification record not found")

// KV is the durable store behind the verification records.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, expiration time.Duration) error
}

type Store struct {
	kv     KV
	window time.Duration
	logger *zap.Logger

	now func() time.Time
}

func NewStore(kv KV, window time.Duration, logger *zap.Logger) *Store {
	return &Store{kv: kv, window: window, logger: logger, now: time.Now}
}

func userKey(userID int64) string { return "verify:user:" + strconv.FormatInt(userID, 10) }
func tokenKey(token string) string { return "verify:token:" + token }

// IsVerified reports whether the user holds a completed, unexpired
// verification.
func (s *Store) IsVerified(ctx context.Context, userID int64) (bool, error) {
	rec, ok, err := s.record(ctx, userID)
	if err != nil || !ok {
		return false, err
	}
	return rec.CurrentlyVerified(s.now()), nil
}

// IssueResult is the outcome of an Issue call. When the user is already
// verified no new token is generated and Remaining carries the time left.
type IssueResult struct {
	Token           string
	AlreadyVerified bool
	Remaining       time.Duration
	ExpiresAt       time.Time
}

// Issue generates a fresh pending token for the user, replacing any prior
// one; only the latest token value is ever accepted. A user holding a
// currently-valid verification gets their existing status back instead.
func (s *Store) Issue(ctx context.Context, userID int64, displayName string) (IssueResult, error) {
	now := s.now()

	rec, ok, err := s.record(ctx, userID)
	if err != nil {
		return IssueResult{}, err
	}
	if ok && rec.CurrentlyVerified(now) {
		return IssueResult{
			AlreadyVerified: true,
			Remaining:       rec.Remaining(now),
			ExpiresAt:       time.Unix(rec.ExpiresAt, 0),
		}, nil
	}

	token, err := newToken()
	if err != nil {
		return IssueResult{}, err
	}

	rec = models.VerificationRecord{
		UserID:      userID,
		Token:       token,
		DisplayName: displayName,
		Verified:    false,
		ExpiresAt:   now.Add(s.window).Unix(),
	}
	if err := s.save(ctx, rec); err != nil {
		return IssueResult{}, err
	}
	// Reverse index for the callback endpoint, which only sees the token.
	if err := s.kv.Set(ctx, tokenKey(token), strconv.FormatInt(userID, 10), 0); err != nil {
		return IssueResult{}, fmt.Errorf("index token: %w", err)
	}

	s.logger.Info("verification token issued", zap.Int64("user_id", userID))
	return IssueResult{Token: token, ExpiresAt: time.Unix(rec.ExpiresAt, 0)}, nil
}

// Complete flips the user to verified iff the presented token exactly
// matches the stored one and the record has not expired. Success refreshes
// the expiry by a full window; failure changes nothing.
func (s *Store) Complete(ctx context.Context, userID int64, token string) (bool, error) {
	now := s.now()

	rec, ok, err := s.record(ctx, userID)
	if err != nil || !ok {
		return false, err
	}
	if rec.Token != token || rec.ExpiresAt <= now.Unix() {
		return false, nil
	}

	rec.Verified = true
	rec.ExpiresAt = now.Add(s.window).Unix()
	if err := s.save(ctx, rec); err != nil {
		return false, err
	}

	s.logger.Info("verification completed", zap.Int64("user_id", userID))
	return true, nil
}

// Completion identifies who a token belonged to, for the notification the
// caller broadcasts after a successful callback.
type Completion struct {
	UserID      int64
	DisplayName string
}

// CompleteByToken resolves the token owner through the reverse index and
// completes the verification. Replays with an already-verified token remain
// successful while the verification is unexpired.
func (s *Store) CompleteByToken(ctx context.Context, token string) (Completion, bool, error) {
	raw, err := s.kv.Get(ctx, tokenKey(token))
	if errors.Is(err, ErrNoRecord) {
		return Completion{}, false, nil
	}
	if err != nil {
		return Completion{}, false, err
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Completion{}, false, fmt.Errorf("corrupt token index: %w", err)
	}

	ok, err := s.Complete(ctx, userID, token)
	if err != nil || !ok {
		return Completion{}, false, err
	}

	rec, _, err := s.record(ctx, userID)
	if err != nil {
		return Completion{UserID: userID}, true, nil
	}
	return Completion{UserID: userID, DisplayName: rec.DisplayName}, true, nil
}

func (s *Store) record(ctx context.Context, userID int64) (models.VerificationRecord, bool, error) {
	raw, err := s.kv.Get(ctx, userKey(userID))
	if errors.Is(err, ErrNoRecord) {
		return models.VerificationRecord{}, false, nil
	}
	if err != nil {
		return models.VerificationRecord{}, false, fmt.Errorf("load record: %w", err)
	}

	var rec models.VerificationRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return models.VerificationRecord{}, false, fmt.Errorf("decode record: %w", err)
	}
	return rec, true, nil
}

func (s *Store) save(ctx context.Context, rec models.VerificationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, userKey(rec.UserID), string(data), 0); err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// newToken returns an opaque 128-bit token.
func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
