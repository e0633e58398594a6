// Package reqsign guards mutating gateway endpoints with a shared-secret
// HMAC over (timestamp, body). With no secret configured it is a no-op,
// which is the local-development default.
package reqsign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSignature = "X-Mintgate-Signature"
	HeaderTimestamp = "X-Mintgate-Timestamp"
)

var (
	ErrMissingSignature = errors.New("missing request signature")
	ErrMissingTimestamp = errors.New("missing request timestamp")
	ErrStaleTimestamp   = errors.New("stale request timestamp")
	ErrBadSignature     = errors.New("invalid request signature")
)

type Guard struct {
	secret  string
	maxSkew time.Duration
	now     func() time.Time
}

func NewGuard(secret string, maxSkew time.Duration) *Guard {
	if maxSkew <= 0 {
		maxSkew = time.Minute
	}
	return &Guard{secret: secret, maxSkew: maxSkew, now: time.Now}
}

// WithClock overrides the clock, for tests.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// Wrap verifies the signature before handing the request to next.
func (g *Guard) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g.verify(r); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Guard) verify(r *http.Request) error {
	if g.secret == "" {
		return nil
	}

	sig := r.Header.Get(HeaderSignature)
	if sig == "" {
		return ErrMissingSignature
	}
	tsHeader := r.Header.Get(HeaderTimestamp)
	if tsHeader == "" {
		return ErrMissingTimestamp
	}
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return ErrMissingTimestamp
	}

	reqTime := time.Unix(ts, 0)
	if d := g.now().Sub(reqTime); d > g.maxSkew || d < -g.maxSkew {
		return ErrStaleTimestamp
	}

	body, err := replayableBody(r)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(Sign(g.secret, tsHeader, body)), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}

// Sign computes the hex signature clients must send.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return strings.ToLower(hex.EncodeToString(mac.Sum(nil)))
}

func replayableBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	return body, nil
}
