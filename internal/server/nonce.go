package server

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	nonceLifetime = 24 * time.Hour
	nonceLength   = 20
)

// Nonces issues and verifies short-lived CSRF tokens bound to a user and
// action. A nonce is valid for the tick it was issued in and the next one.
type Nonces struct {
	secret []byte
	now    func() time.Time
}

// NewNonces returns a nonce issuer. An empty secret is replaced by a random
// one, which invalidates outstanding nonces on restart.
func NewNonces(secret string) *Nonces {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("nonce secret: %v", err))
		}
	}
	return &Nonces{secret: key, now: time.Now}
}

func (n *Nonces) tick() int64 {
	return n.now().Unix() / int64(nonceLifetime/2/time.Second)
}

func (n *Nonces) sign(tick int64, action, user string) string {
	mac := hmac.New(sha256.New, n.secret)
	fmt.Fprintf(mac, "%d|%s|%s", tick, action, user)
	return hex.EncodeToString(mac.Sum(nil))[:nonceLength]
}

// Create issues a nonce for user and action.
func (n *Nonces) Create(action, user string) string {
	return n.sign(n.tick(), action, user)
}

// Verify checks nonce against the current and previous tick.
func (n *Nonces) Verify(nonce, action, user string) bool {
	if len(nonce) != nonceLength {
		return false
	}
	tick := n.tick()
	for _, t := range []int64{tick, tick - 1} {
		if hmac.Equal([]byte(nonce), []byte(n.sign(t, action, user))) {
			return true
		}
	}
	return false
}
