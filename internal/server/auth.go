package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/blacktop/crosspost/internal/config"
	"github.com/blacktop/crosspost/internal/crosspost"
)

// Principal is an authenticated API user.
type Principal struct {
	Name string
	caps map[string]struct{}
}

// Can reports whether p holds capability.
func (p *Principal) Can(capability string) bool {
	if p == nil {
		return false
	}
	_, ok := p.caps[capability]
	return ok
}

// CanEditPost reports whether p may act on post.
func (p *Principal) CanEditPost(post crosspost.Post) bool {
	if p.Can(config.CapEditOthersPosts) {
		return true
	}
	return p.Can(config.CapEditPosts) && post.AuthorID != "" && post.AuthorID == p.Name
}

// Authenticator resolves bearer tokens to principals.
type Authenticator struct {
	users []userEntry
}

type userEntry struct {
	token     []byte
	principal *Principal
}

// NewAuthenticator builds an authenticator from configured users.
func NewAuthenticator(users []config.User) *Authenticator {
	a := &Authenticator{}
	for _, u := range users {
		caps := make(map[string]struct{}, len(u.Capabilities))
		for _, c := range u.Capabilities {
			caps[c] = struct{}{}
		}
		a.users = append(a.users, userEntry{
			token:     []byte(u.Token),
			principal: &Principal{Name: u.Name, caps: caps},
		})
	}
	return a
}

// Authenticate returns the principal for r's bearer token, or nil.
func (a *Authenticator) Authenticate(r *http.Request) *Principal {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}

	for _, u := range a.users {
		if subtle.ConstantTimeCompare(u.token, []byte(token)) == 1 {
			return u.principal
		}
	}
	return nil
}
