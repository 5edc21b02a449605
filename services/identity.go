package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pokecare/models"
)

// UserClaims is the identity the gateway forwards with each request.
type UserClaims struct {
	UserID   string
	Email    string
	Username string
}

// DefaultProfile derives a profile row from the claims: explicit username,
// else the email local part, else a generated handle.
func (c UserClaims) DefaultProfile() models.UserProfile {
	username := strings.TrimSpace(c.Username)
	if username == "" && c.Email != "" {
		username = strings.Split(c.Email, "@")[0]
	}
	if username == "" {
		username = fmt.Sprintf("user_%d", time.Now().UnixMilli())
	}
	return models.UserProfile{ID: c.UserID, Email: c.Email, Username: username}
}

// ProfileStore creates or loads user profiles.
type ProfileStore interface {
	EnsureProfile(ctx context.Context, claims UserClaims) (*models.UserProfile, error)
}

// Identity answers who is signed in for an engine.
type Identity interface {
	CurrentUser() (string, bool)
	Profile(ctx context.Context) (*models.UserProfile, error)
}

// SessionIdentity is the identity of one signed-in session. SignOut makes
// every later CurrentUser call report no user.
type SessionIdentity struct {
	mu       sync.RWMutex
	claims   UserClaims
	signedIn bool
	profiles ProfileStore
}

func NewSessionIdentity(claims UserClaims, profiles ProfileStore) *SessionIdentity {
	return &SessionIdentity{claims: claims, signedIn: claims.UserID != "", profiles: profiles}
}

func (i *SessionIdentity) CurrentUser() (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.signedIn {
		return "", false
	}
	return i.claims.UserID, true
}

func (i *SessionIdentity) Profile(ctx context.Context) (*models.UserProfile, error) {
	i.mu.RLock()
	claims, signedIn := i.claims, i.signedIn
	i.mu.RUnlock()
	if !signedIn {
		return nil, nil
	}
	return i.profiles.EnsureProfile(ctx, claims)
}

func (i *SessionIdentity) SignOut() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.signedIn = false
}
