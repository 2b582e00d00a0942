package auth

import (
	"crypto/subtle"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

// HeaderAdminPassword is the request header that carries the admin password on mutating calls.
const HeaderAdminPassword = "X-Admin-Password"

// Gate holds the single admin secret that is loaded from the configuration at startup.
type Gate struct {
	secret string
}

// NewGate creates a gate for the given secret. A gate with an empty secret never grants access.
func NewGate(secret string) *Gate {
	return &Gate{secret: secret}
}

// Check reports whether password equals the configured secret.
func (g *Gate) Check(password string) bool {
	if g == nil || g.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(g.secret)) == 1
}

// NewSession returns a fresh session that is not logged in.
func (g *Gate) NewSession() *Session {
	return &Session{gate: g}
}

// Session holds the admin flag of one session. Sessions never share state with each other.
type Session struct {
	gate *Gate

	mu       sync.RWMutex
	isAdmin  bool
	password string
}

// Login sets the admin flag if the password matches and reports whether it did. A wrong password
// leaves the flag unchanged.
func (s *Session) Login(password string) bool {
	if !s.gate.Check(password) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isAdmin = true
	s.password = password
	return true
}

// Logout clears the admin flag.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isAdmin = false
	s.password = ""
}

// IsAdmin reports whether the session is logged in as admin.
func (s *Session) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isAdmin
}

// Password returns the password the session logged in with, or an empty string.
func (s *Session) Password() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.password
}

// RequireAdmin is a gin middleware that rejects requests without a valid admin password header.
func RequireAdmin(gate *Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !gate.Check(c.GetHeader(HeaderAdminPassword)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
