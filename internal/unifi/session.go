package unifi

import "sync"

// Session holds the controller address, site, and the opaque credential
// captured by the login flow. It is read by every outbound call and written
// only on login, each side going through the session's own lock.
type Session struct {
	mu      sync.RWMutex
	baseURL string
	site    string
	token   string
}

// NewSession creates an unauthenticated session for a controller.
func NewSession(baseURL, site string) *Session {
	return &Session{baseURL: baseURL, site: site}
}

// BaseURL returns the controller base address.
func (s *Session) BaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseURL
}

// Site returns the controller site name.
func (s *Session) Site() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.site
}

// Credential returns the current credential and whether one is set.
func (s *Session) Credential() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// SetCredential stores a fresh credential from a successful login.
func (s *Session) SetCredential(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Clear drops the credential, forcing re-authentication.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}
