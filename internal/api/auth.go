package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/cdl-core/internal/audit"
	"github.com/nerrad567/cdl-core/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	TokenType string     `json:"token_type"`
	ExpiresIn int        `json:"expires_in"`
	User      *auth.User `json:"user"`
}

type accountResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// handleRegister creates a non-staff account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.accounts.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		s.writeServiceError(w, r, err, "register")
		return
	}

	s.auditLog(r, audit.ActionCreate, audit.EntityUser, user.ID, user.ID, map[string]any{"email": user.Email})
	writeJSON(w, http.StatusCreated, accountResponse{ID: user.ID, Email: user.Email, Name: user.Name})
}

// handleLogin verifies credentials and issues a session-bound token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	res, err := s.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid credentials")
			return
		}
		s.writeServiceError(w, r, err, "login")
		return
	}

	s.auditLog(r, audit.ActionLogin, audit.EntityUser, res.User.ID, res.User.ID, nil)
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     res.Token,
		TokenType: "Bearer",
		ExpiresIn: int(res.ExpiresIn.Seconds()),
		User:      res.User,
	})
}

// handleLogout revokes the session behind the caller's token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := s.accounts.Logout(r.Context(), claims); err != nil {
		s.writeServiceError(w, r, err, "logout")
		return
	}

	id := identityFromContext(r.Context())
	s.auditLog(r, audit.ActionLogout, audit.EntityUser, id.ID, id.ID, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleWSTicket issues a single-use ticket for the WebSocket handshake so
// the bearer token stays out of URLs and access logs.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	ticket := s.tickets.issue(identityFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// ticketStore holds pending WebSocket tickets. Tickets are single-use.
type ticketStore struct {
	tickets map[string]ticketEntry
	now     func() time.Time
	mu      sync.Mutex
}

type ticketEntry struct {
	identity  auth.Identity
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{
		tickets: make(map[string]ticketEntry),
		now:     time.Now,
	}
}

func (ts *ticketStore) issue(id auth.Identity) string {
	ticket := generateTicket()
	ts.mu.Lock()
	ts.tickets[ticket] = ticketEntry{identity: id, expiresAt: ts.now().Add(ticketTTL)}
	ts.mu.Unlock()
	return ticket
}

// consume removes the ticket and returns its identity if it had not expired.
func (ts *ticketStore) consume(ticket string) (auth.Identity, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tickets[ticket]
	if !ok {
		return auth.Identity{}, false
	}
	delete(ts.tickets, ticket)

	if !ts.now().Before(entry.expiresAt) {
		return auth.Identity{}, false
	}
	return entry.identity, true
}

func (ts *ticketStore) cleanExpired() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	for ticket, entry := range ts.tickets {
		if !now.Before(entry.expiresAt) {
			delete(ts.tickets, ticket)
		}
	}
}

// cleanTicketsLoop prunes expired tickets and sessions until ctx is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickets.cleanExpired()
			if n, err := s.accounts.PruneSessions(ctx); err != nil {
				s.logger.Warn("pruning expired sessions failed", "error", err)
			} else if n > 0 {
				s.logger.Debug("pruned expired sessions", "count", n)
			}
		}
	}
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}
