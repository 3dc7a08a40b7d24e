// Package fakeapi provides an in-process LearnFlow API for tests: the token
// issuer, the profile endpoint and a couple of protected business endpoints.
package fakeapi

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type user struct {
	username     string
	role         string
	passwordHash []byte
	id           int64
}

// Server is a fake API backed by httptest. All knobs are safe to call while
// requests are in flight.
type Server struct {
	*httptest.Server

	users      map[string]*user
	hits       map[string]int
	authSeen   map[string][]string
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration

	refreshDelay     time.Duration
	refreshStatus    int
	meStatus         int
	rejectBusiness   int
	refreshMalformed bool
	accessGen        int
	nextID           int64

	mu sync.Mutex
}

// New starts a fake API and stops it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		users:      make(map[string]*user),
		hits:       make(map[string]int),
		authSeen:   make(map[string][]string),
		secret:     []byte(uuid.NewString()),
		accessTTL:  time.Hour,
		refreshTTL: 24 * time.Hour,
		nextID:     1,
	}

	router := gin.New()
	router.Use(s.countHits)

	api := router.Group("/api")
	api.POST("/token/", s.handleToken)
	api.POST("/token/refresh/", s.handleRefresh)
	api.GET("/me/", s.requireAccess, s.handleMe)
	api.Any("/courses/*rest", s.requireAccess, s.handleBusiness)
	api.Any("/enrollments/*rest", s.requireAccess, s.handleBusiness)

	s.Server = httptest.NewServer(router)
	t.Cleanup(s.Close)

	return s
}

// AddUser registers a user and returns its id.
func (s *Server) AddUser(username, password, role string) int64 {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("fakeapi: hash password: %v", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.users[username] = &user{id: id, username: username, role: role, passwordHash: hash}
	return id
}

// IssuePair mints a credential pair for an existing user without a login call.
func (s *Server) IssuePair(username string) (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mint(username, tokenTypeAccess, s.accessTTL), s.mint(username, tokenTypeRefresh, s.refreshTTL)
}

// RevokeAccessTokens makes every access token issued so far fail with 401.
// Refresh tokens stay valid.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessGen++
}

// RejectBusiness makes the next n business calls answer 401 regardless of the
// credential presented.
func (s *Server) RejectBusiness(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectBusiness = n
}

// FailRefresh makes the refresh endpoint answer status. Zero restores normal behaviour.
func (s *Server) FailRefresh(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshStatus = status
}

// MalformedRefresh makes the refresh endpoint answer 200 without an access token.
func (s *Server) MalformedRefresh(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshMalformed = on
}

// DelayRefresh holds every refresh response for d.
func (s *Server) DelayRefresh(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// FailMe makes the profile endpoint answer status. Zero restores normal behaviour.
func (s *Server) FailMe(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meStatus = status
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// TotalHits returns how many requests reached the server.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

// Authorizations returns the Authorization headers seen on path, in order.
func (s *Server) Authorizations(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authSeen[path]...)
}

func (s *Server) countHits(c *gin.Context) {
	s.mu.Lock()
	path := c.Request.URL.Path
	s.hits[path]++
	s.authSeen[path] = append(s.authSeen[path], c.GetHeader("Authorization"))
	s.mu.Unlock()

	c.Next()
}

// mint must be called with s.mu held.
func (s *Server) mint(username, typ string, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"sub": username,
		"typ": typ,
		"jti": ulid.Make().String(),
		"gen": s.accessGen,
		"exp": time.Now().Add(ttl).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(fmt.Sprintf("fakeapi: sign token: %v", err))
	}
	return signed
}

// parse must be called with s.mu held.
func (s *Server) parse(raw, typ string) (*user, bool) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, false
	}

	if claims["typ"] != typ {
		return nil, false
	}
	if typ == tokenTypeAccess {
		gen, ok := claims["gen"].(float64)
		if !ok || int(gen) != s.accessGen {
			return nil, false
		}
	}

	sub, _ := claims["sub"].(string)
	u, ok := s.users[sub]
	return u, ok
}

func (s *Server) handleToken(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[req.Username]
	if !ok || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "No active account found with the given credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access":  s.mint(u.username, tokenTypeAccess, s.accessTTL),
		"refresh": s.mint(u.username, tokenTypeRefresh, s.refreshTTL),
	})
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req struct {
		Refresh string `json:"refresh" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid body"})
		return
	}

	s.mu.Lock()
	delay := s.refreshDelay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-c.Request.Context().Done():
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refreshStatus != 0 {
		c.JSON(s.refreshStatus, gin.H{"detail": "refresh failed"})
		return
	}
	if s.refreshMalformed {
		c.JSON(http.StatusOK, gin.H{"unexpected": true})
		return
	}

	u, ok := s.parse(req.Refresh, tokenTypeRefresh)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access": s.mint(u.username, tokenTypeAccess, s.accessTTL)})
}

func (s *Server) requireAccess(c *gin.Context) {
	raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")

	s.mu.Lock()
	u, ok := s.parse(raw, tokenTypeAccess)
	s.mu.Unlock()

	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Given token not valid for any token type", "code": "token_not_valid"})
		return
	}

	c.Set("user", u)
	c.Next()
}

func (s *Server) handleMe(c *gin.Context) {
	s.mu.Lock()
	status := s.meStatus
	s.mu.Unlock()

	if status != 0 {
		c.JSON(status, gin.H{"detail": "profile unavailable"})
		return
	}

	u := c.MustGet("user").(*user)
	c.JSON(http.StatusOK, gin.H{"id": u.id, "username": u.username, "role": u.role})
}

// handleBusiness echoes what the endpoint received.
func (s *Server) handleBusiness(c *gin.Context) {
	s.mu.Lock()
	reject := s.rejectBusiness > 0
	if reject {
		s.rejectBusiness--
	}
	s.mu.Unlock()

	if reject {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "rejected"})
		return
	}

	body, _ := io.ReadAll(c.Request.Body)
	u := c.MustGet("user").(*user)

	c.JSON(http.StatusOK, gin.H{
		"user":         u.username,
		"method":       c.Request.Method,
		"path":         c.Request.URL.Path,
		"content_type": c.GetHeader("Content-Type"),
		"request_id":   c.GetHeader("X-Request-ID"),
		"body":         string(body),
	})
}
