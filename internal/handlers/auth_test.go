package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cosmicplatform/api/internal/config"
	"cosmicplatform/api/internal/models"
	"cosmicplatform/api/internal/repository"
	"cosmicplatform/api/internal/security"
	"cosmicplatform/api/internal/service"
)

// stubStore backs the HTTP tests with repository semantics in memory.
type stubStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	sessions map[string]*models.Session
}

func newStubStore() *stubStore {
	return &stubStore{
		users:    make(map[string]*models.User),
		sessions: make(map[string]*models.Session),
	}
}

func (s *stubStore) Create(ctx context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == user.Username {
			return repository.ErrUsernameTaken
		}
		if existing.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	u := user
	u.CreatedAt = time.Now()
	s.users[user.ID] = &u
	return nil
}

func (s *stubStore) GetByID(ctx context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return *u, nil
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *stubStore) FindByIdentifier(ctx context.Context, identifier string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == identifier || u.Email == identifier {
			return *u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *stubStore) FindByUsername(ctx context.Context, username string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return *u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *stubStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *stubStore) RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return 0, nil, repository.ErrUserNotFound
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= threshold {
		until := lockUntil
		u.LockedUntil = &until
	}
	return u.FailedLoginAttempts, u.LockedUntil, nil
}

func (s *stubStore) RecordLoginSuccess(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	now := time.Now()
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now
	return nil
}

func (s *stubStore) FindByEmailAndVerifyToken(ctx context.Context, email string, token string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email && u.EmailVerifyToken != nil && *u.EmailVerifyToken == token {
			return *u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *stubStore) MarkEmailVerified(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.EmailVerified = true
	u.EmailVerifyToken = nil
	return nil
}

func (s *stubStore) SetPasswordResetToken(ctx context.Context, id string, token string, expires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordResetToken = &token
	u.PasswordResetExpires = &expires
	return nil
}

func (s *stubStore) FindByResetToken(ctx context.Context, email string, token string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email &&
			u.PasswordResetToken != nil && *u.PasswordResetToken == token &&
			u.PasswordResetExpires != nil && u.PasswordResetExpires.After(time.Now()) {
			return *u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *stubStore) ResetPassword(ctx context.Context, id string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.PasswordResetToken = nil
	u.PasswordResetExpires = nil
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	for sid, session := range s.sessions {
		if session.UserID == id {
			delete(s.sessions, sid)
		}
	}
	return nil
}

func (s *stubStore) ChangePassword(ctx context.Context, id string, passwordHash string, keepTokenHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	for sid, session := range s.sessions {
		if session.UserID != id {
			continue
		}
		if keepTokenHash != nil && bytes.Equal(session.RefreshTokenHash, keepTokenHash) {
			continue
		}
		delete(s.sessions, sid)
	}
	return nil
}

func (s *stubStore) UpdateProfile(ctx context.Context, id string, displayName *string, bio *string, avatarURL *string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	if displayName != nil {
		u.DisplayName = *displayName
	}
	if bio != nil {
		u.Bio = *bio
	}
	if avatarURL != nil {
		u.AvatarURL = avatarURL
	}
	return *u, nil
}

func (s *stubStore) FindByTokenHash(ctx context.Context, userID string, tokenHash []byte) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.UserID == userID &&
			bytes.Equal(session.RefreshTokenHash, tokenHash) &&
			session.ExpiresAt.After(time.Now()) {
			return *session, nil
		}
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (s *stubStore) DeleteByTokenHash(ctx context.Context, tokenHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sid, session := range s.sessions {
		if bytes.Equal(session.RefreshTokenHash, tokenHash) {
			delete(s.sessions, sid)
		}
	}
	return nil
}

func (s *stubStore) DeleteAllForUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sid, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, sid)
		}
	}
	return nil
}

// stubSessions exposes the store under the session method set.
type stubSessions struct{ *stubStore }

func (s stubSessions) Create(ctx context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := session
	s.sessions[session.ID] = &sess
	return nil
}

type recordingMailer struct {
	mu            sync.Mutex
	verifications []string
	resets        []string
}

func (m *recordingMailer) SendVerification(ctx context.Context, to string, displayName string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications = append(m.verifications, token)
	return nil
}

func (m *recordingMailer) SendPasswordReset(ctx context.Context, to string, displayName string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, token)
	return nil
}

func (m *recordingMailer) lastVerification(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.verifications)
	return m.verifications[len(m.verifications)-1]
}

func (m *recordingMailer) lastReset(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.resets)
	return m.resets[len(m.resets)-1]
}

type testEnv struct {
	router *gin.Engine
	store  *stubStore
	mailer *recordingMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	cfg := &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
	}

	tokens := security.NewTokenManager("access-secret", "refresh-secret", security.TokenTTLs{
		Access:  15 * time.Minute,
		Refresh: 7 * 24 * time.Hour,
		Email:   24 * time.Hour,
		Reset:   time.Hour,
	})
	hasher := security.NewPasswordHasher(bcrypt.MinCost)
	lockout := security.NewLockoutPolicy(5, 30*time.Minute)

	store := newStubStore()
	mailer := &recordingMailer{}

	auth := service.NewAuthService(
		store,
		stubSessions{store},
		tokens,
		hasher,
		lockout,
		mailer,
		cfg.Security.RefreshTokenTTL,
		time.Hour,
		zerolog.Nop(),
	)

	h := HandlerSet{
		log:    zerolog.Nop(),
		cfg:    cfg,
		auth:   auth,
		tokens: tokens,
		users:  store,
		cache:  cache,
	}

	router := gin.New()
	h.Register(router.Group("/"))

	return &testEnv{router: router, store: store, mailer: mailer}
}

type request struct {
	method     string
	path       string
	body       any
	bearer     string
	cookies    []*http.Cookie
	remoteAddr string
}

func (e *testEnv) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(r.method, r.path, payload)
	req.RemoteAddr = r.remoteAddr
	if req.RemoteAddr == "" {
		req.RemoteAddr = "192.0.2.1:4000"
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}
	for _, cookie := range r.cookies {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == refreshCookieName {
			return cookie
		}
	}
	t.Fatal("refresh cookie not set")
	return nil
}

const testPassword = "Aa1!aaaa"

func registerBody(username string, email string) gin.H {
	return gin.H{
		"username": username,
		"email":    email,
		"password": testPassword,
	}
}

// registerVerified walks the register + verify-email flow.
func (e *testEnv) registerVerified(t *testing.T, username string, email string) {
	t.Helper()
	rec := e.do(t, request{method: http.MethodPost, path: "/auth/register", body: registerBody(username, email)})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, request{method: http.MethodGet, path: "/auth/verify-email?token=" + e.mailer.lastVerification(t)})
	require.Equal(t, http.StatusOK, rec.Code)
}

func (e *testEnv) login(t *testing.T, identifier string, password string) (string, *http.Cookie) {
	t.Helper()
	rec := e.do(t, request{method: http.MethodPost, path: "/auth/login", body: gin.H{
		"identifier": identifier,
		"password":   password,
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.AccessToken)
	return body.AccessToken, refreshCookie(t, rec)
}

func TestRegisterEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, request{method: http.MethodPost, path: "/auth/register", body: registerBody("nova", "nova@x.io")})
	assert.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		User map[string]any `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "nova", body.User["username"])
	assert.Equal(t, false, body.User["emailVerified"])
	assert.NotContains(t, rec.Body.String(), testPassword)
	assert.NotContains(t, rec.Body.String(), "passwordHash")

	require.Len(t, env.mailer.verifications, 1)
}

func TestRegisterRejectsUnknownFields(t *testing.T) {
	env := newTestEnv(t)

	body := registerBody("nova", "nova@x.io")
	body["isAdmin"] = true
	rec := env.do(t, request{method: http.MethodPost, path: "/auth/register", body: body})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_error")
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	// Rejected requests still count against the register window, so each
	// case gets its own client address.
	cases := []struct {
		name string
		addr string
		body gin.H
	}{
		{"weak password", "192.0.2.10:4000", gin.H{"username": "nova", "email": "nova@x.io", "password": "alllowercase1!"}},
		{"short password", "192.0.2.11:4000", gin.H{"username": "nova", "email": "nova@x.io", "password": "Aa1!"}},
		{"bad username chars", "192.0.2.12:4000", gin.H{"username": "no va!", "email": "nova@x.io", "password": testPassword}},
		{"bad email", "192.0.2.13:4000", gin.H{"username": "nova", "email": "not-an-email", "password": testPassword}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, request{method: http.MethodPost, path: "/auth/register", body: tc.body, remoteAddr: tc.addr})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRegisterRateLimitCountsRejectedRequests(t *testing.T) {
	env := newTestEnv(t)

	// Three malformed bodies exhaust the window before anything valid
	// arrives.
	bad := gin.H{"username": "nova", "email": "not-an-email", "password": testPassword}
	for i := 0; i < 3; i++ {
		rec := env.do(t, request{method: http.MethodPost, path: "/auth/register", body: bad})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}

	rec := env.do(t, request{method: http.MethodPost, path: "/auth/register", body: registerBody("nova", "nova@x.io")})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, request{method: http.MethodPost, path: "/auth/register", body: registerBody("nova", "nova@x.io")})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, request{method: http.MethodPost, path: "/auth/register", body: registerBody("nova", "other@x.io")})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "username_exists")
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, request{method: http.MethodPost, path: "/auth/register", body: registerBody("nova", "nova@x.io")})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, request{method: http.MethodPost, path: "/auth/login", body: gin.H{
		"identifier": "nova",
		"password":   testPassword,
	}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "email_not_verified")
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "nova", "nova@x.io")

	_, cookie := env.login(t, "nova", testPassword)

	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/auth", cookie.Path)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.False(t, cookie.Secure)
	assert.NotEmpty(t, cookie.Value)
}

func TestMeEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "nova", "nova@x.io")
	accessToken, _ := env.login(t, "nova", testPassword)

	rec := env.do(t, request{method: http.MethodGet, path: "/auth/me", bearer: accessToken})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"nova"`)

	rec = env.do(t, request{method: http.MethodGet, path: "/auth/me"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "nova", "nova@x.io")
	accessToken, cookie := env.login(t, "nova", testPassword)

	rec := env.do(t, request{method: http.MethodPost, path: "/auth/refresh", cookies: []*http.Cookie{cookie}})
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.AccessToken)
	assert.NotEqual(t, accessToken, body.AccessToken)
}

func TestRefreshWithoutCookie(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, request{method: http.MethodPost, path: "/auth/refresh"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "no_refresh_token")
}

func TestLogoutClearsCookieAndSession(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "nova", "nova@x.io")
	_, cookie := env.login(t, "nova", testPassword)

	rec := env.do(t, request{method: http.MethodPost, path: "/auth/logout", cookies: []*http.Cookie{cookie}})
	assert.Equal(t, http.StatusOK, rec.Code)
	cleared := refreshCookie(t, rec)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)

	// The session is gone, the old cookie no longer refreshes.
	rec = env.do(t, request{method: http.MethodPost, path: "/auth/refresh", cookies: []*http.Cookie{cookie}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_refresh_token")
}

func TestLogoutWithoutCookie(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, request{method: http.MethodPost, path: "/auth/logout"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifyEmailMissingToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, request{method: http.MethodGet, path: "/auth/verify-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForgotPasswordUniformResponse(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "nova", "nova@x.io")

	known := env.do(t, request{method: http.MethodPost, path: "/auth/forgot-password", body: gin.H{"email": "nova@x.io"}})
	unknown := env.do(t, request{method: http.MethodPost, path: "/auth/forgot-password", body: gin.H{"email": "ghost@x.io"}})

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())

	assert.Len(t, env.mailer.resets, 1)
}

func TestResetPasswordEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "nova", "nova@x.io")

	rec := env.do(t, request{method: http.MethodPost, path: "/auth/forgot-password", body: gin.H{"email": "nova@x.io"}})
	require.Equal(t, http.StatusOK, rec.Code)

	const newPassword = "Bb2!bbbb"
	rec = env.do(t, request{method: http.MethodPost, path: "/auth/reset-password", body: gin.H{
		"token":       env.mailer.lastReset(t),
		"newPassword": newPassword,
	}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, request{method: http.MethodPost, path: "/auth/login", body: gin.H{
		"identifier": "nova",
		"password":   testPassword,
	}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	env.login(t, "nova", newPassword)
}

func TestChangePasswordKeepsCurrentDevice(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "nova", "nova@x.io")

	accessA, cookieA := env.login(t, "nova", testPassword)
	_, cookieB := env.login(t, "nova", testPassword)

	const newPassword = "Bb2!bbbb"
	rec := env.do(t, request{
		method:  http.MethodPost,
		path:    "/auth/change-password",
		body:    gin.H{"currentPassword": testPassword, "newPassword": newPassword},
		bearer:  accessA,
		cookies: []*http.Cookie{cookieA},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Device A keeps refreshing, device B is signed out.
	rec = env.do(t, request{method: http.MethodPost, path: "/auth/refresh", cookies: []*http.Cookie{cookieA}})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, request{method: http.MethodPost, path: "/auth/refresh", cookies: []*http.Cookie{cookieB}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "nova", "nova@x.io")
	accessToken, cookie := env.login(t, "nova", testPassword)

	rec := env.do(t, request{
		method:  http.MethodPost,
		path:    "/auth/change-password",
		body:    gin.H{"currentPassword": "Wrong1!x", "newPassword": "Bb2!bbbb"},
		bearer:  accessToken,
		cookies: []*http.Cookie{cookie},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_current_password")
}

func TestUpdateProfileEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "nova", "nova@x.io")
	accessToken, _ := env.login(t, "nova", testPassword)

	rec := env.do(t, request{
		method: http.MethodPut,
		path:   "/auth/profile",
		body:   gin.H{"displayName": "Nova Prime", "bio": "explorer"},
		bearer: accessToken,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"displayName":"Nova Prime"`)
	assert.Contains(t, rec.Body.String(), `"bio":"explorer"`)
}

func TestUpdateProfileRequiresVerifiedEmail(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, request{method: http.MethodPost, path: "/auth/register", body: registerBody("nova", "nova@x.io")})
	require.Equal(t, http.StatusCreated, rec.Code)

	// An access token for the unverified account clears Auth but not
	// RequireVerified.
	env.store.mu.Lock()
	var userID string
	for id := range env.store.users {
		userID = id
	}
	env.store.mu.Unlock()

	tokens := security.NewTokenManager("access-secret", "refresh-secret", security.TokenTTLs{
		Access: 15 * time.Minute, Refresh: time.Hour, Email: time.Hour, Reset: time.Hour,
	})
	accessToken, err := tokens.IssueAccess(userID)
	require.NoError(t, err)

	rec = env.do(t, request{
		method: http.MethodPut,
		path:   "/auth/profile",
		body:   gin.H{"displayName": "Nova Prime"},
		bearer: accessToken,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "email_not_verified")
}

func TestRegisterRateLimit(t *testing.T) {
	env := newTestEnv(t)

	for i, name := range []string{"user-a", "user-b", "user-c"} {
		rec := env.do(t, request{method: http.MethodPost, path: "/auth/register", body: registerBody(name, name+"@x.io")})
		require.Equal(t, http.StatusCreated, rec.Code, "request %d", i+1)
	}

	rec := env.do(t, request{method: http.MethodPost, path: "/auth/register", body: registerBody("user-d", "user-d@x.io")})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
