package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quickmart/quickmart-auth/internal/config"
	"github.com/quickmart/quickmart-auth/internal/domain"
	httptransport "github.com/quickmart/quickmart-auth/internal/http"
	"github.com/quickmart/quickmart-auth/internal/http/handler"
	httpmiddleware "github.com/quickmart/quickmart-auth/internal/http/middleware"
	"github.com/quickmart/quickmart-auth/internal/jwt"
	"github.com/quickmart/quickmart-auth/internal/repository"
	"github.com/quickmart/quickmart-auth/internal/service"
)

type apiFixture struct {
	router *gin.Engine
	users  *service.UserService
	mail   *stubNotifier
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	tokens, err := jwt.NewGenerator("handler-test-secret", "quickmart-auth", "quickmart", time.Minute)
	require.NoError(t, err)

	mail := &stubNotifier{}
	resets := service.NewResetTokenService(newStubResetRepo(), node, time.Minute)
	users := service.NewUserService(
		newStubUserRepo(),
		newStubRoleRepo("Admin", "Manager", "User"),
		resets,
		tokens,
		mail,
		node,
		"User",
		"https://shop.test",
		zap.NewNop(),
	)

	cfg := config.Config{
		ServiceName:        "quickmart-auth-test",
		CORSAllowedOrigins: []string{"*"},
	}
	router := httptransport.NewRouter(cfg, handler.NewUserHandler(users, zap.NewNop()), &httpmiddleware.Auth{Tokens: tokens}, nil, zap.NewNop())

	return &apiFixture{router: router, users: users, mail: mail}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body := bytes.NewBuffer(nil)
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) register(t *testing.T, email, role string) int64 {
	t.Helper()
	w := f.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"first_name": "Test",
		"last_name":  "User",
		"email":      email,
		"password":   "sup3rsecret",
		"role":       role,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var profile struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	return profile.ID
}

func (f *apiFixture) login(t *testing.T, email string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": email, "password": "sup3rsecret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func TestRegisterEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"email":      "ada@example.com",
		"password":   "sup3rsecret",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"role":"User"`)
	require.NotContains(t, w.Body.String(), "password")

	// Same email again, any case, conflicts.
	w = f.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"email":      "ADA@example.com",
		"password":   "sup3rsecret",
	})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/auth/register", "", gin.H{"email": "not-an-email"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"first_name": "Bob",
		"last_name":  "Builder",
		"email":      "bob@example.com",
		"password":   "sup3rsecret",
		"role":       "Ghost",
	})
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestLoginEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "ada@example.com", "")

	token := f.login(t, "ada@example.com")
	require.NotEmpty(t, token)

	w := f.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "ada@example.com", "password": "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "ghost@example.com", "password": "sup3rsecret"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeRequiresToken(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "ada@example.com", "")
	token := f.login(t, "ada@example.com")

	w := f.do(t, http.MethodGet, "/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/auth/me", "garbage.token.here", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), "ada@example.com")
}

func TestRoleGuards(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "admin@example.com", "Admin")
	userID := f.register(t, "user@example.com", "")

	adminToken := f.login(t, "admin@example.com")
	userToken := f.login(t, "user@example.com")

	w := f.do(t, http.MethodGet, "/users", userToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/users", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), "user@example.com")

	w = f.do(t, http.MethodPost, "/roles", userToken, gin.H{"name": "Support"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/roles", adminToken, gin.H{"name": "Support"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/roles", adminToken, gin.H{"name": "Support"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/roles", userToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/roles", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), "Manager")
	require.Contains(t, w.Body.String(), "Support")

	w = f.do(t, http.MethodPut, fmt.Sprintf("/users/%d/role", userID), adminToken, gin.H{"role": "Support"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPut, fmt.Sprintf("/users/%d/role", userID), adminToken, gin.H{"role": "Ghost"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestProfileOwnership(t *testing.T) {
	f := newAPIFixture(t)
	adaID := f.register(t, "ada@example.com", "")
	bobID := f.register(t, "bob@example.com", "")
	f.register(t, "admin@example.com", "Admin")

	adaToken := f.login(t, "ada@example.com")
	adminToken := f.login(t, "admin@example.com")

	w := f.do(t, http.MethodPut, fmt.Sprintf("/users/%d", adaID), adaToken, gin.H{"address": "1 New Street"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), "1 New Street")

	w = f.do(t, http.MethodPut, fmt.Sprintf("/users/%d", bobID), adaToken, gin.H{"address": "stolen"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPut, fmt.Sprintf("/users/%d", bobID), adminToken, gin.H{"address": "2 Admin Way"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestSoftDeleteEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "admin@example.com", "Admin")
	userID := f.register(t, "user@example.com", "")

	adminToken := f.login(t, "admin@example.com")
	userToken := f.login(t, "user@example.com")

	w := f.do(t, http.MethodDelete, fmt.Sprintf("/users/%d", userID), userToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodDelete, fmt.Sprintf("/users/%d", userID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/users", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "user@example.com")

	w = f.do(t, http.MethodGet, "/users/deleted", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "user@example.com")

	// Direct lookup still works for a soft-deleted row.
	w = f.do(t, http.MethodGet, fmt.Sprintf("/users/%d", userID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"is_deleted":true`)

	w = f.do(t, http.MethodGet, "/users/999999", adminToken, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/users/not-a-number", adminToken, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPasswordResetEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "ada@example.com", "")

	w := f.do(t, http.MethodPost, "/auth/password/forgot", "", gin.H{"email": "ada@example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Unknown address gets the same response.
	w = f.do(t, http.MethodPost, "/auth/password/forgot", "", gin.H{"email": "ghost@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, f.mail.sent())

	token := f.mail.tokenFromLastBody(t)

	w = f.do(t, http.MethodPost, "/auth/password/reset", "", gin.H{
		"email":        "ada@example.com",
		"token":        "wrong-token",
		"new_password": "an0ther-secret",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/auth/password/reset", "", gin.H{
		"email":        "ada@example.com",
		"token":        token,
		"new_password": "an0ther-secret",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The token is single use.
	w = f.do(t, http.MethodPost, "/auth/password/reset", "", gin.H{
		"email":        "ada@example.com",
		"token":        token,
		"new_password": "yet-another-one",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "ada@example.com", "password": "an0ther-secret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

type stubUserRepo struct {
	mu    sync.Mutex
	users map[int64]domain.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: map[int64]domain.User{}}
}

var _ repository.UserRepository = (*stubUserRepo)(nil)

func (m *stubUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return domain.User{}, domain.ErrEmailTaken
		}
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

func (m *stubUserRepo) GetByID(_ context.Context, userID int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (m *stubUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (m *stubUserRepo) List(_ context.Context, excludeSoftDeleted bool) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.User
	for _, user := range m.users {
		if excludeSoftDeleted && user.IsDeleted {
			continue
		}
		out = append(out, user)
	}
	return out, nil
}

func (m *stubUserRepo) ListSoftDeleted(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.User
	for _, user := range m.users {
		if user.IsDeleted {
			out = append(out, user)
		}
	}
	return out, nil
}

func (m *stubUserRepo) UpdateProfile(_ context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.users[user.ID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	for id, existing := range m.users {
		if id != user.ID && strings.EqualFold(existing.Email, user.Email) {
			return domain.User{}, domain.ErrEmailTaken
		}
	}
	current.FirstName = user.FirstName
	current.LastName = user.LastName
	current.Email = user.Email
	current.Address = user.Address
	current.UpdatedAt = time.Now().UTC()
	m.users[user.ID] = current
	return current, nil
}

func (m *stubUserRepo) UpdateRole(_ context.Context, userID int64, roleName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.Role = roleName
	m.users[userID] = user
	return nil
}

func (m *stubUserRepo) UpdatePassword(_ context.Context, userID int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	m.users[userID] = user
	return nil
}

func (m *stubUserRepo) SoftDelete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.IsDeleted = true
	m.users[userID] = user
	return nil
}

type stubRoleRepo struct {
	mu    sync.Mutex
	roles map[string]domain.Role
}

func newStubRoleRepo(seed ...string) *stubRoleRepo {
	repo := &stubRoleRepo{roles: map[string]domain.Role{}}
	for i, name := range seed {
		repo.roles[name] = domain.Role{ID: int64(i + 1), Name: name}
	}
	return repo
}

var _ repository.RoleRepository = (*stubRoleRepo)(nil)

func (m *stubRoleRepo) Create(_ context.Context, role domain.Role) (domain.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[role.Name]; ok {
		return domain.Role{}, domain.ErrRoleExists
	}
	role.CreatedAt = time.Now().UTC()
	m.roles[role.Name] = role
	return role, nil
}

func (m *stubRoleRepo) Exists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.roles[name]
	return ok, nil
}

func (m *stubRoleRepo) List(_ context.Context) ([]domain.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, role)
	}
	return out, nil
}

type stubResetRepo struct {
	mu     sync.Mutex
	tokens map[string]domain.PasswordResetToken
}

func newStubResetRepo() *stubResetRepo {
	return &stubResetRepo{tokens: map[string]domain.PasswordResetToken{}}
}

var _ repository.ResetTokenRepository = (*stubResetRepo)(nil)

func (m *stubResetRepo) Create(_ context.Context, token domain.PasswordResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.Token] = token
	return nil
}

func (m *stubResetRepo) Consume(_ context.Context, userID int64, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tokens[token]
	if !ok || stored.UserID != userID || stored.Consumed || time.Now().After(stored.ExpiresAt) {
		return false, nil
	}
	stored.Consumed = true
	m.tokens[token] = stored
	return true, nil
}

type stubNotifier struct {
	mu     sync.Mutex
	bodies []string
}

func (n *stubNotifier) Send(_ context.Context, _, _, htmlBody string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bodies = append(n.bodies, htmlBody)
	return nil
}

func (n *stubNotifier) sent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.bodies)
}

// tokenFromLastBody pulls the token query parameter out of the reset link in
// the most recent message.
func (n *stubNotifier) tokenFromLastBody(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.bodies)
	body := n.bodies[len(n.bodies)-1]
	idx := strings.Index(body, "token=")
	require.GreaterOrEqual(t, idx, 0, "reset link missing from mail body")
	rest := body[idx+len("token="):]
	if amp := strings.IndexAny(rest, "&\""); amp >= 0 {
		rest = rest[:amp]
	}
	return rest
}
