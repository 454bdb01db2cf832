package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/custodia-wms/custodia/internal/shared"
)

type memoryUserRepo struct {
	users map[string]User
}

func newMemoryUserRepo(users ...User) *memoryUserRepo {
	r := &memoryUserRepo{users: map[string]User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memoryUserRepo) List(context.Context) ([]User, error) {
	var out []User
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *memoryUserRepo) Get(_ context.Context, id string) (User, error) {
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (r *memoryUserRepo) GetByUsername(_ context.Context, username string) (User, error) {
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *memoryUserRepo) UsernameExists(_ context.Context, username, excludeID string) (bool, error) {
	for _, u := range r.users {
		if u.Username == username && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryUserRepo) Insert(_ context.Context, u User) error {
	r.users[u.ID] = u
	return nil
}

func (r *memoryUserRepo) Update(_ context.Context, u User) error {
	if _, ok := r.users[u.ID]; !ok {
		return ErrUserNotFound
	}
	r.users[u.ID] = u
	return nil
}

func (r *memoryUserRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthenticate(t *testing.T) {
	repo := newMemoryUserRepo(User{
		ID:           "u-1",
		Username:     "hassan",
		Name:         "Hassan",
		Role:         RoleStorekeeper,
		PasswordHash: hashFor(t, "correct horse"),
	})
	svc := NewService(repo)

	user, err := svc.Authenticate(context.Background(), "hassan", "correct horse")
	require.NoError(t, err)
	require.Equal(t, "u-1", user.ID)

	_, err = svc.Authenticate(context.Background(), "hassan", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "nobody", "correct horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateRejectsDuplicateUsername(t *testing.T) {
	repo := newMemoryUserRepo(User{ID: "u-1", Username: "hassan"})
	svc := NewService(repo)

	_, err := svc.Create(context.Background(), CreateInput{
		Username: "hassan",
		Name:     "Other Hassan",
		Password: "long enough pw",
		Role:     RoleStorekeeper,
	})
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestCreateHashesPassword(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo)

	user, err := svc.Create(context.Background(), CreateInput{
		Username: "mona",
		Name:     "  Mona Ali ",
		Password: "a sound secret",
		Role:     RoleManager,
	})
	require.NoError(t, err)
	require.Equal(t, "Mona Ali", user.Name)
	require.NotEqual(t, "a sound secret", user.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("a sound secret")))
}

func TestDeleteRejectsSelf(t *testing.T) {
	repo := newMemoryUserRepo(User{ID: "u-1", Username: "admin", Role: RoleAdmin})
	svc := NewService(repo)

	require.ErrorIs(t, svc.Delete(context.Background(), "u-1", "u-1"), ErrSelfDelete)
	require.NoError(t, svc.Delete(context.Background(), "u-1", "u-2"))
}

func TestSessionRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Hour)

	user := User{ID: "u-1", Username: "hassan", Name: "Hassan", Role: RoleStorekeeper}
	token, err := store.Create(context.Background(), user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ident, err := store.Get(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "Hassan", ident.Name)
	require.Equal(t, RoleStorekeeper, ident.Role)

	require.NoError(t, store.Delete(context.Background(), token))
	_, err = store.Get(context.Background(), token)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute)

	token, err := store.Create(context.Background(), User{ID: "u-1", Name: "Hassan"})
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(context.Background(), token)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRequireSessionStampsPerformer(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Hour)

	token, err := store.Create(context.Background(), User{
		ID:   "u-1",
		Name: "Hassan",
		Role: RoleStorekeeper,
	})
	require.NoError(t, err)

	var performer string
	var ident Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		performer = shared.PerformerFromContext(r.Context())
		ident, _ = FromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	RequireSession(store)(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Hassan", performer)
	require.Equal(t, "u-1", ident.UserID)
}

func TestRequireSessionRejectsMissingToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Hour)

	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without a session")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	RequireSession(store)(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), identityKey, Identity{UserID: "u-1", Role: RoleStorekeeper})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))
	require.Equal(t, http.StatusForbidden, rec.Code)

	ctx = context.WithValue(req.Context(), identityKey, Identity{UserID: "u-1", Role: RoleAdmin})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))
	require.Equal(t, http.StatusOK, rec.Code)
}
