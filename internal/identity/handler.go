package identity

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/custodia-wms/custodia/internal/platform/httpx"
)

// Handler wires HTTP endpoints for sessions and user management.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	sessions *SessionStore
	validate *validator.Validate
}

// NewHandler constructs the identity handler.
func NewHandler(logger *slog.Logger, service *Service, sessions *SessionStore) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		sessions: sessions,
		validate: validator.New(),
	}
}

// MountAuthRoutes registers the unauthenticated login route.
func (h *Handler) MountAuthRoutes(r chi.Router) {
	r.Post("/login", h.login)
}

// MountRoutes registers session-protected identity routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)
	r.Route("/users", func(r chi.Router) {
		r.Use(RequireRole(RoleAdmin))
		r.Get("/", h.listUsers)
		r.Post("/", h.createUser)
		r.Put("/{id}", h.updateUser)
		r.Delete("/{id}", h.deleteUser)
	})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	user, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid username or password")
		return
	}
	token, err := h.sessions.Create(r.Context(), user)
	if err != nil {
		h.logger.Error("create session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		if err := h.sessions.Delete(r.Context(), token); err != nil {
			h.logger.Warn("delete session", slog.Any("error", err))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	ident, ok := FromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no session")
		return
	}
	httpx.JSON(w, http.StatusOK, ident)
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	Role     Role   `json:"role" validate:"required"`
}

type updateUserRequest struct {
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"omitempty,min=8"`
	Role     Role   `json:"role" validate:"required"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil || !req.Role.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid user fields")
		return
	}
	user, err := h.service.Create(r.Context(), CreateInput{
		Username: req.Username,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			httpx.Problem(w, http.StatusConflict, "Username Taken", "a user with this username already exists")
			return
		}
		h.logger.Error("create user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil || !req.Role.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid user fields")
		return
	}
	user, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), UpdateInput{
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "user does not exist")
			return
		}
		h.logger.Error("update user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	ident, _ := FromContext(r.Context())
	err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), ident.UserID)
	if err != nil {
		switch {
		case errors.Is(err, ErrSelfDelete):
			httpx.Problem(w, http.StatusConflict, "Self Delete", "cannot delete the account behind the current session")
		case errors.Is(err, ErrUserNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", "user does not exist")
		default:
			h.logger.Error("delete user", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
