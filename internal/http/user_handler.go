package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"yield/internal/service"
)

// UserHandler serves /api/v1/me and /api/v1/users.
type UserHandler struct {
	userService service.UserService
	logger      *zap.Logger
}

func NewUserHandler(userService service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{userService: userService, logger: logger}
}

func (h *UserHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/me" && r.Method == http.MethodGet:
		h.Me(w, r)
	case path == "/api/v1/users" && r.Method == http.MethodGet:
		h.ListUsers(w, r)
	case path == "/api/v1/users" && r.Method == http.MethodPost:
		h.CreateUser(w, r)
	case r.Method == http.MethodDelete:
		seg := pathSegments(path, "/api/v1/users/")
		if len(seg) != 1 || seg[0] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.DeactivateUser(w, r, seg[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	me, err := h.userService.Me(r.Context(), actor)
	if err != nil {
		writeError(w, h.logger, "Me", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(me))
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	users, err := h.userService.ListUsers(r.Context(), actor)
	if err != nil {
		writeError(w, h.logger, "ListUsers", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": users,
		"total": len(users),
	}))
}

type createUserBody struct {
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required,min=8"`
	FullName       string `json:"full_name" validate:"max=200"`
	Role           string `json:"role" validate:"omitempty,oneof=employee local_admin regional_admin master_admin"`
	TargetLocation string `json:"target_location_id" validate:"omitempty,uuid"`
	TargetRegion   string `json:"target_region_id" validate:"omitempty,uuid"`
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body createUserBody
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	user, err := h.userService.CreateUser(r.Context(), actor, service.CreateUserRequest{
		Email:      body.Email,
		Password:   body.Password,
		FullName:   body.FullName,
		Role:       body.Role,
		LocationID: body.TargetLocation,
		RegionID:   body.TargetRegion,
	})
	if err != nil {
		writeError(w, h.logger, "CreateUser", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(user))
}

func (h *UserHandler) DeactivateUser(w http.ResponseWriter, r *http.Request, userID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	resp, err := h.userService.DeactivateUser(r.Context(), actor, userID)
	if err != nil {
		writeError(w, h.logger, "DeactivateUser", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}
