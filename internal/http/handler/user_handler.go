// Package handler translates HTTP requests into service commands and typed
// outcomes back into status codes. Nothing below this layer knows about
// HTTP.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quickmart/quickmart-auth/internal/domain"
	"github.com/quickmart/quickmart-auth/internal/http/middleware"
	"github.com/quickmart/quickmart-auth/internal/service"
)

// UserHandler serves the account and role endpoints.
type UserHandler struct {
	Users  *service.UserService
	Logger *zap.Logger
}

// NewUserHandler wires dependencies.
func NewUserHandler(users *service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{Users: users, Logger: logger}
}

// Register creates a new account.
func (h *UserHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid payload.")
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	profile, err := h.Users.Register(c.Request.Context(), service.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Address:   req.Address,
		Role:      req.Role,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, profile)
}

// Login authenticates and returns a bearer token.
func (h *UserHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid payload.")
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	resp, err := h.Users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Me returns the authenticated caller's profile.
func (h *UserHandler) Me(c *gin.Context) {
	userID, ok := middleware.SubjectID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authentication required."})
		return
	}
	profile, err := h.Users.GetByID(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// ListUsers lists accounts; ?include_deleted=true includes soft-deleted rows.
func (h *UserHandler) ListUsers(c *gin.Context) {
	includeDeleted := c.Query("include_deleted") == "true"
	users, err := h.Users.ListUsers(c.Request.Context(), !includeDeleted)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// ListSoftDeleted lists only soft-deleted accounts.
func (h *UserHandler) ListSoftDeleted(c *gin.Context) {
	users, err := h.Users.ListSoftDeleted(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GetUser returns one account by ID, soft-deleted or not.
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	profile, err := h.Users.GetByID(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateUser applies a partial profile update. Callers may update themselves;
// admins may update anyone.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	if !h.canActOn(c, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "error_description": "Cannot modify another account."})
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid payload.")
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	profile, err := h.Users.UpdateProfile(c.Request.Context(), userID, service.UpdateProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Address:   req.Address,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// DeleteUser soft-deletes an account.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Users.SoftDelete(c.Request.Context(), userID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted."})
}

// CreateRole adds a new role name.
func (h *UserHandler) CreateRole(c *gin.Context) {
	var req createRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid payload.")
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	role, err := h.Users.CreateRole(c.Request.Context(), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": role.ID, "name": role.Name})
}

// ListRoles returns the defined role names.
func (h *UserHandler) ListRoles(c *gin.Context) {
	roles, err := h.Users.ListRoles(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(roles))
	for _, role := range roles {
		out = append(out, gin.H{"id": role.ID, "name": role.Name})
	}
	c.JSON(http.StatusOK, gin.H{"roles": out})
}

// AssignRole points a user at an existing role.
func (h *UserHandler) AssignRole(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid payload.")
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.Users.AssignRole(c.Request.Context(), userID, req.Role); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Role assigned."})
}

// ForgotPassword mails a reset link. The response never reveals whether the
// address is registered.
func (h *UserHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid payload.")
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.Users.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "If the account exists, password reset instructions have been sent."})
}

// ResetPassword consumes the token and stores the new password.
func (h *UserHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid payload.")
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.Users.ResetPassword(c.Request.Context(), req.Email, req.Token, req.NewPassword); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset."})
}

func (h *UserHandler) canActOn(c *gin.Context, userID int64) bool {
	claims, ok := middleware.GetAccessClaims(c)
	if !ok {
		return false
	}
	if claims.Role == "Admin" {
		return true
	}
	subject, ok := middleware.SubjectID(c)
	return ok && subject == userID
}

func (h *UserHandler) respondError(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		badRequest(c, verr.Error())
	case errors.Is(err, domain.ErrEmailTaken), errors.Is(err, domain.ErrRoleExists):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "error_description": err.Error()})
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrRoleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": err.Error()})
	case errors.Is(err, domain.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials", "error_description": "Invalid credentials."})
	case errors.Is(err, domain.ErrInvalidResetToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid or expired reset token."})
	default:
		// Dependency failures stay generic toward the caller; detail goes to
		// the server log.
		h.log().Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "error_description": "Something went wrong."})
	}
}

func (h *UserHandler) log() *zap.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}

func badRequest(c *gin.Context, description string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": description})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "Invalid user id.")
		return 0, false
	}
	return id, true
}
