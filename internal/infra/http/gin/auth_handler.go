package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"propchat/internal/app/dto"
	authsvc "propchat/internal/app/services/auth"
	domainuser "propchat/internal/domain/user"
)

type AuthHTTP interface {
	Register(c *gin.Context)
	Login(c *gin.Context)
	Logout(c *gin.Context)
	Me(c *gin.Context)
}

// AuthHandler exposes the session account endpoints. It is only mounted when
// AUTH_MODE=session.
type AuthHandler struct {
	Service *authsvc.Service
	Logger  *slog.Logger
}

// Login failures and blocked accounts share one message so the response does
// not reveal which emails exist.
var authErrorStatus = []struct {
	err    error
	status int
	public string
}{
	{authsvc.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
	{authsvc.ErrUserBlocked, http.StatusUnauthorized, "invalid credentials"},
	{authsvc.ErrPasswordTooShort, http.StatusBadRequest, ""},
	{authsvc.ErrRoleNotAllowed, http.StatusBadRequest, ""},
	{domainuser.ErrEmailRequired, http.StatusBadRequest, ""},
	{domainuser.ErrNameRequired, http.StatusBadRequest, ""},
	{domainuser.ErrInvalidRole, http.StatusBadRequest, ""},
	{domainuser.ErrEmailAlreadyUsed, http.StatusConflict, ""},
}

func (h AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if !h.bind(c, &req) {
		return
	}
	result, err := h.Service.Register(c.Request.Context(), authsvc.RegisterParams(req))
	h.respond(c, http.StatusCreated, result, err)
}

func (h AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !h.bind(c, &req) {
		return
	}
	result, err := h.Service.Login(c.Request.Context(), authsvc.LoginParams(req))
	h.respond(c, http.StatusOK, result, err)
}

func (h AuthHandler) Logout(c *gin.Context) {
	if !h.available(c) {
		return
	}
	p, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return
	}
	if err := h.Service.Logout(c.Request.Context(), p.Token); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Me returns the stored profile, or the token claims when the user is not
// known locally (JWT-issued identities).
func (h AuthHandler) Me(c *gin.Context) {
	actor, ok := requireActor(c, false)
	if !ok {
		return
	}
	profile := dto.UserProfile{ID: actor.ID, Name: actor.DisplayName, Role: string(actor.Role)}
	if h.Service != nil && h.Service.Users != nil {
		user, err := h.Service.Users.ByID(c.Request.Context(), domainuser.ID(actor.ID))
		switch {
		case err == nil:
			profile = dto.MapUserProfile(user)
		case !errors.Is(err, domainuser.ErrNotFound):
			h.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, profile)
}

func (h AuthHandler) available(c *gin.Context) bool {
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "auth service unavailable"})
		return false
	}
	return true
}

func (h AuthHandler) bind(c *gin.Context, into any) bool {
	if !h.available(c) {
		return false
	}
	if err := c.ShouldBindJSON(into); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return false
	}
	return true
}

func (h AuthHandler) respond(c *gin.Context, status int, result *authsvc.AuthResult, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, dto.NewAuthResponse(result.User, result.Token))
}

func (h AuthHandler) fail(c *gin.Context, err error) {
	for _, m := range authErrorStatus {
		if !errors.Is(err, m.err) {
			continue
		}
		msg := m.public
		if msg == "" {
			msg = err.Error()
		}
		c.JSON(m.status, gin.H{"error": msg})
		return
	}
	if h.Logger != nil {
		h.Logger.Error("auth operation failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
