package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	appauth "propchat/internal/app/services/auth"
	domainauth "propchat/internal/domain/auth"
	"propchat/internal/domain/chat"
)

const principalContextKey = "propchat.principal"

type principal struct {
	Actor chat.Actor
	Token string
}

// AuthMiddleware resolves the bearer credential once per request. Requests
// without a valid credential continue anonymously; handlers decide whether
// that is acceptable.
type AuthMiddleware struct {
	Gate   appauth.Gate
	Logger *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	cred := credentialFromRequest(c)
	if cred.Empty() || m.Gate == nil {
		c.Next()
		return
	}
	actor, err := m.Gate.Authenticate(c.Request.Context(), cred)
	if err != nil {
		if !errors.Is(err, chat.ErrUnauthenticated) && m.Logger != nil {
			m.Logger.Debug("credential validation failed", "error", err)
		}
		c.Next()
		return
	}
	setPrincipal(c, principal{Actor: actor, Token: cred.Token})
	c.Next()
}

// credentialFromRequest reads the Authorization header. Browsers cannot set
// headers on websocket upgrades, so the push endpoint may pass access_token.
func credentialFromRequest(c *gin.Context) domainauth.Credential {
	cred := domainauth.CredentialFromHeader(c.GetHeader("Authorization"))
	if cred.Empty() && c.IsWebsocket() {
		cred = domainauth.Credential{Token: c.Query("access_token")}
	}
	return cred
}

func setPrincipal(c *gin.Context, p principal) {
	c.Set(principalContextKey, p)
}

func currentPrincipal(c *gin.Context) (principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return principal{}, false
	}
	p, ok := val.(principal)
	return p, ok
}

// requireActor aborts with 401 when no actor was resolved, and with 403 when
// adminOnly is set and the actor is not an admin.
func requireActor(c *gin.Context, adminOnly bool) (chat.Actor, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return chat.Actor{}, false
	}
	if adminOnly && !p.Actor.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
		return chat.Actor{}, false
	}
	return p.Actor, true
}
