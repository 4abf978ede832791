// Package management provides the management API handlers and middleware
// for inspecting protected paths and issuing, revoking and sweeping access
// tokens.
package management

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/crypto/bcrypt"

	"github.com/magicgate/magicgate/internal/config"
	"github.com/magicgate/magicgate/internal/routes"
	"github.com/magicgate/magicgate/internal/token"
)

// Handler aggregates the config, registry and token store references the
// management endpoints operate on.
type Handler struct {
	cfg      *config.Config
	registry *routes.Registry
	store    *token.Store
}

// NewHandler creates a new management handler instance.
func NewHandler(cfg *config.Config, registry *routes.Registry, store *token.Store) *Handler {
	return &Handler{cfg: cfg, registry: registry, store: store}
}

// SetConfig updates the in-memory config reference when the server
// hot-reloads.
func (h *Handler) SetConfig(cfg *config.Config) { h.cfg = cfg }

// Middleware enforces access control for management endpoints. All requests
// require a valid management key; remote (non-loopback) access additionally
// requires allow-remote=true.
func (h *Handler) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if clientIP != "127.0.0.1" && clientIP != "::1" && !h.cfg.RemoteManagement.AllowRemote {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "remote management disabled"})
			return
		}
		secret := h.cfg.RemoteManagement.SecretKey
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "management key not set"})
			return
		}

		// Accept either Authorization: Bearer <key> or X-Management-Key.
		var provided string
		if ah := c.GetHeader("Authorization"); ah != "" {
			parts := strings.SplitN(ah, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				provided = parts[1]
			} else {
				provided = ah
			}
		}
		if provided == "" {
			provided = c.GetHeader("X-Management-Key")
		}
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing management key"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(secret), []byte(provided)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid management key"})
			return
		}

		c.Next()
	}
}

// ListPaths returns the canonical protected paths currently registered,
// the valid choices for a token's path field.
func (h *Handler) ListPaths(c *gin.Context) {
	paths := h.registry.ProtectedPaths()
	if paths == nil {
		paths = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"paths": paths})
}

// ListTokens returns every stored token. Tokens whose path no longer
// matches a registered route are flagged as orphaned so administrators can
// spot stale grants after route changes.
func (h *Handler) ListTokens(c *gin.Context) {
	tokens, err := h.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	items := make([]json.RawMessage, 0, len(tokens))
	for _, t := range tokens {
		enc, errMarshal := json.Marshal(t)
		if errMarshal != nil {
			continue
		}
		enc, _ = sjson.SetBytes(enc, "orphaned", !h.registry.Contains(t.Path))
		items = append(items, enc)
	}
	c.JSON(http.StatusOK, gin.H{"tokens": items})
}

// CreateToken issues a new token for a registered canonical path. The
// secret is always generated server-side; callers cannot choose it.
func (h *Handler) CreateToken(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
		return
	}
	description := gjson.GetBytes(body, "description").String()
	path := gjson.GetBytes(body, "path").String()
	if description == "" || path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description and path are required"})
		return
	}
	if !h.registry.Contains(path) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is not a registered protected path"})
		return
	}

	var expiresAt *time.Time
	if v := gjson.GetBytes(body, "expires_at"); v.Exists() {
		parsed, errParse := time.Parse(time.RFC3339, v.String())
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expires_at must be RFC 3339"})
			return
		}
		expiresAt = &parsed
	}
	var maxUses *uint
	if v := gjson.GetBytes(body, "max_uses"); v.Exists() {
		if v.Int() < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_uses must be positive"})
			return
		}
		uses := uint(v.Uint())
		maxUses = &uses
	}

	t := token.New(description, path, expiresAt, maxUses)
	if err = h.store.Create(t); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	log.Infof("issued token %s for path %s", t.ID, t.Path)
	c.JSON(http.StatusCreated, t)
}

// RevokeToken clears the validity flag of the token with the given ID.
func (h *Handler) RevokeToken(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Revoke(id); err != nil {
		if errors.Is(err, token.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown token"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

// CleanupTokens deletes every expired or exhausted token and reports the
// count.
func (h *Handler) CleanupTokens(c *gin.Context) {
	deleted, err := h.store.DeleteExpired(time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
