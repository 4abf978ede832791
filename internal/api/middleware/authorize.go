// Package middleware contains the gin middleware that gates protected
// routes behind access tokens.
package middleware

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/magicgate/magicgate/internal/config"
	"github.com/magicgate/magicgate/internal/routes"
	"github.com/magicgate/magicgate/internal/signal"
	"github.com/magicgate/magicgate/internal/token"
)

// Denial reasons reported through signals and denial responses.
const (
	ReasonNoToken      = "no_token"
	ReasonInvalidToken = "invalid_token"
)

var denialMessages = map[string]string{
	ReasonNoToken:      "Access denied: No token provided",
	ReasonInvalidToken: "Access denied: Invalid token",
}

// ForbiddenHandler renders a custom denial response. When set it takes
// precedence over the configured template and the plain-text default.
type ForbiddenHandler func(c *gin.Context, path string)

// Guard decides, per request, whether the path is protected and whether the
// presented token grants access. It holds no per-request state; one Guard
// serves all requests.
type Guard struct {
	cfg      *config.Config
	registry *routes.Registry
	store    *token.Store
	signals  *signal.Dispatcher

	forbiddenHandler ForbiddenHandler
	forbiddenTmpl    *template.Template
}

// NewGuard constructs the access middleware. The forbidden template, when
// configured, is parsed eagerly so a broken template fails at startup
// rather than on the first denial.
func NewGuard(cfg *config.Config, registry *routes.Registry, store *token.Store, signals *signal.Dispatcher) (*Guard, error) {
	g := &Guard{cfg: cfg, registry: registry, store: store, signals: signals}
	if name := cfg.Auth.ForbiddenTemplate; name != "" {
		tmpl, err := template.ParseFiles(name)
		if err != nil {
			return nil, fmt.Errorf("middleware: parse forbidden template: %w", err)
		}
		g.forbiddenTmpl = tmpl
	}
	return g, nil
}

// SetForbiddenHandler installs a custom denial handler.
func (g *Guard) SetForbiddenHandler(fn ForbiddenHandler) {
	g.forbiddenHandler = fn
}

// SetConfig updates the config reference when the server hot-reloads.
func (g *Guard) SetConfig(cfg *config.Config) {
	g.cfg = cfg
}

// Handler returns the gin middleware. Unprotected paths pass through
// untouched. For protected paths the candidate token is read from the
// configured query parameter first, then from the pattern-scoped cookie; a
// token arriving by query parameter triggers a redirect to the same URL
// with the parameter stripped, so secrets do not linger in address bars or
// referrer headers.
func (g *Guard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestPath := c.Request.URL.Path

		protectedPath, protected := g.registry.Match(requestPath)
		if !protected {
			log.Debugf("access granted to %s: not a protected path", requestPath)
			c.Next()
			return
		}

		cookieKey := g.cfg.Auth.CookiePrefix + url.QueryEscape(protectedPath)

		queryToken := c.Query(g.cfg.Auth.TokenParam)
		candidate := queryToken
		if candidate == "" {
			if cookie, err := c.Request.Cookie(cookieKey); err == nil {
				candidate = cookie.Value
			}
		}
		if candidate == "" {
			log.Infof("access denied to %s: no token provided", requestPath)
			g.deny(c, ReasonNoToken)
			return
		}

		now := time.Now()
		rec, err := g.store.Consume(candidate, protectedPath, now)
		if err != nil {
			if errors.Is(err, token.ErrInvalidToken) || errors.Is(err, token.ErrNoToken) {
				log.Infof("access denied to %s: invalid token provided", requestPath)
				g.deny(c, ReasonInvalidToken)
				return
			}
			// Store failure, not a decision: hand it to the host error
			// handling rather than guessing allow or deny.
			_ = c.Error(err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		g.signals.Granted(signal.GrantedEvent{
			Request:       c.Request,
			TokenID:       rec.ID,
			ProtectedPath: protectedPath,
			At:            now,
		})

		// Cookie first: headers are flushed as soon as the redirect or the
		// downstream handler writes the response.
		g.setCookie(c, cookieKey, candidate, protectedPath)
		log.Debugf("access granted to %s", protectedPath)

		if queryToken != "" {
			c.Redirect(http.StatusFound, stripTokenParam(c.Request.URL, g.cfg.Auth.TokenParam))
			c.Abort()
			return
		}
		c.Next()
	}
}

// deny fires the denial signal and writes the denial response: custom
// handler, then template, then plain text.
func (g *Guard) deny(c *gin.Context, reason string) {
	g.signals.Denied(signal.DeniedEvent{
		Request: c.Request,
		Path:    c.Request.URL.Path,
		Reason:  reason,
		At:      time.Now(),
	})

	c.Abort()
	if g.forbiddenHandler != nil {
		g.forbiddenHandler(c, c.Request.URL.Path)
		return
	}
	if g.forbiddenTmpl != nil {
		c.Status(http.StatusForbidden)
		c.Header("Content-Type", "text/html; charset=utf-8")
		if err := g.forbiddenTmpl.Execute(c.Writer, gin.H{"Path": c.Request.URL.Path}); err != nil {
			log.Errorf("failed to render forbidden template: %v", err)
		}
		return
	}
	message, ok := denialMessages[reason]
	if !ok {
		message = "Access denied"
	}
	c.String(http.StatusForbidden, message)
}

// setCookie persists the validated token in a cookie scoped to the static
// prefix of the protected pattern, so every concrete URL matching the
// pattern shares one cookie.
func (g *Guard) setCookie(c *gin.Context, key, value, protectedPath string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     key,
		Value:    value,
		Path:     cookiePath(protectedPath),
		MaxAge:   g.cfg.Auth.CookieMaxAge,
		HttpOnly: g.cfg.CookieHTTPOnly(),
		Secure:   g.cfg.CookieSecure(),
		SameSite: g.cfg.CookieSameSite(),
	})
}

// cookiePath returns the cookie scope for a canonical protected path: its
// static prefix up to the first dynamic segment, rooted at "/".
func cookiePath(protectedPath string) string {
	if i := strings.IndexByte(protectedPath, '<'); i != -1 {
		return "/" + protectedPath[:i]
	}
	return "/" + protectedPath
}

// stripTokenParam rebuilds the request URL without the token parameter,
// preserving every other query parameter.
func stripTokenParam(u *url.URL, param string) string {
	query := u.Query()
	query.Del(param)
	redirect := u.Path
	if encoded := query.Encode(); encoded != "" {
		redirect += "?" + encoded
	}
	return redirect
}
