// Package config provides configuration management for the magicgate
// server. It handles loading and parsing YAML configuration files, and
// provides structured access to application settings including server port,
// token database location, cookie attributes, and the declarative protected
// route tree.
package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCookiePrefix namespaces access cookies set by the middleware.
const DefaultCookiePrefix = "magicgate_"

// DefaultTokenParam is the query parameter checked for a candidate token.
const DefaultTokenParam = "token"

// DefaultCookieMaxAge is one year, in seconds.
const DefaultCookieMaxAge = 60 * 60 * 24 * 365

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Port is the network port on which the server will listen.
	Port int `yaml:"port"`

	// Debug enables debug-level logging and relaxes the cookie-secure
	// default.
	Debug bool `yaml:"debug"`

	// LoggingToFile routes application logs to rotating files instead of
	// stdout.
	LoggingToFile bool `yaml:"logging-to-file"`

	// DB is the path of the bbolt token database.
	DB string `yaml:"db"`

	// Upstream is the origin the gate forwards allowed requests to.
	Upstream string `yaml:"upstream"`

	// Auth groups the token and cookie settings used by the access
	// middleware.
	Auth Auth `yaml:"auth"`

	// RemoteManagement guards the management API.
	RemoteManagement RemoteManagement `yaml:"remote-management"`

	// Routes is the declarative route tree walked at startup to discover
	// protected paths.
	Routes []Route `yaml:"routes"`
}

// Auth holds the token transport and cookie attribute settings.
type Auth struct {
	// CookieSecure sets the Secure attribute on access cookies. When
	// omitted it defaults to true unless debug mode is on.
	CookieSecure *bool `yaml:"cookie-secure"`

	// CookieMaxAge is the cookie lifetime in seconds.
	CookieMaxAge int `yaml:"cookie-max-age"`

	// CookieSameSite is one of "lax", "strict" or "none".
	CookieSameSite string `yaml:"cookie-samesite"`

	// CookieHTTPOnly sets the HttpOnly attribute. Defaults to true when
	// omitted.
	CookieHTTPOnly *bool `yaml:"cookie-httponly"`

	// CookiePrefix is prepended to the escaped protected path to form the
	// cookie name.
	CookiePrefix string `yaml:"cookie-prefix"`

	// TokenParam is the query parameter checked for a candidate token.
	TokenParam string `yaml:"token-param"`

	// ForbiddenTemplate is an optional path to an HTML template rendered
	// on denial instead of the plain-text default.
	ForbiddenTemplate string `yaml:"forbidden-template"`
}

// RemoteManagement configures access to the management API.
type RemoteManagement struct {
	// AllowRemote permits management requests from non-loopback addresses.
	AllowRemote bool `yaml:"allow-remote"`

	// SecretKey is the bcrypt hash of the management key.
	SecretKey string `yaml:"secret-key"`
}

// Route is one node of the declarative route tree. A node with nested
// Routes is a group; a node without is a leaf.
type Route struct {
	// Path is the route template segment, e.g. "blog/" or
	// "<int:year>/<str:slug>/".
	Path string `yaml:"path"`

	// Protected marks this node (and, for groups, everything under it) as
	// requiring a token.
	Protected bool `yaml:"protected"`

	// Routes are the children of a group node.
	Routes []Route `yaml:"routes"`
}

// LoadConfig reads a YAML configuration file from the given path,
// unmarshals it into a Config struct, applies defaults, and returns it.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills in unset fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8317
	}
	if c.Auth.CookieMaxAge == 0 {
		c.Auth.CookieMaxAge = DefaultCookieMaxAge
	}
	if c.Auth.CookieSameSite == "" {
		c.Auth.CookieSameSite = "lax"
	}
	if c.Auth.CookiePrefix == "" {
		c.Auth.CookiePrefix = DefaultCookiePrefix
	}
	if c.Auth.TokenParam == "" {
		c.Auth.TokenParam = DefaultTokenParam
	}
	if c.DB == "" {
		c.DB = "magicgate.db"
	}
}

// CookieSecure resolves the Secure attribute: explicit setting wins,
// otherwise secure unless debug mode is on.
func (c *Config) CookieSecure() bool {
	if c.Auth.CookieSecure != nil {
		return *c.Auth.CookieSecure
	}
	return !c.Debug
}

// CookieHTTPOnly resolves the HttpOnly attribute, defaulting to true.
func (c *Config) CookieHTTPOnly() bool {
	if c.Auth.CookieHTTPOnly != nil {
		return *c.Auth.CookieHTTPOnly
	}
	return true
}

// CookieSameSite maps the configured mode onto http.SameSite, falling back
// to lax for unrecognized values.
func (c *Config) CookieSameSite() http.SameSite {
	switch strings.ToLower(c.Auth.CookieSameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
