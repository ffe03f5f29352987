// Package transportfactory builds the right protocol/transport
// implementation for a repository URI, the way cli/internal/client.New
// picks a nanogit client constructor from the URL the CLI was given.
package transportfactory

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/arvidsson/gitsync/protocol/transport"
)

// Config carries the CLI's auth flags through to whichever transport gets
// built.
type Config struct {
	Token    string
	Username string
	Password string
}

// FromEnvironment reads GITSYNC_TOKEN/GITSYNC_USERNAME/GITSYNC_PASSWORD,
// following nanogit's CLI convention of an env-var fallback for every auth
// flag.
func FromEnvironment() Config {
	return Config{
		Token:    os.Getenv("GITSYNC_TOKEN"),
		Username: os.Getenv("GITSYNC_USERNAME"),
		Password: os.Getenv("GITSYNC_PASSWORD"),
	}
}

// Merge overlays any non-empty flag values from the command line onto the
// environment-derived config, flags taking precedence.
func (c *Config) Merge(token, username, password string) {
	if token != "" {
		c.Token = token
	}
	if username != "" {
		c.Username = username
	}
	if password != "" {
		c.Password = password
	}
}

// New builds a Transport for uri: the persistent git:// transport for a
// "git://" scheme, HTTPTransport for everything else (http/https smart
// HTTP, matching the dominant real-world deployment nanogit itself
// targets).
func New(uri string, cfg Config) (transport.Transport, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("gitsync: parsing repository uri %q: %w", uri, err)
	}

	if strings.EqualFold(u.Scheme, "git") {
		return transport.NewPersistentTransport(uri)
	}

	var opts []transport.Option
	switch {
	case cfg.Token != "":
		opts = append(opts, transport.WithTokenAuth(cfg.Token))
	case cfg.Username != "":
		opts = append(opts, transport.WithBasicAuth(cfg.Username, cfg.Password))
	}

	return transport.NewHTTPTransport(uri, opts...)
}
