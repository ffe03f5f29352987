package transportfactory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvidsson/gitsync/cmd/gitsync/internal/transportfactory"
	"github.com/arvidsson/gitsync/protocol/transport"
)

func TestNew_HTTPSchemeReturnsHTTPTransport(t *testing.T) {
	t.Parallel()

	tr, err := transportfactory.New("https://example.com/repo.git", transportfactory.Config{})
	require.NoError(t, err)
	assert.IsType(t, &transport.HTTPTransport{}, tr)
}

func TestNew_GitSchemeReturnsPersistentTransport(t *testing.T) {
	t.Parallel()

	tr, err := transportfactory.New("git://example.com/repo.git", transportfactory.Config{})
	require.NoError(t, err)
	assert.IsType(t, &transport.PersistentTransport{}, tr)
}

func TestNew_InvalidURIErrors(t *testing.T) {
	t.Parallel()

	_, err := transportfactory.New("://not-a-uri", transportfactory.Config{})
	assert.Error(t, err)
}

func TestConfig_MergePrefersNonEmptyOverrides(t *testing.T) {
	t.Parallel()

	cfg := transportfactory.Config{Token: "env-token"}
	cfg.Merge("", "flag-user", "flag-pass")

	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, "flag-user", cfg.Username)
	assert.Equal(t, "flag-pass", cfg.Password)
}
