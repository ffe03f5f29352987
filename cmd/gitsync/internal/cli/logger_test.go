package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arvidsson/gitsync/log"
)

func TestLogger_DefaultsToNoop(t *testing.T) {
	debug = false
	assert.Equal(t, log.Noop(), logger())
}

func TestLogger_DebugFlagSwitchesToSlog(t *testing.T) {
	debug = true
	defer func() { debug = false }()

	assert.IsType(t, slogLogger{}, logger())
}
