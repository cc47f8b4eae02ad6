package visitors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hayzedd/internal/visitors"
)

func TestNewIDs(t *testing.T) {
	t.Run("visitor ids are 32 hex chars", func(t *testing.T) {
		id := visitors.NewVisitorID()
		assert.Regexp(t, `^[0-9a-f]{32}$`, id)
		assert.NotEqual(t, id, visitors.NewVisitorID())
	})

	t.Run("session ids are 40 hex chars", func(t *testing.T) {
		id := visitors.NewSessionID()
		assert.Regexp(t, `^[0-9a-f]{40}$`, id)
		assert.NotEqual(t, id, visitors.NewSessionID())
	})
}
