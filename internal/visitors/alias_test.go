package visitors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"hayzedd/internal/visitors"
)

func TestAlias(t *testing.T) {
	t.Run("stable for the same visitor", func(t *testing.T) {
		id := visitors.NewVisitorID()
		assert.Equal(t, visitors.Alias(id), visitors.Alias(id))
	})

	t.Run("adjective animal format", func(t *testing.T) {
		for _, id := range []string{"", "short", "0123456789abcdef0123456789abcdef", "special!@#$%^&*()"} {
			assert.Regexp(t, `^[A-Z][a-z]+ [A-Z][a-z]+$`, visitors.Alias(id), id)
		}
	})

	t.Run("spreads across combinations", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			seen[visitors.Alias(fmt.Sprintf("visitor-%d", i))] = true
		}
		assert.Greater(t, len(seen), 100)
	})
}
