package validator_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/crewplane/pkg/validator"
)

func TestApply(t *testing.T) {
	t.Parallel()

	t.Run("all rules pass", func(t *testing.T) {
		t.Parallel()

		err := validator.Apply(
			validator.Required("name", "acme"),
			validator.Email("email", "a@acme.test"),
		)
		assert.NoError(t, err)
	})

	t.Run("aggregates failures", func(t *testing.T) {
		t.Parallel()

		err := validator.Apply(
			validator.Required("name", "  "),
			validator.Email("email", "not-an-email"),
		)
		require.Error(t, err)

		verrs := validator.Extract(err)
		require.Len(t, verrs, 2)
		assert.True(t, verrs.Has("name"))
		assert.True(t, verrs.Has("email"))
		assert.Contains(t, err.Error(), "name: is required")
	})

	t.Run("extract from unrelated error", func(t *testing.T) {
		t.Parallel()

		assert.Nil(t, validator.Extract(assert.AnError))
		assert.Nil(t, validator.Extract(nil))
	})
}

func TestRules(t *testing.T) {
	t.Parallel()

	t.Run("min and max length", func(t *testing.T) {
		t.Parallel()

		assert.NoError(t, validator.Apply(validator.MinLen("name", "abc", 3)))
		assert.Error(t, validator.Apply(validator.MinLen("name", "ab", 3)))
		assert.NoError(t, validator.Apply(validator.MaxLen("name", "abc", 3)))
		assert.Error(t, validator.Apply(validator.MaxLen("name", "abcd", 3)))
	})

	t.Run("matches skips empty values", func(t *testing.T) {
		t.Parallel()

		re := regexp.MustCompile(`^[a-z0-9-]+$`)
		assert.NoError(t, validator.Apply(validator.Matches("subdomain", "", re, "invalid")))
		assert.NoError(t, validator.Apply(validator.Matches("subdomain", "acme-hr", re, "invalid")))
		assert.Error(t, validator.Apply(validator.Matches("subdomain", "Acme!", re, "invalid")))
	})

	t.Run("in list", func(t *testing.T) {
		t.Parallel()

		assert.NoError(t, validator.Apply(validator.InList("interval", "monthly", []string{"monthly", "yearly"})))
		assert.Error(t, validator.Apply(validator.InList("interval", "weekly", []string{"monthly", "yearly"})))
	})

	t.Run("numeric", func(t *testing.T) {
		t.Parallel()

		assert.NoError(t, validator.Apply(validator.Positive("count", 1)))
		assert.Error(t, validator.Apply(validator.Positive("count", 0)))
		assert.NoError(t, validator.Apply(validator.Min("count", 5, 5)))
		assert.Error(t, validator.Apply(validator.Min("count", 4, 5)))
	})
}
