package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTitle(t *testing.T) {
	t.Parallel()

	t.Run("short message unchanged", func(t *testing.T) {
		t.Parallel()

		msg := "How do I deploy Docker containers?"
		assert.Equal(t, msg, DeriveTitle(msg))
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, "hello", DeriveTitle("  hello \n"))
	})

	t.Run("exactly 50 characters unchanged", func(t *testing.T) {
		t.Parallel()

		msg := strings.Repeat("x", 50)
		assert.Equal(t, msg, DeriveTitle(msg))
	})

	t.Run("long message truncated to 47 plus ellipsis", func(t *testing.T) {
		t.Parallel()

		msg := strings.Repeat("A", 80)
		title := DeriveTitle(msg)

		assert.Len(t, title, 50)
		assert.Equal(t, strings.Repeat("A", 47)+"...", title)
	})

	t.Run("truncates on runes not bytes", func(t *testing.T) {
		t.Parallel()

		msg := strings.Repeat("ü", 60)
		title := DeriveTitle(msg)

		runes := []rune(title)
		assert.Len(t, runes, 50)
		assert.Equal(t, strings.Repeat("ü", 47), string(runes[:47]))
		assert.True(t, strings.HasSuffix(title, "..."))
	})

	t.Run("trim applied before length check", func(t *testing.T) {
		t.Parallel()

		msg := "   " + strings.Repeat("b", 48) + "   "
		assert.Equal(t, strings.Repeat("b", 48), DeriveTitle(msg))
	})
}
