package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/chatflow/chatflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(role, content string) models.Message {
	return models.Message{Role: role, Content: content}
}

func TestBuildContext(t *testing.T) {
	t.Parallel()

	t.Run("keeps everything under both budgets", func(t *testing.T) {
		t.Parallel()

		history := []models.Message{
			msg(models.RoleUser, "hi"),
			msg(models.RoleAssistant, "hello"),
			msg(models.RoleUser, "how are you"),
		}

		out := BuildContext(history, 10, 1000)

		require.Len(t, out, 3)
		assert.Equal(t, "hi", out[0].Content)
		assert.Equal(t, "how are you", out[2].Content)
	})

	t.Run("drops oldest beyond message cap", func(t *testing.T) {
		t.Parallel()

		var history []models.Message
		for i := 0; i < 15; i++ {
			history = append(history, msg(models.RoleUser, fmt.Sprintf("message %d", i)))
		}

		out := BuildContext(history, 10, 100000)

		require.Len(t, out, 10)
		assert.Equal(t, "message 5", out[0].Content)
		assert.Equal(t, "message 14", out[9].Content)
	})

	t.Run("drops oldest beyond char budget without splitting", func(t *testing.T) {
		t.Parallel()

		history := []models.Message{
			msg(models.RoleUser, strings.Repeat("a", 60)),
			msg(models.RoleAssistant, strings.Repeat("b", 60)),
			msg(models.RoleUser, strings.Repeat("c", 60)),
		}

		out := BuildContext(history, 10, 130)

		// 60+60 fits, adding the oldest would exceed 130.
		require.Len(t, out, 2)
		assert.Equal(t, strings.Repeat("b", 60), out[0].Content)
		assert.Equal(t, strings.Repeat("c", 60), out[1].Content)
	})

	t.Run("system messages always retained", func(t *testing.T) {
		t.Parallel()

		history := []models.Message{
			msg(models.RoleSystem, "persona"),
			msg(models.RoleUser, "one"),
			msg(models.RoleAssistant, "two"),
			msg(models.RoleUser, "three"),
		}

		out := BuildContext(history, 2, 100000)

		require.Len(t, out, 3)
		assert.Equal(t, models.RoleSystem, out[0].Role)
		assert.Equal(t, "two", out[1].Content)
		assert.Equal(t, "three", out[2].Content)
	})

	t.Run("newest message kept even when over budget alone", func(t *testing.T) {
		t.Parallel()

		history := []models.Message{
			msg(models.RoleUser, "old"),
			msg(models.RoleUser, strings.Repeat("z", 500)),
		}

		out := BuildContext(history, 10, 100)

		require.Len(t, out, 1)
		assert.Equal(t, strings.Repeat("z", 500), out[0].Content)
	})

	t.Run("empty history yields empty context", func(t *testing.T) {
		t.Parallel()

		assert.Empty(t, BuildContext(nil, 10, 1000))
	})
}
