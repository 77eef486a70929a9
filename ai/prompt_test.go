package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerMessages(t *testing.T) {
	t.Run("with reference", func(t *testing.T) {
		msgs := AnswerMessages("  What torque?  ", "M8 bolts take 25 Nm.")

		require.Len(t, msgs, 2)
		assert.Equal(t, RoleSystem, msgs[0].Role)
		assert.Equal(t, RoleUser, msgs[1].Role)
		assert.Equal(t, "Reference material:\nM8 bolts take 25 Nm.\n\nQuestion: What torque?", msgs[1].Content)
	})

	t.Run("without reference", func(t *testing.T) {
		msgs := AnswerMessages("What torque?", " ")

		require.Len(t, msgs, 2)
		assert.Equal(t, "Question: What torque?", msgs[1].Content)
	})
}
