package story

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitScenes(t *testing.T) {
	t.Run("splits on blank lines", func(t *testing.T) {
		text := "First scene.\n\nSecond scene.\n\nThird scene."
		scenes := SplitScenes(text)
		assert.Equal(t, []string{"First scene.", "Second scene.", "Third scene."}, scenes)
	})

	t.Run("normalizes windows line endings", func(t *testing.T) {
		text := "First scene.\r\n\r\nSecond scene."
		scenes := SplitScenes(text)
		assert.Equal(t, []string{"First scene.", "Second scene."}, scenes)
	})

	t.Run("drops empty segments and trims whitespace", func(t *testing.T) {
		text := "  First scene.  \n\n\n\n   \n\nSecond scene.\n\n"
		scenes := SplitScenes(text)
		assert.Equal(t, []string{"First scene.", "Second scene."}, scenes)
	})

	t.Run("empty input yields no scenes", func(t *testing.T) {
		assert.Empty(t, SplitScenes(""))
		assert.Empty(t, SplitScenes("   \n\n  \n "))
	})

	t.Run("single paragraph is one scene", func(t *testing.T) {
		scenes := SplitScenes("Just one scene here.\nStill the same scene.")
		assert.Equal(t, []string{"Just one scene here.\nStill the same scene."}, scenes)
	})
}

func TestJoinScenesRoundTrip(t *testing.T) {
	scenes := []string{"First scene.", "Second scene.", "Third scene."}
	assert.Equal(t, scenes, SplitScenes(JoinScenes(scenes)))
}
