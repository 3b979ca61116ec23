package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	t.Run("keeps first occurrence order", func(t *testing.T) {
		got := DedupeAndTrim([]string{"http://b", " http://a ", "http://b", ""})
		assert.Equal(t, []string{"http://b", "http://a"}, got)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, DedupeAndTrim(nil))
	})
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList("   "))
	assert.Equal(t, []string{"x", "y"}, SplitList("x, y,,x"))
}
