package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetInsertContainsDelete(t *testing.T) {
	s := New[int]()
	assert.Equal(t, 0, s.Len())

	s.Insert(1)
	s.Insert(2)
	assert.True(t, s.Contains(1))
	assert.True(t, s.Contains(2))
	assert.False(t, s.Contains(3))
	assert.Equal(t, 2, s.Len())

	s.Delete(1)
	assert.False(t, s.Contains(1))
	assert.Equal(t, 1, s.Len())
}

func TestSetKeys(t *testing.T) {
	s := New[string]()
	s.Insert("a")
	s.Insert("b")
	assert.ElementsMatch(t, []string{"a", "b"}, s.Keys())
}

func TestZeroValueSetIsUsable(t *testing.T) {
	var s Set[int]
	s.Insert(7)
	assert.True(t, s.Contains(7))
}
