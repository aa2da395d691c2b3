package runner

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestQueueFIFO(t *testing.T) {
	var q Queue
	id := uuid.New()
	for i := 0; i < 100; i++ {
		q.Push(Item{RunID: id, Command: fmt.Sprint(i)})
	}
	assert.Equal(t, 100, q.Len())

	for i := 0; i < 60; i++ {
		it, ok := q.Pop()
		assert.True(t, ok)
		assert.Equal(t, fmt.Sprint(i), it.Command)
	}
	q.Push(Item{Command: "tail"})

	items := q.Items()
	assert.Len(t, items, 41)
	assert.Equal(t, "60", items[0].Command)
	assert.Equal(t, "tail", items[40].Command)

	assert.Equal(t, 41, q.Clear())
	_, ok := q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestCompose(t *testing.T) {
	id := uuid.New()
	items := compose(id, []string{"a"}, "pre", "post")
	assert.Equal(t, []Item{{RunID: id, Command: "pre"}, {RunID: id, Command: "a"}, {RunID: id, Command: "post"}}, items)
	assert.Empty(t, compose(id, nil, "", ""))
}

func TestSteps(t *testing.T) {
	assert.Equal(t, []string{"pre", "a", "b", "post"}, Steps([]string{"a", "b"}, "pre", "post"))
	assert.Equal(t, []string{"a"}, Steps([]string{"a"}, "", ""))
	assert.Empty(t, Steps(nil, "", ""))
}
