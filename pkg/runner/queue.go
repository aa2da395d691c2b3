package runner

import "github.com/google/uuid"

// Item is one queued command and the run it belongs to.
type Item struct {
	RunID   uuid.UUID `json:"runId"`
	Command string    `json:"command"`
}

// Queue is a FIFO of items. It is not safe for concurrent use; the Runner
// guards it with its own mutex.
type Queue struct {
	items []Item
	head  int
}

func (q *Queue) Len() int { return len(q.items) - q.head }

func (q *Queue) Push(items ...Item) {
	q.items = append(q.items, items...)
}

// Pop removes and returns the head item.
func (q *Queue) Pop() (Item, bool) {
	if q.Len() == 0 {
		return Item{}, false
	}
	it := q.items[q.head]
	q.items[q.head] = Item{}
	q.head++
	// reclaim the consumed prefix once it dominates the backing array
	if q.head > 32 && q.head*2 >= len(q.items) {
		q.items = append([]Item(nil), q.items[q.head:]...)
		q.head = 0
	}
	return it, true
}

// Items returns a copy of the pending items in order.
func (q *Queue) Items() []Item {
	out := make([]Item, q.Len())
	copy(out, q.items[q.head:])
	return out
}

// Clear drops every item and returns how many were dropped.
func (q *Queue) Clear() int {
	n := q.Len()
	q.items = nil
	q.head = 0
	return n
}

// Steps lists the commands of one run in execution order: prepend (if not
// empty), every command, then appendCmd (if not empty).
func Steps(commands []string, prepend, appendCmd string) []string {
	steps := make([]string, 0, len(commands)+2)
	if prepend != "" {
		steps = append(steps, prepend)
	}
	steps = append(steps, commands...)
	if appendCmd != "" {
		steps = append(steps, appendCmd)
	}
	return steps
}

// compose stamps the Steps of one run with its ID.
func compose(runID uuid.UUID, commands []string, prepend, appendCmd string) []Item {
	steps := Steps(commands, prepend, appendCmd)
	items := make([]Item, len(steps))
	for i, c := range steps {
		items[i] = Item{RunID: runID, Command: c}
	}
	return items
}
