package domain

import "time"

// StepCount is the number of steps generated for every task.
const StepCount = 3

// Step is one of the generated sub-actions of a task.
type Step struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Todo is one converted task on a board.
type Todo struct {
	ID              string    `json:"id"`
	Task            string    `json:"task"`
	Steps           []Step    `json:"steps"`
	HasSteps        bool      `json:"hasSteps"`
	CompletionStory string    `json:"completionStory,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`

	// Epoch bumps every time the task leaves the all-complete state. A story
	// generated for an older epoch must not be attached.
	Epoch int `json:"epoch"`
}

// AllCompleted reports whether the task has steps and every one is checked.
func (t *Todo) AllCompleted() bool {
	if !t.HasSteps || len(t.Steps) == 0 {
		return false
	}
	for _, s := range t.Steps {
		if !s.Completed {
			return false
		}
	}
	return true
}

// StepTexts returns the text of each step in order.
func (t *Todo) StepTexts() []string {
	texts := make([]string, len(t.Steps))
	for i, s := range t.Steps {
		texts[i] = s.Text
	}
	return texts
}

// Clone returns a deep copy of the task.
func (t *Todo) Clone() Todo {
	c := *t
	c.Steps = append([]Step(nil), t.Steps...)
	if c.Steps == nil {
		c.Steps = []Step{}
	}
	return c
}

// Board is the ordered list of tasks owned by one user.
type Board struct {
	Todos []Todo `json:"todos"`
}

// Index returns the position of the task with the given ID, or -1.
func (b *Board) Index(id string) int {
	for i := range b.Todos {
		if b.Todos[i].ID == id {
			return i
		}
	}
	return -1
}

// Find returns the task with the given ID.
func (b *Board) Find(id string) (*Todo, bool) {
	i := b.Index(id)
	if i < 0 {
		return nil, false
	}
	return &b.Todos[i], true
}

// Remove deletes the task with the given ID, shifting later tasks down by one.
func (b *Board) Remove(id string) bool {
	i := b.Index(id)
	if i < 0 {
		return false
	}
	b.Todos = append(b.Todos[:i], b.Todos[i+1:]...)
	return true
}

// Snapshot returns a deep copy of the board safe to hand to other goroutines.
func (b *Board) Snapshot() Board {
	out := Board{Todos: make([]Todo, len(b.Todos))}
	for i := range b.Todos {
		out.Todos[i] = b.Todos[i].Clone()
	}
	return out
}
