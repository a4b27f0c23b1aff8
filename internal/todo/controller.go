// Package todo implements the task pipeline: submitting tasks, generating
// steps, toggling them, and attaching the completion story.
//
// Each device owns one board. All mutations of a board happen under that
// board's mutex, which is never held while a provider is being called. A
// provider result is applied only after re-checking that its target task
// still exists and is still in the state the request was started from.
// Provider calls are detached from the request: a client that hangs up does
// not cut a chain short, only the per-provider timeout does.
package todo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ashureev/anti-todo/internal/domain"
	"github.com/ashureev/anti-todo/internal/provider"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when the addressed task does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrBusy is returned when the same action is already in flight.
	ErrBusy = errors.New("request already in flight")
	// ErrInvalidInput is returned for rejected task text or step indexes.
	ErrInvalidInput = errors.New("invalid input")
)

// Generator produces a reply for one instruction kind. *provider.Chain implements it.
type Generator interface {
	Run(ctx context.Context, task string, steps []string) provider.Result
}

// BoardStore persists boards.
type BoardStore interface {
	LoadBoard(ctx context.Context, key string) (*domain.Board, error)
	SaveBoard(ctx context.Context, key string, board *domain.Board) error
}

// Notifier receives a snapshot of a board after every change.
type Notifier interface {
	Publish(userID string, board domain.Board)
}

// Chains groups the generators used by the pipeline.
type Chains struct {
	Convert Generator
	Steps   Generator
	Story   Generator
}

// Options configures a Controller.
type Options struct {
	MinTaskLength int
	StepsCooldown time.Duration
	Notifier      Notifier
	Logger        *slog.Logger
	Now           func() time.Time
	NewID         func() string
}

// Controller owns the in-memory boards and applies every state transition.
type Controller struct {
	repo     BoardStore
	chains   Chains
	minLen   int
	cooldown time.Duration
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	mu      sync.Mutex
	devices map[string]*device
}

type device struct {
	mu            sync.Mutex
	loaded        bool
	forgotten     bool
	board         domain.Board
	submitting    bool
	stepsInFlight map[string]bool
	stepsReadyAt  map[string]time.Time
}

// NewController creates a Controller.
func NewController(repo BoardStore, chains Chains, opts Options) *Controller {
	if opts.MinTaskLength < 1 {
		opts.MinTaskLength = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Controller{
		repo:     repo,
		chains:   chains,
		minLen:   opts.MinTaskLength,
		cooldown: opts.StepsCooldown,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		now:      opts.Now,
		newID:    opts.NewID,
		devices:  make(map[string]*device),
	}
}

// MinTaskLength returns the minimum accepted task length in runes.
func (c *Controller) MinTaskLength() int {
	return c.minLen
}

// lockDevice returns the device for userID with its mutex held, loading the
// stored board on first access.
func (c *Controller) lockDevice(ctx context.Context, userID string) (*device, error) {
	var d *device
	for {
		c.mu.Lock()
		var ok bool
		d, ok = c.devices[userID]
		if !ok {
			d = &device{
				stepsInFlight: make(map[string]bool),
				stepsReadyAt:  make(map[string]time.Time),
			}
			c.devices[userID] = d
		}
		c.mu.Unlock()

		d.mu.Lock()
		if !d.forgotten {
			break
		}
		// Forgotten between the map lookup and the lock; take the fresh entry.
		d.mu.Unlock()
	}
	if d.loaded {
		return d, nil
	}

	board, err := c.repo.LoadBoard(ctx, domain.BoardKey(userID))
	if err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("load board: %w", err)
	}
	if board == nil {
		board = &domain.Board{Todos: []domain.Todo{}}
	}
	d.board = *board
	d.loaded = true
	return d, nil
}

// Forget drops the cached board for userID. The next access reloads it from
// the store. Requests still holding the old device can no longer save it.
func (c *Controller) Forget(userID string) {
	c.mu.Lock()
	d, ok := c.devices[userID]
	delete(c.devices, userID)
	c.mu.Unlock()
	if !ok {
		return
	}

	d.mu.Lock()
	d.forgotten = true
	d.mu.Unlock()
}

// apply runs fn against the board and persists the result, restoring the
// previous board if fn or the save fails. d.mu must be held.
func (c *Controller) apply(ctx context.Context, userID string, d *device, fn func(b *domain.Board) error) error {
	if d.forgotten {
		c.logger.Info("Discarding change for forgotten device", "user_id", userID)
		return ErrNotFound
	}
	prev := d.board.Snapshot()
	if err := fn(&d.board); err != nil {
		d.board = prev
		return err
	}
	if err := c.repo.SaveBoard(ctx, domain.BoardKey(userID), &d.board); err != nil {
		d.board = prev
		return fmt.Errorf("save board: %w", err)
	}
	if c.notifier != nil {
		c.notifier.Publish(userID, d.board.Snapshot())
	}
	return nil
}

// List returns a snapshot of the user's board.
func (c *Controller) List(ctx context.Context, userID string) (domain.Board, error) {
	d, err := c.lockDevice(ctx, userID)
	if err != nil {
		return domain.Board{}, err
	}
	defer d.mu.Unlock()
	return d.board.Snapshot(), nil
}

// Submit converts text into its unproductive version and appends it as a new task.
// Only one submission per device may be in flight.
func (c *Controller) Submit(ctx context.Context, userID, text string) (domain.Todo, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < c.minLen {
		return domain.Todo{}, fmt.Errorf("%w: task must be at least %d characters", ErrInvalidInput, c.minLen)
	}

	d, err := c.lockDevice(ctx, userID)
	if err != nil {
		return domain.Todo{}, err
	}
	if d.submitting {
		d.mu.Unlock()
		return domain.Todo{}, fmt.Errorf("%w: submission", ErrBusy)
	}
	d.submitting = true
	d.mu.Unlock()

	res := c.chains.Convert.Run(context.WithoutCancel(ctx), text, nil)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitting = false

	todo := domain.Todo{
		ID:        c.newID(),
		Task:      res.Text,
		Steps:     []domain.Step{},
		CreatedAt: c.now(),
	}
	err = c.apply(context.WithoutCancel(ctx), userID, d, func(b *domain.Board) error {
		b.Todos = append(b.Todos, todo)
		return nil
	})
	if err != nil {
		return domain.Todo{}, err
	}

	c.logger.Info("Task submitted", "user_id", userID, "task_id", todo.ID, "provider", res.Provider, "failed", res.Failed)
	return todo.Clone(), nil
}

// GenerateSteps attaches exactly three steps to the task. It is a no-op for a
// task that already has steps.
func (c *Controller) GenerateSteps(ctx context.Context, userID, id string) (domain.Todo, error) {
	d, err := c.lockDevice(ctx, userID)
	if err != nil {
		return domain.Todo{}, err
	}

	t, ok := d.board.Find(id)
	if !ok {
		d.mu.Unlock()
		return domain.Todo{}, ErrNotFound
	}
	if t.HasSteps {
		out := t.Clone()
		d.mu.Unlock()
		return out, nil
	}
	if d.stepsInFlight[id] {
		d.mu.Unlock()
		return domain.Todo{}, fmt.Errorf("%w: steps for %s", ErrBusy, id)
	}
	if readyAt, ok := d.stepsReadyAt[id]; ok && c.now().Before(readyAt) {
		d.mu.Unlock()
		return domain.Todo{}, fmt.Errorf("%w: steps for %s cooling down", ErrBusy, id)
	}
	d.stepsInFlight[id] = true
	task := t.Task
	d.mu.Unlock()

	res := c.chains.Steps.Run(context.WithoutCancel(ctx), task, nil)

	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.stepsInFlight, id)
	if c.cooldown > 0 {
		d.stepsReadyAt[id] = c.now().Add(c.cooldown)
	}

	var out domain.Todo
	err = c.apply(context.WithoutCancel(ctx), userID, d, func(b *domain.Board) error {
		t, ok := b.Find(id)
		if !ok {
			c.logger.Info("Discarding steps for deleted task", "user_id", userID, "task_id", id)
			return ErrNotFound
		}
		if !t.HasSteps {
			t.Steps = make([]domain.Step, len(res.Items))
			for i, text := range res.Items {
				t.Steps[i] = domain.Step{Text: text}
			}
			t.HasSteps = true
		}
		out = t.Clone()
		return nil
	})
	if err != nil {
		return domain.Todo{}, err
	}

	c.logger.Info("Steps generated", "user_id", userID, "task_id", id, "provider", res.Provider, "failed", res.Failed)
	return out, nil
}

// ToggleStep flips one step. Completing the last open step generates the
// completion story; reopening any step clears it.
func (c *Controller) ToggleStep(ctx context.Context, userID, id string, stepIndex int) (domain.Todo, error) {
	d, err := c.lockDevice(ctx, userID)
	if err != nil {
		return domain.Todo{}, err
	}

	var (
		out       domain.Todo
		needStory bool
		epoch     int
	)
	err = c.apply(ctx, userID, d, func(b *domain.Board) error {
		t, ok := b.Find(id)
		if !ok {
			return ErrNotFound
		}
		if !t.HasSteps || stepIndex < 0 || stepIndex >= len(t.Steps) {
			return fmt.Errorf("%w: step %d", ErrInvalidInput, stepIndex)
		}

		wasComplete := t.AllCompleted()
		t.Steps[stepIndex].Completed = !t.Steps[stepIndex].Completed

		if t.AllCompleted() {
			needStory = t.CompletionStory == ""
		} else {
			if wasComplete {
				t.Epoch++
			}
			t.CompletionStory = ""
		}
		epoch = t.Epoch
		out = t.Clone()
		return nil
	})
	if err != nil || !needStory {
		d.mu.Unlock()
		return out, err
	}
	d.mu.Unlock()

	res := c.chains.Story.Run(context.WithoutCancel(ctx), out.Task, out.StepTexts())

	d.mu.Lock()
	defer d.mu.Unlock()

	err = c.apply(context.WithoutCancel(ctx), userID, d, func(b *domain.Board) error {
		t, ok := b.Find(id)
		if !ok {
			c.logger.Info("Discarding story for deleted task", "user_id", userID, "task_id", id)
			return ErrNotFound
		}
		if t.Epoch == epoch && t.AllCompleted() && t.CompletionStory == "" {
			t.CompletionStory = res.Text
		} else {
			c.logger.Info("Discarding stale story", "user_id", userID, "task_id", id, "epoch", epoch, "current_epoch", t.Epoch)
		}
		out = t.Clone()
		return nil
	})
	if err != nil {
		return domain.Todo{}, err
	}

	c.logger.Info("Story generated", "user_id", userID, "task_id", id, "provider", res.Provider, "failed", res.Failed)
	return out, nil
}

// Delete removes the task. Requests still in flight for it will find it gone.
func (c *Controller) Delete(ctx context.Context, userID, id string) error {
	d, err := c.lockDevice(ctx, userID)
	if err != nil {
		return err
	}
	defer d.mu.Unlock()

	err = c.apply(ctx, userID, d, func(b *domain.Board) error {
		if !b.Remove(id) {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	delete(d.stepsReadyAt, id)

	c.logger.Info("Task deleted", "user_id", userID, "task_id", id)
	return nil
}
