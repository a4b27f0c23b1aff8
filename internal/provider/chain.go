package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/anti-todo/internal/prompt"
)

// Result is the outcome of running a chain.
type Result struct {
	Reply
	// Provider names the provider that produced the reply. Empty when Failed.
	Provider string
	// Failed is set when every provider failed and Reply holds the chain default.
	Failed bool
	Errs   []error
}

// Chain tries its providers in order until one returns a valid reply.
// There are no retries: each provider gets exactly one attempt.
type Chain struct {
	kind      prompt.Kind
	providers []Provider
	fallback  Reply
	timeout   time.Duration
	logger    *slog.Logger
}

// NewChain creates a chain for kind. fallback is returned when all providers fail.
func NewChain(kind prompt.Kind, fallback Reply, timeout time.Duration, logger *slog.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		kind:      kind,
		providers: providers,
		fallback:  fallback,
		timeout:   timeout,
		logger:    logger,
	}
}

// Kind returns the instruction kind this chain serves.
func (c *Chain) Kind() prompt.Kind {
	return c.kind
}

// Providers returns the names of the providers in order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Run executes the chain. It never returns an error; failures are logged and
// folded into the result.
func (c *Chain) Run(ctx context.Context, task string, steps []string) Result {
	req := Request{Kind: c.kind, Task: task, Steps: steps}

	var errs []error
	for _, p := range c.providers {
		start := time.Now()
		reply, err := c.call(ctx, p, req)
		if err == nil {
			reply, err = Validate(c.kind, reply)
		}
		if err != nil {
			c.logger.Warn("Provider failed",
				"kind", c.kind,
				"provider", p.Name(),
				"duration", time.Since(start),
				"error", err,
			)
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		c.logger.Debug("Provider succeeded", "kind", c.kind, "provider", p.Name(), "duration", time.Since(start))
		return Result{Reply: reply, Provider: p.Name(), Errs: errs}
	}

	c.logger.Error("All providers failed, using default", "kind", c.kind, "attempts", len(errs))
	return Result{Reply: c.defaultReply(), Failed: true, Errs: errs}
}

func (c *Chain) call(ctx context.Context, p Provider, req Request) (Reply, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return p.Generate(ctx, req)
}

func (c *Chain) defaultReply() Reply {
	return Reply{
		Text:  c.fallback.Text,
		Items: append([]string(nil), c.fallback.Items...),
	}
}

// DefaultReply is the reply a chain of kind falls back to when every provider fails.
func DefaultReply(kind prompt.Kind) Reply {
	switch kind {
	case prompt.KindConvert:
		return Reply{Text: "Failed to generate anti-task. Please try again later."}
	case prompt.KindSteps:
		return Reply{Items: []string{"Step 1", "Step 2", "Step 3"}}
	case prompt.KindStory:
		return Reply{Text: "An epic tale of procrastination and triumph! 🎉"}
	}
	return Reply{}
}
