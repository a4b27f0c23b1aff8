// Package provider implements the hosted text-generation backends and the
// ordered chain that tries them until one produces a usable reply.
package provider

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ashureev/anti-todo/internal/domain"
	"github.com/ashureev/anti-todo/internal/prompt"
)

var (
	// ErrMalformedReply means the provider answered but not in the required shape.
	ErrMalformedReply = errors.New("malformed provider reply")
	// ErrUnsupported means the provider cannot serve the requested kind.
	ErrUnsupported = errors.New("kind not supported by provider")
)

// Request asks a provider for one kind of generation.
type Request struct {
	Kind  prompt.Kind
	Task  string
	Steps []string
}

func (r Request) data() prompt.Data {
	return prompt.Data{Task: r.Task, Steps: r.Steps}
}

// Reply carries a single string (convert, story) or a list of strings (steps).
type Reply struct {
	Text  string
	Items []string
}

// Provider is a hosted model that can turn a Request into a Reply.
type Provider interface {
	// Name identifies the provider in logs and results.
	Name() string

	// Generate sends the request and returns the parsed reply.
	Generate(ctx context.Context, req Request) (Reply, error)
}

// Validate checks that reply has the shape kind requires and returns it normalized.
func Validate(kind prompt.Kind, reply Reply) (Reply, error) {
	switch kind {
	case prompt.KindSteps:
		items := make([]string, 0, domain.StepCount)
		for _, item := range reply.Items {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			items = append(items, item)
			if len(items) == domain.StepCount {
				break
			}
		}
		if len(items) < domain.StepCount {
			return Reply{}, fmt.Errorf("%w: got %d steps, want %d", ErrMalformedReply, len(items), domain.StepCount)
		}
		return Reply{Items: items}, nil
	case prompt.KindConvert, prompt.KindStory:
		text := strings.Trim(strings.TrimSpace(reply.Text), `"`)
		if text == "" {
			return Reply{}, fmt.Errorf("%w: empty text", ErrMalformedReply)
		}
		return Reply{Text: text}, nil
	default:
		return Reply{}, fmt.Errorf("%w: %q", ErrUnsupported, kind)
	}
}

var listMarker = regexp.MustCompile(`^\s*(?:\d+[.):]|[-*•])\s*`)

// ParseSteps splits free text into list entries: one per line, list markers
// stripped, blank lines dropped, at most three kept.
func ParseSteps(text string) []string {
	var steps []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		steps = append(steps, line)
		if len(steps) == domain.StepCount {
			break
		}
	}
	return steps
}

func snippet(b []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
