package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prepwise/interview-engine/internal/domain"
)

// Router tries a fixed, ordered list of provider clients until one returns a
// usable completion. Order is configuration, decided at wiring time; the
// router never reorders or skips based on past outcomes.
type Router struct {
	clients []domain.ProviderClient
}

// NewRouter builds a router over clients in the given priority order.
func NewRouter(clients ...domain.ProviderClient) *Router {
	return &Router{clients: clients}
}

// Providers returns the configured provider names in priority order.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.clients))
	for _, c := range r.clients {
		names = append(names, c.Name())
	}
	return names
}

// Generate walks the provider list sequentially. A provider failure or an
// empty completion moves on to the next provider; the shared ctx deadline is
// checked between attempts so one slow provider cannot eat the time left for
// the rest of the pipeline.
func (r *Router) Generate(ctx context.Context, prompt string) (string, error) {
	if len(r.clients) == 0 {
		return "", fmt.Errorf("op=router.generate: no providers configured: %w", domain.ErrInvalidArgument)
	}
	lastErrs := make(map[string]error, len(r.clients))
	for _, c := range r.clients {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("op=router.generate: %w", domain.ErrDeadlineExceeded)
		}
		out, err := c.Generate(ctx, prompt)
		if err == nil {
			if strings.TrimSpace(out) == "" {
				err = fmt.Errorf("empty completion: %w", domain.ErrProvider)
			} else {
				return out, nil
			}
		}
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", fmt.Errorf("op=router.generate: provider=%s: %w", c.Name(), domain.ErrDeadlineExceeded)
		}
		slog.Warn("provider failed, falling back",
			slog.String("provider", c.Name()),
			slog.Any("error", err))
		lastErrs[c.Name()] = err
	}
	return "", &domain.AllProvidersError{LastErrors: lastErrs}
}
