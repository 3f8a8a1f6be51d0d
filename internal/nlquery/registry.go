package nlquery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Registry maps lowercase data-source type strings to strategies. It is
// populated during startup and read-only afterwards, so concurrent
// dispatches need no locking.
type Registry struct {
	strategies map[string]Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register binds a strategy to a type key. Duplicate registration is a
// wiring bug and fails loudly at startup rather than silently replacing.
func (r *Registry) Register(typeKey string, s Strategy) error {
	key := strings.ToLower(strings.TrimSpace(typeKey))
	if key == "" {
		return fmt.Errorf("empty strategy type key")
	}
	if _, exists := r.strategies[key]; exists {
		return fmt.Errorf("strategy already registered for type %q", key)
	}
	r.strategies[key] = s
	return nil
}

// Types lists the registered type keys.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.strategies))
	for k := range r.strategies {
		types = append(types, k)
	}
	return types
}

// Dispatch routes a query to the strategy for dataSourceType. A missing
// strategy returns ErrStrategyNotFound; any failure inside a strategy —
// including a panic — is converted into a Result with Error populated and
// never propagates.
func (r *Registry) Dispatch(ctx context.Context, dataSourceType, query string, opts Options) (result *Result, err error) {
	key := strings.ToLower(strings.TrimSpace(dataSourceType))
	strategy, ok := r.strategies[key]
	if !ok {
		return nil, fmt.Errorf("data source type %q: %w", dataSourceType, ErrStrategyNotFound)
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("query strategy panicked",
				"type", key,
				"panic", rec,
			)
			result = failedResult(fmt.Sprintf("strategy %s panicked: %v", key, rec))
			err = nil
		}
	}()

	res, execErr := strategy.Execute(ctx, query, opts)
	if execErr != nil {
		slog.Error("query strategy failed", "type", key, "error", execErr)
		return failedResult(execErr.Error()), nil
	}
	if res == nil {
		return failedResult(fmt.Sprintf("strategy %s returned no result", key)), nil
	}
	return res, nil
}

func failedResult(msg string) *Result {
	return &Result{
		Rows:      nil,
		Reasoning: "query execution failed before a result could be produced",
		Timing:    Timing{},
		Error:     msg,
	}
}
