package featureflags

import (
	"context"
	"errors"
)

var (
	ErrFlagNotFound     = errors.New("feature flag not found")
	ErrUnknownFlag      = errors.New("unknown feature flag")
	ErrInvalidFlagValue = errors.New("invalid feature flag value")
)

// Repository stores flag overrides. Keys absent from the repository take
// their default value.
type Repository interface {
	// List returns every stored flag ordered by key.
	List(ctx context.Context) ([]Flag, error)

	// Upsert stores all flags or none.
	Upsert(ctx context.Context, flags ...Flag) error

	// Delete removes a stored flag, reverting it to its default.
	Delete(ctx context.Context, key string) error
}
