package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/wateroflife/internal/auth/oidc"
	"github.com/aussiebroadwan/wateroflife/pkg/jwtx"
)

// LoadProviderKeys fetches the provider's key set once and builds the
// registry identity tokens are verified against. Keys are not re-fetched;
// a provider key rotation needs a restart.
func LoadProviderKeys(ctx context.Context, provider *oidc.Provider, logger *slog.Logger) (*jwtx.Registry, error) {
	set, err := provider.FetchJWKS(ctx)
	if err != nil {
		return nil, err
	}

	registry, err := jwtx.NewRegistry(set)
	if err != nil {
		return nil, fmt.Errorf("build key registry: %w", err)
	}

	logger.Info("provider keys loaded",
		"count", registry.Len(),
		"kids", registry.KeyIDs(),
		"algorithms", registry.Algorithms(),
	)
	return registry, nil
}
