//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"context"

	"github.com/arcworks/arc/internal/app"
	"github.com/arcworks/arc/internal/config"
	"github.com/google/wire"
	"go.uber.org/zap"
)

// InitializeApp builds the daemon's components from cfg.
func InitializeApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app.App, func(), error) {
	wire.Build(app.ProviderSet)
	return nil, nil, nil
}
