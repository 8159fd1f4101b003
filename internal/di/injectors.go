//go:build wireinject
// +build wireinject

package di

import (
	wire "github.com/google/wire"

	"memoryd/internal"
	"memoryd/internal/controllers"
	"memoryd/internal/emotion"
	"memoryd/internal/maintenance"
	"memoryd/internal/personality"
	"memoryd/internal/preference"
	"memoryd/internal/providers"
	"memoryd/internal/repository"
	"memoryd/internal/services"
	"memoryd/internal/store"
	"memoryd/internal/structures"
	"memoryd/internal/tasks"
)

func InitApp(cfg *structures.CliFlags) (*internal.App, func(), error) {

	wire.Build(
		providers.NewConfigProvider,
		providers.NewLogProvider,
		providers.NewMetricsProvider,
		providers.NewInstrumentedCacheProvider,
		providers.NewRateLimiter,

		store.NewStoreProvider,
		wire.Bind(new(repository.Store), new(*store.Store)),
		maintenance.NewCompressorProvider,
		repository.NewMemoryRepository,

		emotion.NewClassifierProvider,
		emotion.NewAnalyzerProvider,
		preference.NewEngineProvider,
		personality.NewCalibratorProvider,
		tasks.NewDispatcherProvider,
		maintenance.NewArchiveManager,

		services.NewMemoryService,
		services.NewMaintenanceTarget,
		maintenance.NewScheduler,
		controllers.NewMemoryController,
		controllers.NewHealthController,
		internal.InitRoutes,
		internal.NewApp,
	)

	return nil, nil, nil
}
