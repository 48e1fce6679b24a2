//go:build wireinject
// +build wireinject

package main

import (
	"upstox-data/internal/app"
	"upstox-data/internal/provider"

	"github.com/google/wire"
)

// InitializeApp builds the App via Wire. Caller must call cleanup when done.
func InitializeApp(path app.ConfigPath) (*app.App, func(), error) {
	wire.Build(
		app.ProvideConfig,
		app.ProvideLogger,
		app.ProvideMetrics,
		app.ProvideAtomicWriter,
		app.ProvideRecordStore,
		app.ProvideUpstoxClient,
		app.ProvideFetcher,
		wire.Bind(new(provider.CandleFetcher), new(*provider.RateLimited)),
		app.ProvideRecorder,
		app.ProvideExporter,
		app.ProvideEngine,
		wire.Struct(new(app.App), "*"),
	)
	return nil, nil, nil
}
