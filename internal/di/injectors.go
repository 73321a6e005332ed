//go:build wireinject
// +build wireinject

package di

import (
	wire "github.com/google/wire"

	"minuto/config"
	"minuto/internal/app"
	"minuto/internal/gpt"
	"minuto/internal/server"
)

func InitApp(cfg *config.Config) (*app.App, func(), error) {

	wire.Build(
		ProvideLogger,
		ProvideStore,
		ProvideClock,
		ProvideTelegram,
		ProvideAnnouncer,
		ProvideEngine,
		ProvideContent,
		ProvideJournal,
		ProvideBible,
		ProvideEmail,
		ProvidePayments,
		ProvideGPT,
		ProvideConversations,
		wire.Bind(new(server.Answerer), new(*gpt.Client)),
		ProvideRegistry,
		ProvideRecorder,
		ProvideGatherer,
		ProvideAuthenticator,
		server.NewAPI,
		ProvideServer,
		ProvideReminder,
		ProvideApp,
	)

	return nil, nil, nil
}
