package notification

import (
	"github.com/smallbiznis/hostelway/internal/notification/repository"
	"github.com/smallbiznis/hostelway/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(
		fx.Annotate(
			service.NewListener,
			fx.ResultTags(`group:"transition_listeners"`),
		),
	),
)
