package accesscode

import (
	"github.com/smallbiznis/hostelway/internal/accesscode/service"
	"go.uber.org/fx"
)

var Module = fx.Module("accesscode",
	fx.Provide(service.NewService),
	fx.Provide(
		fx.Annotate(
			service.NewListener,
			fx.ResultTags(`group:"transition_listeners"`),
		),
	),
)
