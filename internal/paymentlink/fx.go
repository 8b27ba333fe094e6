package paymentlink

import (
	"github.com/smallbiznis/hostelway/internal/paymentlink/service"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentlink",
	fx.Provide(service.NewService),
	fx.Provide(
		fx.Annotate(
			service.NewListener,
			fx.ResultTags(`group:"transition_listeners"`),
		),
	),
)
