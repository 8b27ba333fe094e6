package providers

import (
	"github.com/smallbiznis/hostelway/internal/providers/httpx"
	"github.com/smallbiznis/hostelway/internal/providers/lock"
	"github.com/smallbiznis/hostelway/internal/providers/messaging"
	"github.com/smallbiznis/hostelway/internal/providers/payment"
	"github.com/smallbiznis/hostelway/internal/providers/pms"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	fx.Provide(httpx.New),
	fx.Provide(pms.NewClient),
	fx.Provide(payment.NewClient),
	fx.Provide(lock.NewClient),
	fx.Provide(messaging.NewClient),
)
