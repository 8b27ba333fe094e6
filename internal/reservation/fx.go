package reservation

import (
	"github.com/smallbiznis/hostelway/internal/reservation/repository"
	"github.com/smallbiznis/hostelway/internal/reservation/service"
	"github.com/smallbiznis/hostelway/pkg/keyedmutex"
	"go.uber.org/fx"
)

var Module = fx.Module("reservation.service",
	fx.Provide(repository.Provide),
	fx.Provide(keyedmutex.New),
	fx.Provide(service.NewService),
)
