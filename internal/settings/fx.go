package settings

import (
	"github.com/smallbiznis/hostelway/internal/settings/repository"
	"github.com/smallbiznis/hostelway/internal/settings/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settings",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
