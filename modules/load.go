package modules

import (
	"github.com/realvista/backend/modules/catalog"
	"github.com/realvista/backend/pkg/application"
)

var BuiltInModules = []application.Module{
	catalog.NewModule(),
}

func Load(app application.Application, externalModules ...application.Module) error {
	return application.Load(app, externalModules...)
}
