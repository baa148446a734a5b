package catalog

import (
	"embed"

	"github.com/realvista/backend/modules/catalog/handlers"
	"github.com/realvista/backend/modules/catalog/infrastructure/persistence"
	"github.com/realvista/backend/modules/catalog/presentation/controllers"
	"github.com/realvista/backend/modules/catalog/services"
	"github.com/realvista/backend/pkg/application"
)

//go:embed infrastructure/persistence/schema/catalog-schema.sql
var migrationFiles embed.FS

func NewModule() application.Module {
	return &Module{}
}

type Module struct {
}

func (m *Module) Register(app application.Application) error {
	app.RegisterSchema(&migrationFiles)

	itemRepo := persistence.NewContentItemRepository()
	proposalRepo := persistence.NewProposalRepository()
	auditRepo := persistence.NewProposalAuditRepository()

	app.RegisterServices(
		services.NewWorkflowService(itemRepo, proposalRepo, app.EventPublisher()),
		services.NewListingService(itemRepo, proposalRepo),
		services.NewAuditService(proposalRepo, auditRepo),
	)
	app.RegisterControllers(
		controllers.NewCatalogAPIController(app),
	)
	handlers.RegisterAuditEventHandlers(app, auditRepo)
	return nil
}

func (m *Module) Name() string {
	return "catalog"
}
