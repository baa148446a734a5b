package application

import (
	"embed"
	"fmt"
	"reflect"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/realvista/backend/pkg/eventbus"
)

// Controller is anything a module mounts onto the router.
type Controller interface {
	Register(r *mux.Router)
	Key() string
}

// Module is a self-contained feature slice: it registers its services,
// controllers and schema with the application at startup.
type Module interface {
	Register(app Application) error
	Name() string
}

type Application interface {
	DB() *pgxpool.Pool
	EventPublisher() eventbus.EventBus
	Logger() *logrus.Logger
	Controllers() []Controller
	Middleware() []mux.MiddlewareFunc
	Schemas() []*embed.FS

	RegisterControllers(controllers ...Controller)
	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	RegisterServices(services ...interface{})
	RegisterSchema(fs *embed.FS)
	Service(service interface{}) interface{}
}

type ApplicationOptions struct {
	Pool     *pgxpool.Pool
	EventBus eventbus.EventBus
	Logger   *logrus.Logger
}

func New(opts *ApplicationOptions) Application {
	return &application{
		pool:     opts.Pool,
		eventBus: opts.EventBus,
		logger:   opts.Logger,
		services: make(map[reflect.Type]interface{}),
	}
}

type application struct {
	pool        *pgxpool.Pool
	eventBus    eventbus.EventBus
	logger      *logrus.Logger
	controllers map[string]Controller
	middleware  []mux.MiddlewareFunc
	schemas     []*embed.FS
	services    map[reflect.Type]interface{}
}

func (app *application) DB() *pgxpool.Pool {
	return app.pool
}

func (app *application) EventPublisher() eventbus.EventBus {
	return app.eventBus
}

func (app *application) Logger() *logrus.Logger {
	return app.logger
}

func (app *application) Controllers() []Controller {
	controllers := make([]Controller, 0, len(app.controllers))
	for _, c := range app.controllers {
		controllers = append(controllers, c)
	}
	return controllers
}

func (app *application) Middleware() []mux.MiddlewareFunc {
	return app.middleware
}

func (app *application) Schemas() []*embed.FS {
	return app.schemas
}

func (app *application) RegisterControllers(controllers ...Controller) {
	if app.controllers == nil {
		app.controllers = make(map[string]Controller)
	}
	for _, c := range controllers {
		app.controllers[c.Key()] = c
	}
}

func (app *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	app.middleware = append(app.middleware, middleware...)
}

func (app *application) RegisterSchema(fs *embed.FS) {
	app.schemas = append(app.schemas, fs)
}

// RegisterServices registers a new service in the application by its type.
func (app *application) RegisterServices(services ...interface{}) {
	for _, service := range services {
		serviceType := reflect.TypeOf(service).Elem()
		app.services[serviceType] = service
	}
}

// Service retrieves a service by its type.
func (app *application) Service(service interface{}) interface{} {
	serviceType := reflect.TypeOf(service)
	svc, exists := app.services[serviceType]
	if !exists {
		panic(fmt.Sprintf("service %s not found", serviceType.Name()))
	}
	return svc
}

// Load registers each module in order, failing fast on the first error.
func Load(app Application, modules ...Module) error {
	for _, module := range modules {
		if err := module.Register(app); err != nil {
			return fmt.Errorf("failed to register module %s: %w", module.Name(), err)
		}
	}
	return nil
}
