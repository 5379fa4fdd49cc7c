package tenancy

import (
	"github.com/pkg/errors"

	"github.com/iota-uz/tenancy/modules/tenancy/presentation/controllers"
	"github.com/iota-uz/tenancy/modules/tenancy/services"
	"github.com/iota-uz/tenancy/pkg/application"
)

type ModuleOptions struct {
	Resolver     *services.Resolver
	Cache        *services.TenantCache
	Verification *services.DomainVerificationService

	TenantController controllers.TenantControllerOptions
}

func NewModule(opts *ModuleOptions) application.Module {
	return &Module{opts: opts}
}

type Module struct {
	opts *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	if m.opts == nil || m.opts.Resolver == nil || m.opts.Cache == nil || m.opts.Verification == nil {
		return errors.New("tenancy module: services are not configured")
	}
	app.RegisterServices(
		m.opts.Resolver,
		m.opts.Cache,
		m.opts.Verification,
	)
	app.RegisterControllers(
		controllers.NewTenantController(app, m.opts.TenantController),
		controllers.NewOpsController(app),
	)
	return nil
}

func (m *Module) Name() string {
	return "tenancy"
}
