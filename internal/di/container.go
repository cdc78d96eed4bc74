package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitmarket/api/internal/notify"
	"github.com/fitmarket/api/internal/payments"
	"github.com/fitmarket/api/internal/platform/blobstore"
	"github.com/fitmarket/api/internal/platform/cache"
	"github.com/fitmarket/api/internal/platform/config"
	"github.com/fitmarket/api/internal/repositories"
	"github.com/fitmarket/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Trainers services.TrainerService
	Content  services.ContentService
	Leads    services.LeadService
	System   services.SystemService
}

// Logger matches the structured event loggers accepted by services.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Deps carries the infrastructure that lives outside the repository registry.
type Deps struct {
	Blobs       blobstore.Store
	Invalidator cache.Invalidator
	Payments    payments.Provider
	Notifier    notify.Notifier
	Events      services.EventPublisher
	Build       services.BuildInfo
	Clock       func() time.Time

	// Loggers are keyed by service name ("trainers", "content", "leads").
	Loggers map[string]Logger
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring passes the
// Firestore registry while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps Deps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	svc, err := buildServices(ctx, reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, deps Deps) (Services, error) {
	var svc Services

	trainerSvc, err := services.NewTrainerService(services.TrainerServiceDeps{
		Drafts:        reg.TrainerDrafts(),
		Trainers:      reg.Trainers(),
		Payments:      deps.Payments,
		Notifier:      deps.Notifier,
		Events:        deps.Events,
		Clock:         deps.Clock,
		Logger:        deps.logger("trainers"),
		PublicBaseURL: cfg.Site.PublicBaseURL,
		CountryCode:   cfg.Site.CountryCode,
		DraftTTL:      cfg.Site.DraftTTL,
		Checkout: services.CheckoutSettings{
			PriceID:  cfg.PSP.ActivationPriceID,
			Amount:   cfg.PSP.ActivationAmount,
			Currency: cfg.PSP.Currency,
		},
	})
	if err != nil {
		return Services{}, fmt.Errorf("build trainer service: %w", err)
	}
	svc.Trainers = trainerSvc

	if deps.Blobs != nil {
		contentSvc, err := services.NewContentService(services.ContentServiceDeps{
			Blobs:       deps.Blobs,
			Aliases:     reg.ContentAliases(),
			Invalidator: deps.Invalidator,
			Clock:       deps.Clock,
			Logger:      deps.logger("content"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build content service: %w", err)
		}
		svc.Content = contentSvc
	}

	leadSvc, err := services.NewLeadService(services.LeadServiceDeps{
		Leads:       reg.Leads(),
		Clock:       deps.Clock,
		Logger:      deps.logger("leads"),
		CountryCode: cfg.Site.CountryCode,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build lead service: %w", err)
	}
	svc.Leads = leadSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		build := deps.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = deps.Clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            deps.Clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func (d Deps) logger(name string) func(ctx context.Context, event string, fields map[string]any) {
	if l, ok := d.Loggers[name]; ok && l != nil {
		return l
	}
	return nil
}
