package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"

	"github.com/herbie65/alloygator-nl-sub001/internal/events"
	"github.com/herbie65/alloygator-nl-sub001/internal/invoice"
	"github.com/herbie65/alloygator-nl-sub001/internal/mail"
	"github.com/herbie65/alloygator-nl-sub001/internal/platform/config"
	pfirestore "github.com/herbie65/alloygator-nl-sub001/internal/platform/firestore"
	"github.com/herbie65/alloygator-nl-sub001/internal/platform/storage"
	fsrepo "github.com/herbie65/alloygator-nl-sub001/internal/repositories/firestore"
	"github.com/herbie65/alloygator-nl-sub001/internal/services"
)

// Services bundles the service-layer contracts the handlers rely upon.
type Services struct {
	Orders   services.OrderService
	Invoices services.InvoiceService
	Sequence services.SequenceService
}

// Container wires repositories, services, and platform clients for runtime use.
type Container struct {
	Config   config.Config
	Services Services

	firestore   *pfirestore.Provider
	storage     *gcs.Client
	pubsub      *pubsub.Client
	pubsubTopic *pubsub.Topic
}

// NewContainer constructs the runtime dependency graph from configuration.
func NewContainer(ctx context.Context, cfg config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	c.firestore = pfirestore.NewProvider(cfg.Firestore)

	orders, err := fsrepo.NewOrderRepository(c.firestore)
	if err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	counters, err := fsrepo.NewCounterRepository(c.firestore)
	if err != nil {
		return nil, fmt.Errorf("build counter repository: %w", err)
	}

	storageClient, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("build storage client: %w", err)
	}
	c.storage = storageClient

	archive, err := storage.NewUploader(storageClient, cfg.Storage.InvoicesBucket, cfg.Storage.PublicBaseURL)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("build invoice archive: %w", err), c.Close(ctx))
	}

	var notifier services.OrderNotifier
	if strings.TrimSpace(cfg.SMTP.Host) != "" {
		mailNotifier, err := mail.NewNotifier(mail.NotifierDeps{
			Dialer:      mail.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password),
			FromAddress: cfg.SMTP.FromAddress,
			FromName:    cfg.SMTP.FromName,
			AdminEmail:  cfg.SMTP.AdminEmail,
		})
		if err != nil {
			return nil, errors.Join(fmt.Errorf("build mail notifier: %w", err), c.Close(ctx))
		}
		notifier = mailNotifier
	}

	var publisher services.OrderEventPublisher
	if strings.TrimSpace(cfg.PubSub.Topic) != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("build pubsub client: %w", err), c.Close(ctx))
		}
		c.pubsub = client
		c.pubsubTopic = client.Topic(cfg.PubSub.Topic)
		publisher, err = events.NewPubSubOrderEventPublisher(c.pubsubTopic)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("build event publisher: %w", err), c.Close(ctx))
		}
	}

	sequence, err := services.NewSequenceService(services.SequenceServiceDeps{
		Counters: counters,
		Name:     cfg.Invoice.SequenceName,
		Clock:    time.Now,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("build sequence service: %w", err), c.Close(ctx))
	}

	var rendererOpts []invoice.Option
	if cfg.Invoice.TemplatePath != "" {
		rendererOpts = append(rendererOpts, invoice.WithTemplate(cfg.Invoice.TemplatePath))
	}

	invoices, err := services.NewInvoiceService(services.InvoiceServiceDeps{
		Orders:     orders,
		Sequence:   sequence,
		Renderer:   invoice.NewRenderer(rendererOpts...),
		Archive:    archive,
		Notifier:   notifier,
		PathPrefix: cfg.Invoice.PathPrefix,
		Clock:      time.Now,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("build invoice service: %w", err), c.Close(ctx))
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   orders,
		Invoices: invoices,
		Notifier: notifier,
		Events:   publisher,
		Clock:    time.Now,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("build order service: %w", err), c.Close(ctx))
	}

	c.Services = Services{
		Orders:   orderSvc,
		Invoices: invoices,
		Sequence: sequence,
	}
	return c, nil
}

// Ping verifies the Firestore connection, used by the readiness probe.
func (c *Container) Ping(ctx context.Context) error {
	if c == nil || c.firestore == nil {
		return errors.New("container not initialised")
	}
	_, err := c.firestore.Client(ctx)
	return err
}

// Close releases platform clients in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.pubsubTopic != nil {
		c.pubsubTopic.Stop()
	}
	if c.pubsub != nil {
		if err := c.pubsub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub client: %w", err))
		}
	}
	if c.storage != nil {
		if err := c.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage client: %w", err))
		}
	}
	if c.firestore != nil {
		if err := c.firestore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close firestore provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
