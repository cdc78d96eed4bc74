package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fitmarket/api/internal/platform/config"
)

const (
	defaultDialTimeout = 10 * time.Second
	envEmulatorHost    = "FIRESTORE_EMULATOR_HOST"
	envGoogleProjectID = "GOOGLE_CLOUD_PROJECT"
)

// ErrProviderClosed is returned once Close has been called.
var ErrProviderClosed = errors.New("firestore: provider is closed")

// Provider owns the Firestore client for the lifetime of the process. It is
// constructed once during bootstrap and handed to every repository.
type Provider struct {
	mu     sync.RWMutex
	client *firestore.Client
	closed bool
}

// ProviderOption customises client construction.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	dialTimeout time.Duration
	clientOpts  []option.ClientOption
}

// WithDialTimeout overrides the timeout used when creating the client.
func WithDialTimeout(timeout time.Duration) ProviderOption {
	return func(o *providerOptions) {
		if timeout > 0 {
			o.dialTimeout = timeout
		}
	}
}

// WithClientOptions appends client options applied during construction.
func WithClientOptions(opts ...option.ClientOption) ProviderOption {
	return func(o *providerOptions) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

// NewProvider dials Firestore using cfg. The emulator is used when an emulator
// host is configured either explicitly or through FIRESTORE_EMULATOR_HOST.
func NewProvider(ctx context.Context, cfg config.FirestoreConfig, opts ...ProviderOption) (*Provider, error) {
	options := providerOptions{dialTimeout: defaultDialTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		projectID = strings.TrimSpace(os.Getenv(envGoogleProjectID))
	}
	if projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}

	dialCtx, cancel := context.WithTimeout(ctx, options.dialTimeout)
	defer cancel()

	clientOpts := append([]option.ClientOption(nil), options.clientOpts...)
	if host := emulatorHost(cfg); host != "" {
		if os.Getenv(envEmulatorHost) == "" {
			_ = os.Setenv(envEmulatorHost, host)
		}
		clientOpts = append(clientOpts,
			option.WithoutAuthentication(),
			option.WithEndpoint(host),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	client, err := firestore.NewClient(dialCtx, projectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: create client: %w", err)
	}
	return &Provider{client: client}, nil
}

// NewProviderFromClient wraps an already constructed client.
func NewProviderFromClient(client *firestore.Client) *Provider {
	return &Provider{client: client}
}

// Client returns the shared client.
func (p *Provider) Client(context.Context) (*firestore.Client, error) {
	if p == nil {
		return nil, errors.New("firestore: provider is nil")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrProviderClosed
	}
	if p.client == nil {
		return nil, errors.New("firestore: client not configured")
	}
	return p.client, nil
}

// RunTransaction executes fn inside a Firestore transaction using the provider's client.
func (p *Provider) RunTransaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	return RunTransaction(ctx, client, fn, opts...)
}

// Close releases the client. Subsequent calls to Client fail with ErrProviderClosed.
func (p *Provider) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- client.Close() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func emulatorHost(cfg config.FirestoreConfig) string {
	if trimmed := strings.TrimSpace(cfg.EmulatorHost); trimmed != "" {
		return trimmed
	}
	return strings.TrimSpace(os.Getenv(envEmulatorHost))
}
