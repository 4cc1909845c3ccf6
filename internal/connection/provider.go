package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"

	"github.com/fivequarters/q5-sub008/pkg/types"
)

// ProviderOptions configures secret discovery.
type ProviderOptions struct {
	// TagKey and TagValue select the secret.
	TagKey   string
	TagValue string

	// Database is used when neither the secret's tags nor its payload name
	// one.
	Database string

	// RequireResource makes a secret without a resource-arn tag a
	// configuration error.
	RequireResource bool

	Logger hclog.Logger
}

// Provider resolves Credentials once and serves them from memory after that.
// Concurrent first callers share a single lookup.
type Provider struct {
	store  SecretStore
	opts   ProviderOptions
	logger hclog.Logger
	group  singleflight.Group

	mu    sync.RWMutex
	creds *Credentials
	fatal error

	ready     chan struct{}
	readyOnce sync.Once
}

// NewProvider returns a Provider reading from store. Nothing is looked up
// until the first Resolve.
func NewProvider(store SecretStore, opts ProviderOptions) *Provider {
	if opts.TagKey == "" {
		opts.TagKey = types.DefaultSecretTagKey
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Provider{
		store:  store,
		opts:   opts,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Ready is closed after the first successful Resolve.
func (p *Provider) Ready() <-chan struct{} {
	return p.ready
}

// Resolve returns the cached credentials, looking them up on first use.
// A configuration error is cached and returned on every later call; other
// lookup errors are not cached.
func (p *Provider) Resolve(ctx context.Context) (Credentials, error) {
	if c, done, err := p.cached(); done {
		return c, err
	}

	v, err, _ := p.group.Do("resolve", func() (any, error) {
		if c, done, err := p.cached(); done {
			return c, err
		}

		creds, err := p.lookup(ctx)
		if err != nil {
			if errors.Is(err, types.ErrConfiguration) {
				p.mu.Lock()
				p.fatal = err
				p.mu.Unlock()
				p.logger.Error("credential resolution failed permanently", "error", err)
			}
			return Credentials{}, err
		}

		p.mu.Lock()
		p.creds = &creds
		p.mu.Unlock()
		p.readyOnce.Do(func() { close(p.ready) })

		p.logger.Info("resolved database credentials",
			"secret", creds.SecretID, "resource", creds.ResourceID, "database", creds.Database)
		return creds, nil
	})
	if err != nil {
		return Credentials{}, err
	}
	return v.(Credentials), nil
}

func (p *Provider) cached() (Credentials, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.creds != nil {
		return *p.creds, true, nil
	}
	if p.fatal != nil {
		return Credentials{}, true, p.fatal
	}
	return Credentials{}, false, nil
}

func (p *Provider) lookup(ctx context.Context) (Credentials, error) {
	secrets, err := p.store.FindSecrets(ctx, p.opts.TagKey, p.opts.TagValue)
	if err != nil {
		return Credentials{}, fmt.Errorf("find secrets: %w", err)
	}
	if len(secrets) != 1 {
		return Credentials{}, fmt.Errorf("%w: found %d secrets tagged %s=%s, want exactly 1",
			types.ErrConfiguration, len(secrets), p.opts.TagKey, p.opts.TagValue)
	}
	secret := secrets[0]

	creds := Credentials{
		SecretID:   secret.ID,
		ResourceID: secret.Tags[TagResourceARN],
		Database:   secret.Tags[TagDatabase],
	}
	if creds.ResourceID == "" && p.opts.RequireResource {
		return Credentials{}, fmt.Errorf("%w: secret %s has no %s tag",
			types.ErrConfiguration, secret.ID, TagResourceARN)
	}

	raw, err := p.store.SecretValue(ctx, secret.ID)
	if err != nil {
		return Credentials{}, fmt.Errorf("read secret %s: %w", secret.ID, err)
	}
	var payload secretPayload
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return Credentials{}, fmt.Errorf("%w: secret %s is not a JSON credential: %v",
				types.ErrConfiguration, secret.ID, err)
		}
	}

	creds.Username = payload.Username
	creds.Password = payload.Password
	creds.Host = payload.Host
	creds.Port = int(payload.Port)
	if creds.Database == "" {
		creds.Database = payload.DBName
	}
	if creds.Database == "" {
		creds.Database = p.opts.Database
	}
	return creds, nil
}
