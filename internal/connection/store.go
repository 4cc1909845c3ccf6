package connection

import (
	"context"
	"fmt"

	"github.com/fivequarters/q5-sub008/pkg/types"
)

// Resolver supplies Credentials. *Provider implements it.
type Resolver interface {
	Resolve(ctx context.Context) (Credentials, error)
}

// Secret describes one candidate secret found by tag.
type Secret struct {
	ID   string
	Name string
	Tags map[string]string
}

// SecretStore finds secrets by tag and reads their values.
type SecretStore interface {
	// FindSecrets returns every secret tagged tagKey=tagValue.
	FindSecrets(ctx context.Context, tagKey, tagValue string) ([]Secret, error)

	// SecretValue returns the secret's string payload.
	SecretValue(ctx context.Context, id string) (string, error)
}

// StaticStore serves a single secret from configuration. It is used in local
// mode and by tests.
type StaticStore struct {
	secret Secret
	value  string
}

// NewStaticStore returns a store holding one secret built from cfg.
func NewStaticStore(cfg types.StaticSecret, tagKey, tagValue string) *StaticStore {
	tags := map[string]string{tagKey: tagValue}
	if cfg.ResourceID != "" {
		tags[TagResourceARN] = cfg.ResourceID
	}
	if cfg.Database != "" {
		tags[TagDatabase] = cfg.Database
	}
	value := fmt.Sprintf(`{"username":%q,"password":%q,"host":%q,"port":%d,"dbname":%q}`,
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	return &StaticStore{
		secret: Secret{ID: cfg.ID, Name: cfg.ID, Tags: tags},
		value:  value,
	}
}

// FindSecrets returns the static secret when its tags match.
func (s *StaticStore) FindSecrets(_ context.Context, tagKey, tagValue string) ([]Secret, error) {
	if v, ok := s.secret.Tags[tagKey]; ok && v == tagValue {
		return []Secret{s.secret}, nil
	}
	return nil, nil
}

// SecretValue returns the static payload.
func (s *StaticStore) SecretValue(_ context.Context, id string) (string, error) {
	if id != s.secret.ID {
		return "", fmt.Errorf("secret %q not found", id)
	}
	return s.value, nil
}
