package connection

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretsManagerAPI is the subset of the Secrets Manager client the store
// uses.
type SecretsManagerAPI interface {
	ListSecrets(ctx context.Context, in *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerStore discovers secrets in AWS Secrets Manager.
type SecretsManagerStore struct {
	client SecretsManagerAPI
}

// NewSecretsManagerStore wraps client.
func NewSecretsManagerStore(client SecretsManagerAPI) *SecretsManagerStore {
	return &SecretsManagerStore{client: client}
}

// LoadSecretsManagerStore builds a client from the default AWS credential
// chain for region.
func LoadSecretsManagerStore(ctx context.Context, region string) (*SecretsManagerStore, error) {
	cfg, err := LoadAWSConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return NewSecretsManagerStore(secretsmanager.NewFromConfig(cfg)), nil
}

// LoadAWSConfig loads the default AWS configuration, overriding the region
// when one is given.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// FindSecrets lists every page of secrets filtered by tag key and value. The
// service filters match keys and values independently, so the exact pair is
// checked again here.
func (s *SecretsManagerStore) FindSecrets(ctx context.Context, tagKey, tagValue string) ([]Secret, error) {
	input := &secretsmanager.ListSecretsInput{
		Filters: []smtypes.Filter{
			{Key: smtypes.FilterNameStringTypeTagKey, Values: []string{tagKey}},
			{Key: smtypes.FilterNameStringTypeTagValue, Values: []string{tagValue}},
		},
	}

	var found []Secret
	pages := secretsmanager.NewListSecretsPaginator(s.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list secrets: %w", err)
		}
		for _, entry := range page.SecretList {
			tags := make(map[string]string, len(entry.Tags))
			for _, t := range entry.Tags {
				tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
			}
			if v, ok := tags[tagKey]; !ok || v != tagValue {
				continue
			}
			found = append(found, Secret{
				ID:   aws.ToString(entry.ARN),
				Name: aws.ToString(entry.Name),
				Tags: tags,
			})
		}
	}
	return found, nil
}

// SecretValue reads the current value of the secret.
func (s *SecretsManagerStore) SecretValue(ctx context.Context, id string) (string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return "", fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString != nil {
		return *out.SecretString, nil
	}
	return string(out.SecretBinary), nil
}
