package secrets

import (
	"context"
	"errors"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/rotblauer/stravad/params"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GSM is a Google Secret Manager backed store.
// Versions are full resource names,
// eg. projects/p/secrets/strava_refresh_token_1/versions/7.
type GSM struct {
	client  *secretmanager.Client
	project string
}

func OpenGSM(ctx context.Context, config *params.SecretsConfig) (*GSM, error) {
	opts := []option.ClientOption{}
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("secret manager client: %w", err)
	}
	return &GSM{client: client, project: config.Project}, nil
}

func (g *GSM) secretPath(name string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", g.project, name)
}

func (g *GSM) Access(ctx context.Context, name string) (string, error) {
	res, err := g.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: g.secretPath(name) + "/versions/latest",
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			err = errors.Join(ErrNotFound, err)
		}
		return "", fmt.Errorf("access %s: %w", name, err)
	}
	return string(res.GetPayload().GetData()), nil
}

func (g *GSM) Add(ctx context.Context, name, value string) (string, error) {
	v, err := g.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  g.secretPath(name),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	})
	if err != nil {
		return "", fmt.Errorf("add %s: %w", name, err)
	}
	return v.GetName(), nil
}

// Versions returns enabled versions, newest first, as the API lists them.
func (g *GSM) Versions(ctx context.Context, name string) ([]string, error) {
	it := g.client.ListSecretVersions(ctx, &secretmanagerpb.ListSecretVersionsRequest{
		Parent: g.secretPath(name),
		Filter: "state:ENABLED",
	})
	versions := []string{}
	for {
		v, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", name, err)
		}
		versions = append(versions, v.GetName())
	}
	return versions, nil
}

func (g *GSM) Destroy(ctx context.Context, name, version string) error {
	_, err := g.client.DestroySecretVersion(ctx, &secretmanagerpb.DestroySecretVersionRequest{
		Name: version,
	})
	if err != nil {
		return fmt.Errorf("destroy %s: %w", version, err)
	}
	return nil
}

func (g *GSM) Close() error {
	return g.client.Close()
}
