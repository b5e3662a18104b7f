package config

import "context"

// SecretProvider abstracts the retrieval of secrets so the database password
// can live in SSM Parameter Store in deployed environments and in the plain
// environment (or .env) locally.
type SecretProvider interface {
	// GetParametersBatch resolves the given parameter paths and returns a map
	// of path -> plaintext value for every path that was found.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
