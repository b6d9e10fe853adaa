// Package credentials resolves API tokens for the upstream generation
// service. The environment variable wins; the database row is the fallback
// so operators can rotate keys without a redeploy.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"vidtrack/internal/infra"
	"vidtrack/internal/sqlinline"
)

const ProviderUpstream = "upstream"

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// UpstreamAPIKey returns the stored generation-service token, or "" when
// none is configured.
func (s *Store) UpstreamAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderUpstream)
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetUpstreamAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("upstream api key is required")
	}
	return s.upsert(ctx, ProviderUpstream, key, nil)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
