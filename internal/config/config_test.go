package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Catalog.Format)
	assert.Equal(t, 50, cfg.Catalog.PageSize)
	assert.Equal(t, "product_type", cfg.Taxonomy.TypeField)
	assert.Equal(t, "tag", cfg.Taxonomy.TagField)
	assert.Equal(t, 1, cfg.Taxonomy.SelectionLevel)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 4, cfg.Digest.MaxWorkers)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
catalog:
  base_url: https://shop.example.com
  format: html
  page_size: 24
  proxies:
    - http://proxy-1:8080
database:
  host: db
  name: deals
`)
	t.Setenv("DEALFEED_DIGEST_MAX_WORKERS", "9")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example.com", cfg.Catalog.BaseURL)
	assert.Equal(t, "html", cfg.Catalog.Format)
	assert.Equal(t, 24, cfg.Catalog.PageSize)
	assert.Equal(t, []string{"http://proxy-1:8080"}, cfg.Catalog.Proxies)
	assert.Equal(t, 9, cfg.Digest.MaxWorkers)
	assert.Equal(t, "host=db port=5432 user=dealfeed_user password=dealfeed_pass dbname=deals sslmode=disable", cfg.Database.DSN())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "unknown format", body: "catalog:\n  format: xml\n", wantErr: "unsupported catalog format"},
		{name: "zero page size", body: "catalog:\n  page_size: 0\n", wantErr: "page_size must be positive"},
		{name: "zero workers", body: "digest:\n  max_workers: 0\n", wantErr: "max_workers must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
