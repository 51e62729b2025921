package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	require.NotNil(t, cfg)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, int64(1<<20), cfg.Files.MaxUploadBytes)
	assert.Equal(t, 10*time.Second, cfg.Database.OperationTimeout)
	assert.Equal(t, 30*time.Second, cfg.IdP.Timeout)
	assert.Equal(t, "http://localhost:8081/realms/sustainability/protocol/openid-connect/certs", cfg.IdP.JWKSURL)
	assert.Equal(t, []string{
		"https://localhost:8081/realms/sustainability",
		"http://localhost:8081/realms/sustainability",
	}, cfg.IdP.Issuers)
	assert.Equal(t, []string{"account", "sustainability-frontend"}, cfg.IdP.Audiences)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("IDP_BASE_URL", "https://id.example.org/")
	v.Set("IDP_REALM", "acme")
	v.Set("IDP_ISSUERS", " https://id.example.org/realms/acme , ")
	v.Set("FILES_MAX_UPLOAD_BYTES", 0)
	v.Set("DB_OPERATION_TIMEOUT", "bogus")

	cfg := fromViper(v)
	assert.Equal(t, "https://id.example.org/realms/acme/protocol/openid-connect/certs", cfg.IdP.JWKSURL)
	assert.Equal(t, []string{"https://id.example.org/realms/acme"}, cfg.IdP.Issuers)
	assert.Equal(t, int64(1<<20), cfg.Files.MaxUploadBytes)
	assert.Equal(t, 10*time.Second, cfg.Database.OperationTimeout)
}

func TestValidateProduction(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	require.NoError(t, cfg.Validate())

	cfg.Env = EnvProduction
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FILES_SIGNED_URL_SECRET")

	cfg.Files.SignedURLSecret = "0123456789abcdef0123456789abcdef"
	require.NoError(t, cfg.Validate())

	cfg.IdP.JWKSURL = ""
	cfg.IdP.Audiences = nil
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IDP_JWKS_URL")
	assert.Contains(t, err.Error(), "IDP_AUDIENCES")
}
