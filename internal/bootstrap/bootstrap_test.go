package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/tenant-domains/internal/config"
	"github.com/ignite/tenant-domains/internal/registrar"
)

func baseConfig() *config.Config {
	return &config.Config{
		Provisioning: config.ProvisioningConfig{BaseDomain: "example.com", Region: "us-east-1"},
		Registrar:    config.RegistrarConfig{Provider: "rest", BaseURL: "http://127.0.0.1:1", APIKey: "k", APISecret: "s", TimeoutSeconds: 1},
		EmailProvider: config.EmailProviderConfig{
			BaseURL: "http://127.0.0.1:1", TimeoutSeconds: 1,
		},
		Lock: config.LockConfig{TTLSeconds: 60},
	}
}

func TestNewRegistrarSelection(t *testing.T) {
	ctx := context.Background()

	reg, err := NewRegistrar(ctx, config.RegistrarConfig{Provider: "rest"})
	require.NoError(t, err)
	assert.IsType(t, &registrar.Client{}, reg)

	reg, err = NewRegistrar(ctx, config.RegistrarConfig{Provider: "route53", AWSRegion: "us-east-1", AWSAccessKey: "AKIA", AWSSecretKey: "secret", HostedZoneID: "Z1"})
	require.NoError(t, err)
	assert.IsType(t, &registrar.Route53Client{}, reg)
	assert.True(t, reg.IsConfigured())

	_, err = NewRegistrar(ctx, config.RegistrarConfig{Provider: "cloudflare"})
	assert.Error(t, err)
}

func TestNewWithoutBackingStores(t *testing.T) {
	app, err := New(context.Background(), baseConfig())
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.DB)
	assert.Nil(t, app.Redis)
	assert.Equal(t, "local", app.LockBackend)

	status := app.Status()
	assert.Equal(t, "example.com", status.BaseDomain)
	assert.True(t, status.RegistrarConfigured)
	assert.False(t, status.EmailProviderConfigured)
	assert.False(t, status.JournalEnabled)
}

func TestNewWithRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := baseConfig()
	cfg.Redis.URL = "redis://" + mr.Addr()

	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.Redis)
	assert.Equal(t, "redis", app.LockBackend)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.Provisioning.BaseDomain = ""
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestUnreachableRedisIsDropped(t *testing.T) {
	cfg := baseConfig()
	cfg.Redis.URL = "redis://127.0.0.1:1"

	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()
	assert.Nil(t, app.Redis)
	assert.Equal(t, "local", app.LockBackend)
}
