package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/keygate/internal/limiter"
	"github.com/and161185/keygate/internal/service"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	c, err := load([]string{"-jwt-key", "k", "-owner-id", "42"}, envMap(nil))
	require.NoError(t, err)
	require.Equal(t, ":8443", c.Addr)
	require.Equal(t, BackendPostgres, c.Store)
	require.Equal(t, BackendMemory, c.Limiter)
	require.Equal(t, int64(42), c.OwnerID)
	require.Equal(t, service.DefaultRedeemWindow, c.RedeemWindow)
	require.Equal(t, "0 0 * * *", c.SweepSpec)
	require.Equal(t, "Asia/Kolkata", c.SweepTimezone)
	require.Equal(t, limiter.Limit{Max: 5, Window: time.Hour}, c.Limits.For("check"))
	require.Empty(t, c.MetricsAddr)
}

func TestLoad_EnvThenFlags(t *testing.T) {
	t.Parallel()

	env := envMap(map[string]string{
		"KG_JWT_KEY":       "env-key",
		"KG_OWNER_ID":      "7",
		"KG_STORE":         "memory",
		"KG_LIMITER":       "redis",
		"KG_REDEEM_WINDOW": "48h",
		"KG_PLAINTEXT":     "true",
		"KG_LIMITS":        "check=2/1m",
		"KG_OWNER_IGNORED": "x",
	})
	c, err := load([]string{"-owner-id", "8"}, env)
	require.NoError(t, err)
	require.Equal(t, "env-key", c.JWTKey)
	require.Equal(t, int64(8), c.OwnerID, "flag overrides env")
	require.Equal(t, BackendMemory, c.Store)
	require.Equal(t, BackendRedis, c.Limiter)
	require.Equal(t, 48*time.Hour, c.RedeemWindow)
	require.True(t, c.Plaintext)
	require.Equal(t, limiter.Limit{Max: 2, Window: time.Minute}, c.Limits.For("check"))
}

func TestLoad_BadEnvFallsBack(t *testing.T) {
	t.Parallel()

	c, err := load([]string{"-jwt-key", "k"}, envMap(map[string]string{
		"KG_OWNER_ID":      "1",
		"KG_REDEEM_WINDOW": "soon",
		"KG_DEV":           "maybe",
	}))
	require.NoError(t, err)
	require.Equal(t, service.DefaultRedeemWindow, c.RedeemWindow)
	require.False(t, c.Dev)
}

func TestLoad_Validation(t *testing.T) {
	t.Parallel()

	cases := map[string][]string{
		"no jwt":       {"-owner-id", "1"},
		"no owner":     {"-jwt-key", "k"},
		"bad store":    {"-jwt-key", "k", "-owner-id", "1", "-store", "sqlite"},
		"bad limiter":  {"-jwt-key", "k", "-owner-id", "1", "-limiter", "etcd"},
		"bad limits":   {"-jwt-key", "k", "-owner-id", "1", "-limits", "check=five/1h"},
		"bad tz":       {"-jwt-key", "k", "-owner-id", "1", "-sweep-tz", "Nowhere/City"},
		"zero window":  {"-jwt-key", "k", "-owner-id", "1", "-redeem-window", "0s"},
		"no tls files": {"-jwt-key", "k", "-owner-id", "1", "-tls-cert", ""},
		"unknown flag": {"-jwt-key", "k", "-owner-id", "1", "-nope"},
	}
	for name, args := range cases {
		_, err := load(args, envMap(nil))
		require.Error(t, err, name)
	}
}
