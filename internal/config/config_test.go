package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDSNFromFields(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.example.com",
		Port:     4000,
		User:     "app",
		Password: "secret",
		Database: "shop",
	}

	dsn, err := cfg.ResolveDSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "app:secret@tcp(db.example.com:4000)/shop")
	assert.Contains(t, dsn, "parseTime=true")
}

func TestResolveDSNNormalizesExplicitDSN(t *testing.T) {
	cfg := DatabaseConfig{DSN: "app@tcp(localhost:4000)/shop"}

	dsn, err := cfg.ResolveDSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")
}

func TestResolveDSNInvalid(t *testing.T) {
	cfg := DatabaseConfig{DSN: "://not-a-dsn"}

	_, err := cfg.ResolveDSN()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn is invalid")
}

func TestResolveDSNRequiresFields(t *testing.T) {
	cfg := DatabaseConfig{Host: "localhost"}

	_, err := cfg.ResolveDSN()
	require.Error(t, err)
}

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		name    string
		cfg     DatabaseConfig
		want    string
		wantErr bool
	}{
		{"discrete field", DatabaseConfig{Database: "shop"}, "shop", false},
		{"from dsn", DatabaseConfig{DSN: "app@tcp(localhost:4000)/shop"}, "shop", false},
		{"missing", DatabaseConfig{}, "", true},
		{"dsn without database", DatabaseConfig{DSN: "app@tcp(localhost:4000)/"}, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.cfg.DatabaseName()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := decode(v)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Database.Host)
	assert.Equal(t, 4000, cfg.Database.Port)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRatio)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestDecodeOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("database.dsn", "app@tcp(localhost:4000)/shop")
	v.Set("database.conn_max_lifetime", "5m")
	v.Set("logging.format", "json")

	cfg, err := decode(v)
	require.NoError(t, err)
	assert.Equal(t, "app@tcp(localhost:4000)/shop", cfg.Database.DSN)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "json", cfg.Logging.Format)
}
