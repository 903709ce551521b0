package params

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "STRAVAD"

// Config is the whole application configuration.
type Config struct {
	Strava   *StravaConfig
	Store    *StoreConfig
	Secrets  *SecretsConfig
	Web      *WebDaemonConfig
	Export   *ExportConfig
	InfluxDB *InfluxDBConfig
	LogLevel string
}

func DefaultConfig() *Config {
	return &Config{
		Strava:   DefaultStravaConfig(),
		Store:    DefaultStoreConfig(),
		Secrets:  DefaultSecretsConfig(),
		Web:      DefaultWebDaemonConfig(),
		Export:   DefaultExportConfig(),
		InfluxDB: DefaultInfluxDBConfig(),
		LogLevel: "info",
	}
}

// SetViperDefaults installs the defaults and environment bindings.
// Keys map to env vars as STRAVAD_<SECTION>_<KEY>, eg. STRAVAD_STORE_BACKEND.
func SetViperDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("log.level", d.LogLevel)

	v.SetDefault("strava.base_url", d.Strava.BaseURL)
	v.SetDefault("strava.token_url", d.Strava.TokenURL)
	v.SetDefault("strava.timeout", d.Strava.Timeout)
	v.SetDefault("strava.rate_limit", d.Strava.RateLimit)
	v.SetDefault("strava.rate_burst", d.Strava.RateBurst)
	v.SetDefault("strava.breaker_failures", d.Strava.BreakerFailures)
	v.SetDefault("strava.breaker_timeout", d.Strava.BreakerTimeout)
	v.SetDefault("strava.per_page", d.Strava.PerPage)
	v.SetDefault("strava.max_pages", d.Strava.MaxPages)

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.archive_dir", "")
	v.SetDefault("firebase.database_url", "")
	v.SetDefault("firebase.ref", "")
	v.SetDefault("firebase.credentials_file", "")

	v.SetDefault("secrets.backend", d.Secrets.Backend)
	v.SetDefault("secrets.path", d.Secrets.Path)
	v.SetDefault("secrets.project", "")
	v.SetDefault("secrets.credentials_file", "")

	v.SetDefault("web.address", d.Web.Address)
	v.SetDefault("web.network", d.Web.Network)
	v.SetDefault("webhook.verify_token", "")
	v.SetDefault("backfill.token", "")

	v.SetDefault("athlete.default", d.Export.DefaultAthleteID)
	v.SetDefault("export.tolerance_fine", d.Export.FineTolerance)
	v.SetDefault("export.tolerance_coarse", d.Export.CoarseTolerance)

	v.SetDefault("influxdb.url", d.InfluxDB.URL)
	v.SetDefault("influxdb.token", d.InfluxDB.Token)
	v.SetDefault("influxdb.org", d.InfluxDB.Org)
	v.SetDefault("influxdb.bucket", d.InfluxDB.Bucket)

	v.SetDefault("aws.bucket", AWS_BUCKETNAME)
}

// FromViper builds a validated Config from v.
func FromViper(v *viper.Viper) (*Config, error) {
	c := &Config{
		LogLevel: v.GetString("log.level"),
		Strava: &StravaConfig{
			BaseURL:         strings.TrimRight(v.GetString("strava.base_url"), "/"),
			TokenURL:        v.GetString("strava.token_url"),
			Timeout:         v.GetDuration("strava.timeout"),
			RateLimit:       v.GetFloat64("strava.rate_limit"),
			RateBurst:       v.GetInt("strava.rate_burst"),
			BreakerFailures: v.GetUint32("strava.breaker_failures"),
			BreakerTimeout:  v.GetDuration("strava.breaker_timeout"),
			PerPage:         v.GetInt("strava.per_page"),
			MaxPages:        v.GetInt("strava.max_pages"),
		},
		Store: &StoreConfig{
			Backend:                 v.GetString("store.backend"),
			Path:                    v.GetString("store.path"),
			FirebaseDatabaseURL:     v.GetString("firebase.database_url"),
			FirebaseRef:             v.GetString("firebase.ref"),
			FirebaseCredentialsFile: v.GetString("firebase.credentials_file"),
			ArchiveDir:              v.GetString("store.archive_dir"),
		},
		Secrets: &SecretsConfig{
			Backend:         v.GetString("secrets.backend"),
			Path:            v.GetString("secrets.path"),
			Project:         v.GetString("secrets.project"),
			CredentialsFile: v.GetString("secrets.credentials_file"),
		},
		Web: &WebDaemonConfig{
			ListenerConfig: ListenerConfig{
				Network: v.GetString("web.network"),
				Address: v.GetString("web.address"),
			},
			WebhookVerifyToken: v.GetString("webhook.verify_token"),
			BackfillToken:      v.GetString("backfill.token"),
		},
		Export: &ExportConfig{
			DefaultAthleteID: v.GetInt64("athlete.default"),
			FineTolerance:    v.GetFloat64("export.tolerance_fine"),
			CoarseTolerance:  v.GetFloat64("export.tolerance_coarse"),
		},
		InfluxDB: &InfluxDBConfig{
			URL:    v.GetString("influxdb.url"),
			Token:  v.GetString("influxdb.token"),
			Org:    v.GetString("influxdb.org"),
			Bucket: v.GetString("influxdb.bucket"),
		},
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendBolt:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s backend", BackendBolt)
		}
	case BackendFirebase:
		if c.Store.FirebaseDatabaseURL == "" {
			return fmt.Errorf("firebase.database_url is required for the %s backend", BackendFirebase)
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	switch c.Secrets.Backend {
	case BackendBolt:
		if c.Secrets.Path == "" {
			return fmt.Errorf("secrets.path is required for the %s backend", BackendBolt)
		}
	case BackendGSM:
		if c.Secrets.Project == "" {
			return fmt.Errorf("secrets.project is required for the %s backend", BackendGSM)
		}
	default:
		return fmt.Errorf("unknown secrets.backend %q", c.Secrets.Backend)
	}
	if c.Strava.BaseURL == "" || c.Strava.TokenURL == "" {
		return fmt.Errorf("strava.base_url and strava.token_url are required")
	}
	if c.Strava.PerPage <= 0 || c.Strava.MaxPages <= 0 {
		return fmt.Errorf("strava.per_page and strava.max_pages must be positive")
	}
	if c.Export.FineTolerance < 0 || c.Export.CoarseTolerance < 0 {
		return fmt.Errorf("export tolerances must not be negative")
	}
	return nil
}
