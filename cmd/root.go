package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/rotblauer/stravad/api"
	"github.com/rotblauer/stravad/catdb/store"
	"github.com/rotblauer/stravad/params"
	"github.com/rotblauer/stravad/secrets"
	"github.com/rotblauer/stravad/strava"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stravad",
	Short: "Sync Strava activities and export them as maps",
	Long: `stravad receives Strava webhook events and backfills athlete history,
storing normalized activities (route as WKT) in bbolt or Firebase.

Stored activities export as polyline JSON, GeoJSON, or a zipped shapefile.

Configuration is read from --config (default $HOME/.stravad.yaml),
then STRAVAD_ environment variables, eg. STRAVAD_STORE_BACKEND=firebase.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pFlags := rootCmd.PersistentFlags()
	pFlags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.stravad.yaml)")
	pFlags.String("log-level", "info", "log level (debug, info, warn, error)")
	pFlags.String("store", params.BackendBolt, "record store backend (bolt, firebase)")
	pFlags.String("secrets", params.BackendBolt, "secret store backend (bolt, gsm)")

	bindFlag(pFlags, "log.level", "log-level")
	bindFlag(pFlags, "store.backend", "store")
	bindFlag(pFlags, "secrets.backend", "secrets")
}

// bindFlag makes the flag override the viper config key when set.
func bindFlag(fs *pflag.FlagSet, key, flag string) {
	if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
		panic(err)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	params.SetViperDefaults(viper.GetViper())
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			log.Fatalln(err)
		}
		viper.SetConfigFile(filepath.Join(home, ".stravad.yaml"))
	}
	if err := viper.ReadInConfig(); err == nil {
		slog.Info("Using config file", "file", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		log.Fatalln(err)
	}
}

func setDefaultSlog(cmd *cobra.Command, args []string) {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		log.Fatalln("invalid --log-level:", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func mustConfig() *params.Config {
	config, err := params.FromViper(viper.GetViper())
	if err != nil {
		log.Fatalln(err)
	}
	return config
}

// app holds the opened backends shared by the commands.
type app struct {
	config   *params.Config
	store    store.Store
	secrets  secrets.Store
	client   *strava.Client
	rotator  *secrets.Rotator
	ingester *api.Ingester
}

// openApp opens the configured stores and wires the Strava client, rotator and ingester.
func openApp(ctx context.Context, config *params.Config) (*app, error) {
	s, err := store.Open(ctx, config.Store)
	if err != nil {
		return nil, err
	}
	sec, err := secrets.Open(ctx, config.Secrets)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	client := strava.NewClient(config.Strava)
	rotator := secrets.NewRotator(sec, client)
	return &app{
		config:   config,
		store:    s,
		secrets:  sec,
		client:   client,
		rotator:  rotator,
		ingester: api.NewIngester(client, rotator, s, config),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("Failed to close store", "error", err)
	}
	if err := a.secrets.Close(); err != nil {
		slog.Error("Failed to close secrets", "error", err)
	}
}
