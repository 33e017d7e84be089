package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jadedragon942/dbharbor/dialect"
	"github.com/jadedragon942/dbharbor/explorer"
	"github.com/jadedragon942/dbharbor/logger"
	"github.com/jadedragon942/dbharbor/metrics"
	"github.com/jadedragon942/dbharbor/query"
	"github.com/jadedragon942/dbharbor/session"
)

var (
	Version string
	Commit  string

	RootCmd = &cobra.Command{
		Use:   "dbharbor",
		Short: "dbharbor inspects and queries MySQL, PostgreSQL and SQLite databases",
		Long: "Browse schema metadata (tables, views, routines, triggers, foreign keys), run " +
			"statements inside guarded transactions, export results to CSV, JSON, Excel, XML " +
			"or HTML and check referential integrity.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.SetLogLevel(Config.Log.Level, Config.Log.Format)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if showMetrics {
				printMetrics(cmd.OutOrStdout(), registry)
			}
		},
	}
	cfgFile     string
	showMetrics bool
	Config      = NewConfig()
	registry    = prometheus.NewRegistry()
	collectors  = metrics.New(registry)
)

func Execute() error {
	return RootCmd.Execute()
}

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				Commit = setting.Value
			}
		}
	}
	RootCmd.Version = strings.TrimSpace(Version + " " + Commit)

	cobra.OnInitialize(initConfig)

	flags := RootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file")
	flags.BoolVar(&showMetrics, "metrics", false, "print collected metrics after the command")
	flags.String("log-format", "text", "logging format [text|json]")
	flags.String("log-level", zerolog.LevelInfoValue,
		fmt.Sprintf("logging level %s|%s|%s|%s",
			zerolog.LevelDebugValue, zerolog.LevelInfoValue, zerolog.LevelWarnValue, zerolog.LevelErrorValue))
	flags.StringP("engine", "e", "", "database engine [mysql|postgres|sqlite]")
	flags.StringP("host", "H", "", "server host, or the database file for sqlite")
	flags.IntP("port", "P", 0, "server port (engine default when 0)")
	flags.StringP("user", "u", "", "user name")
	flags.String("password", "", "password (prefer DBHARBOR_CONNECTION_PASSWORD)")
	flags.StringP("database", "d", "", "database to select after connecting")
	flags.Duration("statement-timeout", 0, "server side statement timeout")
	flags.Int("max-rows", 10000, "rows materialized per result, 0 for no limit")

	for key, flag := range map[string]string{
		"log.format":                   "log-format",
		"log.level":                    "log-level",
		"connection.engine":            "engine",
		"connection.host":              "host",
		"connection.port":              "port",
		"connection.user":              "user",
		"connection.password":          "password",
		"connection.database":          "database",
		"connection.statement_timeout": "statement-timeout",
		"query.max_rows":               "max-rows",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			log.Fatal().Err(err).Msg("")
		}
	}
	// keys without a flag still need a default so that AutomaticEnv sees them
	defaults := NewConfig()
	for key, value := range map[string]any{
		"connection.params":          map[string]string{},
		"connection.max_open_conns":  defaults.Connection.MaxOpenConns,
		"connection.connect_timeout": defaults.Connection.ConnectTimeout,
		"export.dir":                 defaults.Export.Dir,
		"export.s3_url":              defaults.Export.S3URL,
		"export.gzip":                defaults.Export.Gzip,
		"export.pgzip":               defaults.Export.Pgzip,
		"export.max_rows":            defaults.Export.MaxRows,
		"export.max_bytes":           "0",
	} {
		viper.SetDefault(key, value)
	}

	RootCmd.AddCommand(databasesCmd, tablesCmd, describeCmd, viewsCmd, routinesCmd, triggersCmd, summaryCmd, serverCmd, statsCmd)
	RootCmd.AddCommand(queryCmd, callCmd, explainCmd, browseCmd)
	RootCmd.AddCommand(exportCmd, exportAllCmd)
	RootCmd.AddCommand(relationshipsCmd, integrityCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			log.Fatal().Err(err).Msg("error reading from config file")
		}
	}

	viper.SetEnvPrefix("DBHARBOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	decoderCfg := func(cfg *mapstructure.DecoderConfig) {
		cfg.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			byteSizeHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}

	if err := viper.Unmarshal(Config, decoderCfg); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

// connect opens an explorer from the loaded config. The returned context
// is cancelled on interrupt.
func connect(cmd *cobra.Command) (context.Context, *explorer.Explorer, func(), error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)

	engine, err := dialect.ParseKind(Config.Connection.Engine)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	c := Config.Connection
	ex, err := explorer.Open(ctx, session.Config{
		Engine:           engine,
		Host:             c.Host,
		Port:             c.Port,
		User:             c.User,
		Password:         c.Password,
		Database:         c.Database,
		Params:           c.Params,
		MaxOpenConns:     c.MaxOpenConns,
		ConnectTimeout:   c.ConnectTimeout,
		StatementTimeout: c.StatementTimeout,
	})
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	ex.WithMetrics(collectors).WithGateway(query.New(
		query.WithMetrics(collectors),
		query.WithMaxRows(Config.Query.MaxRows),
		query.WithStateHook(func(statement string, from, to query.State) {
			log.Trace().Str("from", from.String()).Str("to", to.String()).Msg("statement state")
		}),
	))

	cleanup := func() {
		if err := ex.Close(); err != nil {
			log.Warn().Err(err).Msg("disconnect")
		}
		stop()
	}
	return ctx, ex, cleanup, nil
}
