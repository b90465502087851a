package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TreeWu/mongo-perf/benchmark"
	"github.com/TreeWu/mongo-perf/config"
	"github.com/TreeWu/mongo-perf/connection"
	"github.com/TreeWu/mongo-perf/report"
	"github.com/TreeWu/mongo-perf/workloads"
)

func runCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark suite and print one result per workload",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(v, cmd.Flags(), runFlags)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.String("connection-string", "mongodb://localhost:27017", "MongoDB connection string")
	f.Int("iterations", 100000, "operations per workload, split between threads")
	f.Bool("multi-db", false, "give every thread its own database")
	f.String("username", "", "user name, requires --password")
	f.String("password", "", "password, requires --username")
	f.String("auth-database", "", "database to authenticate against")
	f.Bool("batch", false, "insert through the insert command")
	f.Bool("write-concern", false, "acknowledge every write; without it write errors inside timed workloads are not reported (fixture writes are always acknowledged)")
	f.String("testname", "", "category to run: overhead, insert, remove, update, query or command; all when empty")
	f.IntSlice("levels", benchmark.DefaultLevels, "thread counts, ascending")
	f.String("engine", config.EngineMongo, "mongo or memory")
	f.Duration("timeout", 0, "per operation timeout, 0 for none")
	f.String("format", config.FormatJSON, "json, csv or text")
	f.String("output", "", "output file, stdout when empty")
	f.String("label", "local", "run label in result stores")
	f.String("store-mongo", "", "also store results in this MongoDB")
	f.String("store-postgres", "", "also store results in this PostgreSQL DSN")
	f.StringSlice("store-elasticsearch", nil, "also index results in these Elasticsearch addresses")
	return cmd
}

// runFlags maps config keys to the run flags that override them.
var runFlags = map[string]string{
	"connection_string":             "connection-string",
	"iterations":                    "iterations",
	"multi_db":                      "multi-db",
	"username":                      "username",
	"password":                      "password",
	"auth_database":                 "auth-database",
	"batch":                         "batch",
	"write_concern":                 "write-concern",
	"testname":                      "testname",
	"levels":                        "levels",
	"engine":                        "engine",
	"timeout":                       "timeout",
	"output.format":                 "format",
	"output.file":                   "output",
	"store.label":                   "label",
	"store.mongo_uri":               "store-mongo",
	"store.postgres_dsn":            "store-postgres",
	"store.elasticsearch_addresses": "store-elasticsearch",
}

func run(ctx context.Context, cfg config.Config, stdout io.Writer) error {
	conn, info, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	ws, err := workloads.ForCategory(cfg.TestName)
	if err != nil {
		return &benchmark.ConfigError{Err: err}
	}

	out := stdout
	if cfg.Output.File != "" {
		file, err := os.Create(cfg.Output.File)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}
	sink, err := sinks(ctx, cfg, info, out)
	if err != nil {
		return err
	}

	suite := benchmark.NewSuite(conn,
		benchmark.WithLevels(cfg.Levels...),
		benchmark.WithSink(sink),
		benchmark.WithLogger(log.WithFields(log.Fields{"engine": cfg.Engine, "label": info.Label})),
	)
	suite.Register(ws...)

	log.WithFields(log.Fields{
		"workloads":  len(ws),
		"iterations": cfg.Iterations,
		"levels":     cfg.Levels,
		"multi_db":   cfg.MultiDB,
	}).Info("开始性能测试")
	results, runErr := suite.RunAll(ctx)
	closeErr := sink.Close(context.Background())
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return fmt.Errorf("close output: %w", closeErr)
	}
	log.WithField("results", len(results)).Info("性能测试完成")
	return nil
}

// open connects the facade and describes the server under test.
func open(ctx context.Context, cfg config.Config) (connection.Connection, report.RunInfo, error) {
	info := report.RunInfo{Label: cfg.Store.Label}
	switch cfg.Engine {
	case config.EngineMemory:
		info.Version = "memory"
		info.Platform = runtime.GOOS
		return connection.NewMemory(cfg.Memory()), info, nil
	default:
		m, err := connection.NewMongo(ctx, cfg.Mongo())
		if err != nil {
			return nil, info, err
		}
		info.Version, info.Platform = report.DescribeServer(ctx, m.Client(0))
		return m, info, nil
	}
}

func sinks(ctx context.Context, cfg config.Config, info report.RunInfo, out io.Writer) (report.Multi, error) {
	var multi report.Multi
	switch cfg.Output.Format {
	case config.FormatCSV:
		multi = append(multi, report.NewCSV(out, cfg.Levels))
	case config.FormatText:
		multi = append(multi, report.NewText(out))
	default:
		multi = append(multi, report.NewJSONLines(out))
	}

	fail := func(err error) (report.Multi, error) {
		_ = multi.Close(ctx)
		return nil, err
	}
	if uri := cfg.Store.MongoURI; uri != "" {
		store, err := report.OpenMongoStore(ctx, uri, info)
		if err != nil {
			return fail(err)
		}
		multi = append(multi, store)
	}
	if dsn := cfg.Store.PostgresDSN; dsn != "" {
		store, err := report.OpenPostgresStore(ctx, report.PostgresConfig{DSN: dsn, Table: cfg.Store.PostgresTable}, info)
		if err != nil {
			return fail(err)
		}
		multi = append(multi, store)
	}
	if addrs := cfg.Store.ElasticsearchAddresses; len(addrs) > 0 {
		store, err := report.NewElasticsearchStore(report.ElasticsearchConfig{
			Addresses: addrs,
			Index:     cfg.Store.ElasticsearchIndex,
		}, info)
		if err != nil {
			return fail(err)
		}
		multi = append(multi, store)
	}
	return multi, nil
}
