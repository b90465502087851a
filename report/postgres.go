package report

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/TreeWu/mongo-perf/benchmark"
)

// pgBatcher is the part of *pgxpool.Pool the store uses.
type pgBatcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// PostgresStore writes one row per result and level.
type PostgresStore struct {
	pool  pgBatcher
	table string
	info  RunInfo
}

// PostgresConfig 配置
type PostgresConfig struct {
	DSN      string
	Table    string
	MaxConns int32
}

func OpenPostgresStore(ctx context.Context, cfg PostgresConfig, info RunInfo) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("解析 PostgreSQL 配置失败: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 PostgreSQL 连接池失败: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL 连接测试失败: %w", err)
	}
	s, err := NewPostgresStore(ctx, pool, cfg.Table, info)
	if err != nil {
		pool.Close()
		return nil, err
	}
	log.WithField("table", s.table).Info("PostgreSQL 初始化成功")
	return s, nil
}

// NewPostgresStore creates the results table when it is missing.
func NewPostgresStore(ctx context.Context, pool pgBatcher, table string, info RunInfo) (*PostgresStore, error) {
	if table == "" {
		table = "bench_results"
	}
	s := &PostgresStore{pool: pool, table: table, info: info.withDefaults()}

	b := &pgx.Batch{}
	b.Queue(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			label TEXT NOT NULL,
			version TEXT NOT NULL,
			platform TEXT NOT NULL,
			run_date DATE NOT NULL,
			name TEXT NOT NULL,
			threads INTEGER NOT NULL,
			time DOUBLE PRECISION NOT NULL,
			ops_per_sec DOUBLE PRECISION NOT NULL,
			speedup DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (label, run_date, name, threads)
		)`, s.ident()))
	b.Queue(fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_name ON %s(name)", table, s.ident()))
	if err := pool.SendBatch(ctx, b).Close(); err != nil {
		return nil, fmt.Errorf("创建表失败: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

// Write upserts every level of r in one round trip.
func (s *PostgresStore) Write(ctx context.Context, r benchmark.Result) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (label, version, platform, run_date, name, threads, time, ops_per_sec, speedup)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (label, run_date, name, threads) DO UPDATE
		SET version = EXCLUDED.version, platform = EXCLUDED.platform, time = EXCLUDED.time,
			ops_per_sec = EXCLUDED.ops_per_sec, speedup = EXCLUDED.speedup`, s.ident())

	b := &pgx.Batch{}
	for _, l := range r.Levels {
		b.Queue(query, s.info.Label, s.info.Version, s.info.Platform, s.info.RunDate,
			r.Name, l.Threads, l.Time, l.OpsPerSec, l.Speedup)
	}
	if err := s.pool.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("store %s: %w", r.Name, err)
	}
	return nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}
