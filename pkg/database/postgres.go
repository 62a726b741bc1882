package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"workspace-team-backend/pkg/database/migrations"
)

// pqUniqueViolation is the SQLSTATE for unique_violation.
const pqUniqueViolation = "23505"

// NewPostgresDatabase 创建PostgreSQL数据库实例，依次尝试多种连接策略
func NewPostgresDatabase(dsn string) (*SQLDatabase, error) {
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		addConnectionParams(dsn, "connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&connect_timeout=10"),
		dsn, // 最后尝试原始DSN
	}

	var lastErr error
	for i, strategy := range strategies {
		logCtx := logrus.WithField("strategy", i+1)

		db, err := sql.Open("postgres", strategy)
		if err != nil {
			logCtx.WithError(err).Warn("postgres strategy failed to open")
			lastErr = err
			continue
		}

		// 设置连接池参数，适合无服务器环境
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err != nil {
			logCtx.WithError(err).Warn("postgres strategy failed to ping")
			_ = db.Close()
			lastErr = err
			continue
		}

		store := &SQLDatabase{
			db:                db,
			builder:           sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
			txOpts:            &sql.TxOptions{Isolation: sql.LevelReadCommitted},
			isUniqueViolation: isPostgresUniqueViolation,
		}
		if err := ApplyMigrations(context.Background(), db, store.builder, migrations.FS); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}

		logCtx.Info("PostgreSQL connection established")
		return store, nil
	}

	return nil, fmt.Errorf("connect to postgres with all strategies: %w", lastErr)
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}
	// key=value 形式的 DSN 用空格拼接
	if !strings.Contains(dsn, "://") {
		return dsn + " " + strings.ReplaceAll(params, "&", " ")
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + params
}

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
