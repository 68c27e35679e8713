package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rjm263/tradekit/internal/config"
)

// Store 封装事件流水使用的 SQLite 连接池。
type Store struct {
	db *sql.DB
}

// NewSQLite 按配置打开 SQLite。文件模式下自动创建父目录并启用 WAL；
// 内存模式收紧为单连接，否则连接池里的每条连接各自是一份空库。
func NewSQLite(cfg config.DatabaseConfig) (*Store, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: 打开 SQLite 数据库失败: %w", err)
	}

	if cfg.InMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: 连接 SQLite 失败: %w", err)
	}

	return &Store{db: db}, nil
}

// buildDSN 把连接参数折叠进 DSN，省掉逐条 PRAGMA 往返。
func buildDSN(cfg config.DatabaseConfig) (string, error) {
	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")

	if cfg.InMemory {
		return "file::memory:?" + params.Encode(), nil
	}

	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("store: 创建目录 %q 失败: %w", dir, err)
		}
	}

	params.Set("_journal_mode", "WAL")
	params.Set("_synchronous", "NORMAL")
	return "file:" + cfg.Path + "?" + params.Encode(), nil
}

// DB 返回底层 *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
