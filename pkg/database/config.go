// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"fmt"
	"net/url"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	dataTablePrefix = "t_"

	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// SourceConfig 单个数据源（主库或只读副本）
type SourceConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// MySQLConfig represents MySQL data source configuration
// Replicas 为空时不启用读写分离
type MySQLConfig struct {
	SourceConfig `mapstructure:",squash"`
	Replicas     []SourceConfig `mapstructure:"replicas"`
}

// PostgresConfig represents PostgreSQL data source configuration
type PostgresConfig struct {
	SourceConfig `mapstructure:",squash"`
	SSLMode      string         `mapstructure:"sslMode"`
	Replicas     []SourceConfig `mapstructure:"replicas"`
}

// SQLiteConfig 本地开发和测试使用
type SQLiteConfig struct {
	// DSN 例如 file:flagforge.db 或 file::memory:?cache=shared
	DSN string `mapstructure:"dsn"`
}

// Database represents the database configuration with common settings and data sources
type Database struct {
	// Driver mysql | postgres | sqlite
	Driver string `mapstructure:"driver"`
	// Output 将 SQL 输出到日志
	Output        bool `mapstructure:"output"`
	SlowThreshold int  `mapstructure:"slowThreshold"` // 毫秒
	MaxOpenConns  int  `mapstructure:"maxOpenConns"`
	MaxIdleConns  int  `mapstructure:"maxIdleConns"`
	MaxLifetime   int  `mapstructure:"maxLifeTime"` // 秒
	MaxIdleTime   int  `mapstructure:"maxIdleTime"` // 秒
	// TraceQuery 在 span 中记录 SQL
	TraceQuery bool `mapstructure:"traceQuery"`

	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

func (d Database) connMaxLifetime() time.Duration {
	if d.MaxLifetime > 0 {
		return time.Duration(d.MaxLifetime) * time.Second
	}
	return 5 * time.Minute
}

func (d Database) connMaxIdleTime() time.Duration {
	if d.MaxIdleTime > 0 {
		return time.Duration(d.MaxIdleTime) * time.Second
	}
	return time.Minute
}

func (d Database) slowThreshold() time.Duration {
	if d.SlowThreshold > 0 {
		return time.Duration(d.SlowThreshold) * time.Millisecond
	}
	return 200 * time.Millisecond
}

func buildMySQLDSN(c SourceConfig) string {
	port := c.Port
	if port == "" {
		port = "3306"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, port, c.DBName)
}

func buildPostgresDSN(c SourceConfig, sslMode string) string {
	port := c.Port
	if port == "" {
		port = "5432"
	}
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + port,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode) + "&TimeZone=UTC",
	}
	return u.String()
}

func validateSource(c SourceConfig) error {
	if c.Host == "" || c.User == "" || c.DBName == "" {
		return fmt.Errorf("incomplete database source config: host, user, and dbname are required")
	}
	return nil
}

// dialectors 返回主库与只读副本的 Dialector
func (d Database) dialectors() (gorm.Dialector, []gorm.Dialector, error) {
	switch d.Driver {
	case DriverMySQL, "":
		if err := validateSource(d.MySQL.SourceConfig); err != nil {
			return nil, nil, err
		}
		replicas := make([]gorm.Dialector, 0, len(d.MySQL.Replicas))
		for _, r := range d.MySQL.Replicas {
			if err := validateSource(r); err != nil {
				return nil, nil, err
			}
			replicas = append(replicas, mysql.Open(buildMySQLDSN(r)))
		}
		return mysql.Open(buildMySQLDSN(d.MySQL.SourceConfig)), replicas, nil
	case DriverPostgres:
		if err := validateSource(d.Postgres.SourceConfig); err != nil {
			return nil, nil, err
		}
		replicas := make([]gorm.Dialector, 0, len(d.Postgres.Replicas))
		for _, r := range d.Postgres.Replicas {
			if err := validateSource(r); err != nil {
				return nil, nil, err
			}
			replicas = append(replicas, postgres.Open(buildPostgresDSN(r, d.Postgres.SSLMode)))
		}
		return postgres.Open(buildPostgresDSN(d.Postgres.SourceConfig, d.Postgres.SSLMode)), replicas, nil
	case DriverSQLite:
		dsn := d.SQLite.DSN
		if dsn == "" {
			dsn = "file:flagforge.db?_busy_timeout=5000"
		}
		return sqlite.Open(dsn), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", d.Driver)
	}
}
