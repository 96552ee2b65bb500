package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
)

type Config struct {
	AppPort string

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	RedisAddr string
	RedisDB   int

	IdempTTLSecs int

	SettlementBaseURL     string
	SettlementAssetRef    string
	SettlementTimeoutSecs int

	OutboxSweepSecs  int
	TrustRefreshSecs int
	ReconcileEpsilon float64
	TransferMaxTries int
	StaleSendingMins int
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getint(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func Load() *Config {
	c := &Config{
		AppPort:   getenv("APP_PORT", "8080"),
		MySQLHost: getenv("MYSQL_HOST", "mysql"),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "coopfund"),
		MySQLUser: getenv("MYSQL_USER", "coopfund"),
		MySQLPass: getenv("MYSQL_PASS", "coopfund"),

		RedisAddr:    getenv("REDIS_ADDR", "redis:6379"),
		IdempTTLSecs: getint("IDEMPOTENCY_TTL_SECONDS", 300),

		SettlementBaseURL:     getenv("SETTLEMENT_BASE_URL", "http://settlement:9090"),
		SettlementAssetRef:    getenv("SETTLEMENT_ASSET_REF", "IDR"),
		SettlementTimeoutSecs: getint("SETTLEMENT_TIMEOUT_SECONDS", 10),

		OutboxSweepSecs:  getint("OUTBOX_SWEEP_SECONDS", 60),
		TrustRefreshSecs: getint("TRUST_REFRESH_SECONDS", 3600),
		TransferMaxTries: getint("TRANSFER_MAX_ATTEMPTS", 5),
		StaleSendingMins: getint("STALE_SENDING_MINUTES", 15),
		ReconcileEpsilon: 0.01,
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RedisDB = n
		}
	}
	if v := os.Getenv("RECONCILE_EPSILON"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.ReconcileEpsilon = f
		}
	}
	return c
}

func (c *Config) Validate() error {
	if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
		return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
	}
	// ensure port is valid
	if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
		return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if c.SettlementBaseURL == "" {
		return errors.New("missing SETTLEMENT_BASE_URL")
	}
	if c.SettlementTimeoutSecs <= 0 {
		return errors.New("SETTLEMENT_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// multiStatements=true is handy for migrations; parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}
