package database

import (
	"context"
	"database/sql"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"github.com/neighborhood/facility-booking/internal/config"
)

// Open connects to MySQL and verifies the connection, retrying the first
// ping with exponential backoff for up to cfg.ConnectTimeout so the service
// can start alongside its database.
func Open(cfg config.DBConfig) (*sql.DB, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Pass
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
	mc.DBName = cfg.Name
	// parseTime=true -> DATE/DATETIME -> time.Time | loc=UTC keeps times consistent
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"time_zone": "'+00:00'"}

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.ConnectTimeout
	err = backoff.RetryNotify(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return db.PingContext(ctx)
	}, bo, func(err error, next time.Duration) {
		log.Warn().Err(err).Dur("retry_in", next).Str("addr", mc.Addr).Msg("mysql ping failed")
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info().Str("addr", mc.Addr).Str("db", cfg.Name).Msg("connected to mysql")
	return db, nil
}
