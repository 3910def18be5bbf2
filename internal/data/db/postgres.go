package db

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

// PoolProfile sizes one connection pool. StatementTimeout and ConnectTimeout are
// sent to Postgres as connection runtime parameters.
type PoolProfile struct {
	Name             string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	StatementTimeout time.Duration
	ConnectTimeout   time.Duration
}

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	// DSN overrides the discrete fields when set.
	DSN string

	Interactive PoolProfile
	Background  PoolProfile
}

func DefaultInteractiveProfile() PoolProfile {
	return PoolProfile{
		Name:             "interactive",
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  30 * time.Minute,
		ConnMaxIdleTime:  5 * time.Minute,
		StatementTimeout: 30 * time.Second,
		ConnectTimeout:   5 * time.Second,
	}
}

func DefaultBackgroundProfile() PoolProfile {
	return PoolProfile{
		Name:             "background",
		MaxOpenConns:     20,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnMaxIdleTime:  10 * time.Minute,
		StatementTimeout: 30 * time.Minute,
		ConnectTimeout:   30 * time.Second,
	}
}

// Pools holds the two connection pools. Short UI-facing queries go to Interactive;
// enrichment, transcription and vetting go to Background so neither starves the other.
type Pools struct {
	Interactive *gorm.DB
	Background  *gorm.DB
	log         *logger.Logger
}

func NewPools(cfg Config, logg *logger.Logger) (*Pools, error) {
	serviceLog := logg.With("service", "PostgresPools")

	interactive, err := open(cfg, cfg.Interactive)
	if err != nil {
		return nil, err
	}
	background, err := open(cfg, cfg.Background)
	if err != nil {
		closeDB(interactive)
		return nil, err
	}

	if err := background.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		closeDB(interactive)
		closeDB(background)
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	serviceLog.Info("Postgres pools ready",
		"interactive_max_open", cfg.Interactive.MaxOpenConns,
		"interactive_statement_timeout", cfg.Interactive.StatementTimeout.String(),
		"background_max_open", cfg.Background.MaxOpenConns,
		"background_statement_timeout", cfg.Background.StatementTimeout.String(),
	)
	return &Pools{Interactive: interactive, Background: background, log: serviceLog}, nil
}

// Close tears down both pools; safe to call on a partially built value.
func (p *Pools) Close() {
	if p == nil {
		return
	}
	closeDB(p.Interactive)
	closeDB(p.Background)
	if p.log != nil {
		p.log.Info("Postgres pools closed")
	}
}

func open(cfg Config, profile PoolProfile) (*gorm.DB, error) {
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(BuildDSN(cfg, profile)), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres (%s pool): %w", profile.Name, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle (%s pool): %w", profile.Name, err)
	}
	if profile.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(profile.MaxOpenConns)
	}
	if profile.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(profile.MaxIdleConns)
	}
	if profile.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(profile.ConnMaxLifetime)
	}
	if profile.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(profile.ConnMaxIdleTime)
	}
	return db, nil
}

// BuildDSN renders a pgx URL DSN with the profile's timeouts as runtime params.
func BuildDSN(cfg Config, profile PoolProfile) string {
	var u *url.URL
	if cfg.DSN != "" {
		parsed, err := url.Parse(cfg.DSN)
		if err == nil {
			u = parsed
		}
	}
	if u == nil {
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u = &url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     cfg.Host + ":" + cfg.Port,
			Path:     "/" + cfg.Name,
			RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
		}
	}
	q := u.Query()
	if profile.StatementTimeout > 0 {
		q.Set("statement_timeout", strconv.FormatInt(profile.StatementTimeout.Milliseconds(), 10))
	}
	if profile.ConnectTimeout > 0 {
		secs := int(profile.ConnectTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	if profile.Name != "" {
		q.Set("application_name", "podreach-"+profile.Name)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func closeDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
