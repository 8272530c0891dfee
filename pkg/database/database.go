package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/docbook/docbook/internal/config"
	"github.com/docbook/docbook/internal/domain/appointment"
	"github.com/docbook/docbook/internal/domain/availability"
	"github.com/docbook/docbook/pkg/metrics"
)

func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		PrepareStmt:                              true,
		DisableForeignKeyConstraintWhenMigrating: false,
		DisableAutomaticPing:                     false,
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: false,
	}), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

const queryStartKey = "metrics:query_start"

// Instrument registers callbacks that time every query by operation and table.
func Instrument(db *gorm.DB, m *metrics.Collector) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(queryStartKey, time.Now())
	}
	after := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(queryStartKey)
			if !ok {
				return
			}
			start, ok := v.(time.Time)
			if !ok {
				return
			}
			m.DBQueryDuration.WithLabelValues(op, tx.Statement.Table).Observe(time.Since(start).Seconds())
		}
	}

	cb := db.Callback()
	hooks := []struct {
		op       string
		before   func(string, func(*gorm.DB)) error
		after    func(string, func(*gorm.DB)) error
		hookName string
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register, "create"},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register, "query"},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register, "update"},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register, "delete"},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register, "raw"},
	}
	for _, h := range hooks {
		if err := h.before("metrics:before_"+h.hookName, before); err != nil {
			return fmt.Errorf("registering before callback for %s: %w", h.op, err)
		}
		if err := h.after("metrics:after_"+h.hookName, after(h.op)); err != nil {
			return fmt.Errorf("registering after callback for %s: %w", h.op, err)
		}
	}
	return nil
}

// ReportPoolStats samples the connection pool gauge until ctx is cancelled.
func ReportPoolStats(ctx context.Context, db *gorm.DB, m *metrics.Collector) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.DBConnections.Set(float64(sqlDB.Stats().OpenConnections))
		}
	}
}

func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running database migrations")
	start := time.Now()

	if err := db.Exec("CREATE SCHEMA IF NOT EXISTS scheduling").Error; err != nil {
		return fmt.Errorf("creating schema scheduling: %w", err)
	}

	models := []any{
		&availability.Rule{},
		&appointment.Appointment{},
		&appointment.Event{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}

	log.Info("migrations completed", zap.Duration("duration", time.Since(start)))
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []struct {
		name  string
		query string
	}{
		// Overlap checks scan only live appointments; reserved and scheduled
		// rows are a tiny fraction of the table once history accumulates.
		{
			name:  "idx_appointments_doctor_live",
			query: `CREATE INDEX IF NOT EXISTS idx_appointments_doctor_live ON scheduling.appointments (doctor_id, starts_at, duration_mins) WHERE deleted_at IS NULL AND status IN ('reserved', 'scheduled')`,
		},
		// The reaper polls for expired holds; keep that scan off the main index.
		{
			name:  "idx_appointments_expired_holds",
			query: `CREATE INDEX IF NOT EXISTS idx_appointments_expired_holds ON scheduling.appointments (reservation_expires_at) WHERE deleted_at IS NULL AND status = 'reserved'`,
		},
		{
			name:  "idx_availability_rules_doctor",
			query: `CREATE INDEX IF NOT EXISTS idx_availability_rules_doctor ON scheduling.availability_rules (doctor_id, recurrence_kind) WHERE deleted_at IS NULL`,
		},
		{
			name:  "idx_appointment_events_appointment",
			query: `CREATE INDEX IF NOT EXISTS idx_appointment_events_appointment ON scheduling.appointment_events (appointment_id, occurred_at)`,
		},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.query).Error; err != nil {
			return fmt.Errorf("creating index %s: %w", idx.name, err)
		}
	}

	return nil
}
