package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"instagram-webhook/config"
	"instagram-webhook/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Record is a row type the Datastore can insert. RecordID returns the
// generated primary key once the insert succeeded.
type Record interface {
	TableName() string
	RecordID() int64
}

// Query describes a parameterized select. Where uses "?" placeholders bound
// from Params; values are never interpolated into the statement.
type Query struct {
	Table   string
	Columns []string
	Where   string
	Params  []any
	OrderBy string
	Limit   int
}

// Datastore is the relational data-access boundary used by the event store
// and the reply flow.
type Datastore interface {
	Insert(ctx context.Context, rec Record) (int64, error)
	Select(ctx context.Context, dest any, q Query) error
	Update(ctx context.Context, table string, fields map[string]any, where string, params ...any) (int64, error)
	Delete(ctx context.Context, table string, where string, params ...any) (int64, error)
}

// AllModels lists every persisted record type, in migration order.
func AllModels() []any {
	return []any{
		&models.WebhookEventRecord{},
		&models.Comment{},
		&models.Message{},
	}
}

var knownTables = map[string]bool{
	models.TableWebhookEvents: true,
	models.TableComments:      true,
	models.TableMessages:      true,
}

var errEmptyWhere = errors.New("refusing to modify a table without a where clause")

// SQLStore implements Datastore on top of gorm.
type SQLStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewSQLStore(db *gorm.DB, logger *zap.Logger) *SQLStore {
	return &SQLStore{db: db, logger: logger}
}

// OpenPostgres connects to PostgreSQL, applies pool settings and, when
// enabled, migrates the schema.
func OpenPostgres(cfg config.DatabaseConfig, logger *zap.Logger) (*SQLStore, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %v", err)
	}

	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}

	logger.Info("Database connection established",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Bool("auto_migrate", cfg.AutoMigrate))

	return NewSQLStore(db, logger), nil
}

// Migrate creates or updates the three webhook tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("failed to auto-migrate models: %v", err)
	}
	return nil
}

func (s *SQLStore) Insert(ctx context.Context, rec Record) (int64, error) {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", rec.TableName(), err)
	}
	return rec.RecordID(), nil
}

func (s *SQLStore) Select(ctx context.Context, dest any, q Query) error {
	if !knownTables[q.Table] {
		return fmt.Errorf("unknown table %q", q.Table)
	}

	tx := s.db.WithContext(ctx).Table(q.Table)
	if len(q.Columns) > 0 {
		tx = tx.Select(q.Columns)
	}
	if q.Where != "" {
		tx = tx.Where(q.Where, q.Params...)
	}
	if q.OrderBy != "" {
		tx = tx.Order(q.OrderBy)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	if err := tx.Find(dest).Error; err != nil {
		return fmt.Errorf("failed to select from %s: %w", q.Table, err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, table string, fields map[string]any, where string, params ...any) (int64, error) {
	if !knownTables[table] {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	if where == "" {
		return 0, errEmptyWhere
	}

	tx := s.db.WithContext(ctx).Table(table).Where(where, params...).Updates(fields)
	if tx.Error != nil {
		return 0, fmt.Errorf("failed to update %s: %w", table, tx.Error)
	}
	return tx.RowsAffected, nil
}

func (s *SQLStore) Delete(ctx context.Context, table string, where string, params ...any) (int64, error) {
	if !knownTables[table] {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	if where == "" {
		return 0, errEmptyWhere
	}

	// table is checked against knownTables above
	tx := s.db.WithContext(ctx).Exec("DELETE FROM "+table+" WHERE "+where, params...)
	if tx.Error != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, tx.Error)
	}
	return tx.RowsAffected, nil
}

// Ping checks the underlying connection, used by the health endpoint.
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
