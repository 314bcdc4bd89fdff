package corpus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when no section has the requested id.
	ErrNotFound = errors.New("section not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config configures the corpus database.
type Config struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `koanf:"driver"`

	// DSN is the data source name. For sqlite a file path or ":memory:".
	DSN string `koanf:"dsn"`

	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`

	// AutoMigrate creates the tables on open. Default: true
	AutoMigrate *bool `koanf:"auto_migrate"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.DSN == "" && c.Driver == "sqlite" {
		c.DSN = "lexflow.db"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.AutoMigrate == nil {
		on := true
		c.AutoMigrate = &on
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	switch c.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unsupported driver %q (supported: sqlite, postgres)", ErrInvalidConfig, c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("%w: dsn required", ErrInvalidConfig)
	}
	return nil
}

// Store reads and writes sections through gorm.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to the configured database and migrates the schema.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		dialector = sqlite.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s corpus: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// A single connection keeps ":memory:" databases shared.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	s := &Store{db: db, logger: logger}
	if *cfg.AutoMigrate {
		if err := s.Migrate(); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}

	logger.Info("corpus store opened", zap.String("driver", cfg.Driver))
	return s, nil
}

// NewFromDB wraps an existing gorm handle.
func NewFromDB(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Migrate creates or updates the corpus tables.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Section{}, &meta{}); err != nil {
		return fmt.Errorf("migrating corpus schema: %w", err)
	}
	return nil
}

// Get returns the section with the given id.
func (s *Store) Get(ctx context.Context, id string) (Section, error) {
	var sec Section
	err := s.db.WithContext(ctx).First(&sec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Section{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Section{}, fmt.Errorf("loading section %s: %w", id, err)
	}
	return sec, nil
}

// GetMany returns the sections found for ids, keyed by id. Missing ids are
// absent from the map.
func (s *Store) GetMany(ctx context.Context, ids []string) (map[string]Section, error) {
	out := make(map[string]Section, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var secs []Section
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&secs).Error; err != nil {
		return nil, fmt.Errorf("loading sections: %w", err)
	}
	for _, sec := range secs {
		out[sec.ID] = sec
	}
	return out, nil
}

// Upsert inserts or replaces sections and bumps the corpus version in the
// same transaction. Returns the new version.
func (s *Store) Upsert(ctx context.Context, sections []Section) (int64, error) {
	if len(sections) == 0 {
		return s.Version(ctx)
	}

	var version int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&sections).Error; err != nil {
			return fmt.Errorf("upserting sections: %w", err)
		}
		v, err := bumpVersion(tx)
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("corpus updated",
		zap.Int("sections", len(sections)),
		zap.Int64("version", version),
	)
	return version, nil
}

func bumpVersion(tx *gorm.DB) (int64, error) {
	row := meta{Name: versionKey}
	if err := tx.FirstOrCreate(&row, meta{Name: versionKey}).Error; err != nil {
		return 0, fmt.Errorf("loading corpus version: %w", err)
	}
	if err := tx.Model(&meta{}).Where("name = ?", versionKey).
		Updates(map[string]any{"version": gorm.Expr("version + ?", 1), "updated_at": time.Now()}).Error; err != nil {
		return 0, fmt.Errorf("bumping corpus version: %w", err)
	}
	if err := tx.First(&row, "name = ?", versionKey).Error; err != nil {
		return 0, fmt.Errorf("reading corpus version: %w", err)
	}
	return row.Version, nil
}

// Version returns the current corpus version; 0 before the first ingest.
func (s *Store) Version(ctx context.Context) (int64, error) {
	var row meta
	err := s.db.WithContext(ctx).First(&row, "name = ?", versionKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading corpus version: %w", err)
	}
	return row.Version, nil
}

// Count returns the number of stored sections.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Section{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting sections: %w", err)
	}
	return n, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
