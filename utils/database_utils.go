// database_utils should be the canonical place to put shared DB utils.
// It should not include:
// 1. Any util that doesn't manipulate DB
// 2. Any util that contains business logic
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Luismorlan/community/model"
	Logger "github.com/Luismorlan/community/utils/log"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite"

	TestDBPrefix         = "testonlydb_"
	TestDBNameCharLength = 8
)

// GormTransaction is the callback function used during db.Transaction in Gorm.
type GormTransaction func(tx *gorm.DB) error

// DBConfig holds database configuration
type DBConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Only used by the sqlite driver.
	Path string
}

// LoadDBConfig loads database configuration from environment variables
func LoadDBConfig() *DBConfig {
	return &DBConfig{
		Driver:   getEnv("DB_DRIVER", DriverPostgres),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: os.Getenv("DB_PASS"),
		DBName:   getEnv("DB_NAME", "community"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
		Path:     getEnv("DB_PATH", "community.sqlite"),
	}
}

// GetDBConnection get a connection to the database specified by env
func GetDBConnection() (*gorm.DB, error) {
	return GetCustomizedConnection(LoadDBConfig())
}

// GetCustomizedConnection connect to any db
func GetCustomizedConnection(config *DBConfig) (*gorm.DB, error) {
	switch config.Driver {
	case DriverPostgres:
		dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
			config.Host, config.Port, config.User, config.DBName, config.SSLMode)
		// Only add password if it's not empty
		if config.Password != "" {
			dsn += " password=" + config.Password
		}
		return getDB(postgres.Open(dsn))
	case DriverSqlite:
		return getDB(gormsqlite.Open(config.Path))
	default:
		return nil, fmt.Errorf("unknown db driver: %s", config.Driver)
	}
}

// CloseDB closes the underlying connection pool of db.
func CloseDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create a temp DB for testing, note that this function should only be called
// in a testing environment with test state manager testing.T
// It is guaranteed that this database will be dropped after each test case,
// user will not need to drop the database explicitly.
func CreateTempDB(t *testing.T) (*gorm.DB, string) {
	t.Helper()
	dbName := randomTestDBName()
	db, err := GetCustomizedConnection(&DBConfig{
		Driver: DriverSqlite,
		// Foreign keys are enforced so integrity violations surface the same way
		// they would on postgres.
		Path: filepath.Join(t.TempDir(), dbName+".sqlite") + "?_pragma=foreign_keys(1)",
	})
	if err != nil {
		t.Fatalf("fail to create temp DB with name: %s, %v", dbName, err)
	}
	if err := DatabaseSetupAndMigration(db); err != nil {
		t.Fatalf("fail to migrate temp DB: %v", err)
	}
	t.Cleanup(func() {
		// Proactively clean up the DB connections instead of deferring to GC.
		CloseDB(db)
	})

	return db, dbName
}

func randomTestDBName() string {
	return TestDBPrefix + RandomAlphabetString(TestDBNameCharLength)
}

func getDB(dialector gorm.Dialector) (db *gorm.DB, err error) {
	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// Map driver specific constraint errors to gorm.ErrDuplicatedKey and
		// friends, store.BulkCreate relies on it.
		TranslateError: true,
	})
}

// DatabaseSetupAndMigration migrates every model of the identity graph.
func DatabaseSetupAndMigration(db *gorm.DB) error {
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		return errors.Wrap(err, "fail to migrate database")
	}
	Logger.Log.Debug("database migrations completed")
	return nil
}

// JSONTextExpr returns a SQL expression that extracts the value found at path
// inside the json column as text. On postgres the value keeps its json
// encoding, so a string comes back wrapped in literal double quotes.
func JSONTextExpr(db *gorm.DB, column string, path ...string) string {
	if db.Dialector.Name() == DriverPostgres {
		return fmt.Sprintf("(%s #> '{%s}')::text", column, strings.Join(path, ","))
	}
	return fmt.Sprintf("json_extract(%s, '$.%s')", column, strings.Join(path, "."))
}

// JSONValueExpr is JSONTextExpr without the json quoting on postgres, string
// values come back as plain text on both dialects.
func JSONValueExpr(db *gorm.DB, column string, path ...string) string {
	if db.Dialector.Name() == DriverPostgres {
		return fmt.Sprintf("(%s #>> '{%s}')", column, strings.Join(path, ","))
	}
	return JSONTextExpr(db, column, path...)
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
