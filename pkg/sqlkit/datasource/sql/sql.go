package sql

import (
	"fmt"
	"strconv"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	// Database drivers registered for the supported dialects.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/bnjsx/sqlkit/pkg/sqlkit/config"
	"github.com/bnjsx/sqlkit/pkg/sqlkit/datasource"
)

const (
	defaultDBPort     = 3306
	connRetryAttempts = 5
	connRetryInterval = 2 * time.Second
)

// DBConfig holds the connection settings read from configuration.
type DBConfig struct {
	Dialect     string
	HostName    string
	User        string
	Password    string
	Port        string
	Database    string
	MaxIdleConn int
	MaxOpenConn int
}

var errUnsupportedDialect = errors.New("unsupported dialect: supported dialects are - mysql, postgres, sqlite")

// NewSQL opens an instrumented database handle for the dialect named in the
// configuration, pings it with bounded retries, and returns the wrapped DB.
//
// Configuration keys: DB_DIALECT, DB_HOST, DB_USER, DB_PASSWORD, DB_PORT,
// DB_NAME, DB_MAX_IDLE_CONNECTION, DB_MAX_OPEN_CONNECTION. For sqlite, DB_NAME
// is the database file path and the host settings are ignored.
func NewSQL(configs config.Config, logger datasource.Logger, metrics Metrics) (*DB, error) {
	dbConfig := getDBConfig(configs)

	if dbConfig.Dialect == "" {
		return nil, errors.Wrap(errUnsupportedDialect, "DB_DIALECT is not set")
	}

	dsn, err := getDBConnectionString(dbConfig)
	if err != nil {
		return nil, err
	}

	logger.Debugf("connecting with '%s' user to '%s' database at '%s:%s'", dbConfig.User,
		dbConfig.Database, dbConfig.HostName, dbConfig.Port)

	db, err := otelsql.Open(dbConfig.Dialect, dsn,
		otelsql.WithAttributes(attribute.String("db.system", dbConfig.Dialect)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if _, err := otelsql.RegisterDBStatsMetrics(db,
		otelsql.WithAttributes(attribute.String("db.system", dbConfig.Dialect))); err != nil {
		logger.Errorf("failed to register database stats metrics: %v", err)
	}

	db.SetMaxIdleConns(dbConfig.MaxIdleConn)
	db.SetMaxOpenConns(dbConfig.MaxOpenConn)

	wrapped := &DB{DB: db, logger: logger, config: dbConfig, metrics: metrics}

	for i := 1; ; i++ {
		if err = wrapped.DB.Ping(); err == nil {
			logger.Logf("connected to '%s' database at %s:%s", dbConfig.Database, dbConfig.HostName, dbConfig.Port)
			break
		}

		if i == connRetryAttempts {
			_ = wrapped.Close()
			return nil, errors.Wrapf(err, "could not connect to database after %d attempts", i)
		}

		logger.Errorf("could not connect with '%s' user to database '%s:%s'  error: %v",
			dbConfig.User, dbConfig.HostName, dbConfig.Port, err)
		time.Sleep(connRetryInterval)
	}

	return wrapped, nil
}

func getDBConfig(configs config.Config) *DBConfig {
	maxIdleConn, _ := strconv.Atoi(configs.GetOrDefault("DB_MAX_IDLE_CONNECTION", "2"))
	maxOpenConn, _ := strconv.Atoi(configs.GetOrDefault("DB_MAX_OPEN_CONNECTION", "0"))

	return &DBConfig{
		Dialect:     normalizeDialectName(configs.Get("DB_DIALECT")),
		HostName:    configs.Get("DB_HOST"),
		User:        configs.Get("DB_USER"),
		Password:    configs.Get("DB_PASSWORD"),
		Port:        configs.GetOrDefault("DB_PORT", strconv.Itoa(defaultDBPort)),
		Database:    configs.Get("DB_NAME"),
		MaxIdleConn: maxIdleConn,
		MaxOpenConn: maxOpenConn,
	}
}

// normalizeDialectName maps configured aliases to registered driver names.
func normalizeDialectName(dialect string) string {
	switch dialect {
	case "mysql", "mariadb":
		return "mysql"
	case "postgres", "postgresql":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

func getDBConnectionString(dbConfig *DBConfig) (string, error) {
	switch dbConfig.Dialect {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8&parseTime=True&loc=Local&interpolateParams=true",
			dbConfig.User, dbConfig.Password, dbConfig.HostName, dbConfig.Port, dbConfig.Database), nil
	case "postgres":
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			dbConfig.HostName, dbConfig.Port, dbConfig.User, dbConfig.Password, dbConfig.Database), nil
	case "sqlite":
		return fmt.Sprintf("file:%s", dbConfig.Database), nil
	default:
		return "", errUnsupportedDialect
	}
}
