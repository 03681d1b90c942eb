// Package repomanager opens the account store selected by a DSN and runs
// whatever schema setup that backend needs (goose migrations for
// PostgreSQL, indexes for MongoDB).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/gophaccounts/internal/server/migrations"
	"github.com/dmitrijs2005/gophaccounts/internal/server/repositories/accounts"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// Backend names.
const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

const defaultMongoDatabase = "gophaccounts"

// RepositoryManager owns the open backend and vends its repositories.
type RepositoryManager interface {
	Backend() string
	Accounts() accounts.Repository
	Close(ctx context.Context) error
}

// Backend maps a DSN scheme to a backend name.
func Backend(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "mongodb", "mongodb+srv":
		return BackendMongo, nil
	case "postgres", "postgresql":
		return BackendPostgres, nil
	case "memory":
		return BackendMemory, nil
	default:
		return "", fmt.Errorf("unsupported dsn scheme %q", u.Scheme)
	}
}

// Open connects to the backend named by dsn.
func Open(ctx context.Context, dsn string) (RepositoryManager, error) {
	backend, err := Backend(dsn)
	if err != nil {
		return nil, err
	}

	switch backend {
	case BackendMongo:
		return NewMongoRepositoryManager(ctx, dsn)
	case BackendPostgres:
		db, err := sqlOpen("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("db open error: %w", err)
		}
		m, err := NewPostgresRepositoryManager(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return m, nil
	default:
		return NewMemoryRepositoryManager(), nil
	}
}

// sqlOpen is a seam for testing sql.Open.
var sqlOpen = sql.Open

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// PostgresRepositoryManager serves accounts from PostgreSQL.
type PostgresRepositoryManager struct {
	db       *sql.DB
	accounts *accounts.PostgresRepository
}

// NewPostgresRepositoryManager pings db and applies the embedded migrations.
func NewPostgresRepositoryManager(ctx context.Context, db *sql.DB) (*PostgresRepositoryManager, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	m := &PostgresRepositoryManager{db: db, accounts: accounts.NewPostgresRepository(db)}
	if err := m.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return m, nil
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the manager's connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, m.db, ".")
}

func (m *PostgresRepositoryManager) Backend() string               { return BackendPostgres }
func (m *PostgresRepositoryManager) Accounts() accounts.Repository { return m.accounts }
func (m *PostgresRepositoryManager) Close(context.Context) error   { return m.db.Close() }

// mongoConnect is a seam for testing mongo.Connect.
var mongoConnect = func(ctx context.Context, uri string) (*mongo.Client, error) {
	return mongo.Connect(ctx, options.Client().ApplyURI(uri))
}

// MongoRepositoryManager serves accounts from MongoDB.
type MongoRepositoryManager struct {
	client   *mongo.Client
	accounts *accounts.MongoRepository
}

// NewMongoRepositoryManager connects, pings and ensures indexes. The
// database is taken from the URI path, defaulting to "gophaccounts".
func NewMongoRepositoryManager(ctx context.Context, uri string) (*MongoRepositoryManager, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("parse mongo uri: %w", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = defaultMongoDatabase
	}

	client, err := mongoConnect(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("mongo connect error: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping error: %w", err)
	}

	repo := accounts.NewMongoRepository(client.Database(dbName))
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo index error: %w", err)
	}

	return &MongoRepositoryManager{client: client, accounts: repo}, nil
}

func (m *MongoRepositoryManager) Backend() string               { return BackendMongo }
func (m *MongoRepositoryManager) Accounts() accounts.Repository { return m.accounts }
func (m *MongoRepositoryManager) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// MemoryRepositoryManager keeps everything in process memory.
type MemoryRepositoryManager struct {
	accounts *accounts.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{accounts: accounts.NewMemoryRepository()}
}

func (m *MemoryRepositoryManager) Backend() string               { return BackendMemory }
func (m *MemoryRepositoryManager) Accounts() accounts.Repository { return m.accounts }
func (m *MemoryRepositoryManager) Close(context.Context) error   { return nil }
