package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/localnerve/formentries/internal/config"
	"github.com/localnerve/formentries/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// DBContainer is a database server started from DB_IMAGE.
type DBContainer struct {
	Container testcontainers.Container
	Host      string
	Port      nat.Port
}

// Terminate stops and removes the container.
func (c *DBContainer) Terminate(ctx context.Context) error {
	if c == nil || c.Container == nil {
		return nil
	}
	return c.Container.Terminate(ctx)
}

// Apply points cfg at the running container.
func (c *DBContainer) Apply(cfg *config.Config) {
	cfg.DBHost = c.Host
	cfg.DBPort = c.Port.Port()
}

// StartDatabase starts the DB_IMAGE container for cfg.DBType, creating
// cfg.DBDatabase owned by cfg.DBAppUser.
func StartDatabase(ctx context.Context, cfg *config.Config) (*DBContainer, error) {
	image := os.Getenv("DB_IMAGE")
	if image == "" {
		return nil, fmt.Errorf("DB_IMAGE is required")
	}

	internalPort := "5432"
	if cfg.DBType == "mysql" || cfg.DBType == "mariadb" {
		internalPort = "3306"
	}
	tcpDbPort, err := nat.NewPort("tcp", internalPort)
	if err != nil {
		return nil, fmt.Errorf("failed to create DB port: %w", err)
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{string(tcpDbPort)},
			Env:          dbInitEnv(cfg),
			WaitingFor:   wait.ForListeningPort(tcpDbPort).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start database: %w", err)
	}

	dbc := &DBContainer{Container: container}
	if dbc.Host, err = container.Host(ctx); err != nil {
		_ = dbc.Terminate(ctx)
		return nil, err
	}
	if dbc.Port, err = container.MappedPort(ctx, tcpDbPort); err != nil {
		_ = dbc.Terminate(ctx)
		return nil, err
	}
	return dbc, nil
}

func dbInitEnv(cfg *config.Config) map[string]string {
	switch cfg.DBType {
	case "mysql", "mariadb":
		return map[string]string{
			"MYSQL_RANDOM_ROOT_PASSWORD": "yes",
			"MYSQL_DATABASE":             cfg.DBDatabase,
			"MYSQL_USER":                 cfg.DBAppUser,
			"MYSQL_PASSWORD":             cfg.DBAppPassword,
		}
	default:
		return map[string]string{
			"POSTGRES_DB":       cfg.DBDatabase,
			"POSTGRES_USER":     cfg.DBAppUser,
			"POSTGRES_PASSWORD": cfg.DBAppPassword,
		}
	}
}

// NewContainerDB starts DB_IMAGE (DB_TYPE postgres unless set), connects
// and migrates. The returned func stops the container.
func NewContainerDB(ctx context.Context, t testing.TB) (*gorm.DB, func()) {
	t.Helper()

	cfg := &config.Config{
		DBType:               envOr("DB_TYPE", "postgres"),
		DBDatabase:           "formentries",
		DBAppUser:            "formentries",
		DBAppPassword:        "formentries",
		DBAppConnectionLimit: 5,
		DBLogLevel:           "silent",
	}
	dbc, err := StartDatabase(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to start database container: %v", err)
	}
	dbc.Apply(cfg)

	db, err := database.Connect(cfg)
	if err != nil {
		_ = dbc.Terminate(ctx)
		t.Fatalf("Failed to connect to database container: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		_ = dbc.Terminate(ctx)
		t.Fatalf("Failed to migrate database container: %v", err)
	}

	return db, func() {
		_ = database.Close(db)
		if err := dbc.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate database container: %v", err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
