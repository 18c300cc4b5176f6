// Package domain defines the core interfaces and types for Rimborsami.
package domain

import (
	"context"
	"time"
)

// Repository persists the catalog and evaluation records. Evaluation
// reads are scoped by userID; the catalog is global.
type Repository interface {
	SaveOpportunity(ctx context.Context, o *OpportunityDefinition) error
	GetOpportunity(ctx context.Context, id string) (*OpportunityDefinition, error)
	ListOpportunities(ctx context.Context, activeOnly bool) ([]*OpportunityDefinition, error)
	DeactivateOpportunity(ctx context.Context, id string) error

	SaveQuizEvaluation(ctx context.Context, userID string, eval *QuizEvaluation) error
	GetQuizEvaluation(ctx context.Context, userID string, evalID string) (*QuizEvaluation, error)
	SaveDocumentEvaluation(ctx context.Context, userID string, eval *DocumentEvaluation) error
	GetDocumentEvaluation(ctx context.Context, userID string, evalID string) (*DocumentEvaluation, error)

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryConfig selects the database. Only the fields of the chosen
// driver are read.
type RepositoryConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"

	SQLitePath string `mapstructure:"sqlite_path"`

	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}
