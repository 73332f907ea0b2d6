package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/types"
	"github.com/vidcourse/vidcourse-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "vidcourse", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	serviceLog.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	return AutoMigrate(s.db)
}

// AutoMigrate runs migrations against any gorm DB; tests reuse it with the
// sqlite driver.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Course{},
		&types.Segment{},
		&types.QuestionPlan{},
		&types.Question{},
		&types.QuestionOption{},
		&types.BoundingBox{},
		&types.MatchingPair{},
		&types.SequenceItem{},
		&types.QualityMetric{},
		&types.ProcessingProgress{},
	)
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
