// Package repository selects the history store from batch.repository.
package repository

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	"github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	repository "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-flow/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/surfin-flow/pkg/batch/infrastructure/repository/redislock"
	reposql "github.com/tigerroll/surfin-flow/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// JobRepositoryParams defines the dependencies of NewJobRepository.
type JobRepositoryParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Cfg        *config.Config
	DBResolver database.DBConnectionResolver
}

// NewJobRepository builds the store named by batch.repository.type and, when
// batch.repository.distributed_claim is set, moves its claims to redis.
func NewJobRepository(p JobRepositoryParams) (repository.JobRepository, error) {
	repoCfg := p.Cfg.Surfin.Batch.Repository

	var repo repository.JobRepository
	switch strings.ToLower(repoCfg.Type) {
	case "", config.RepositoryTypeInMemory:
		logger.Infof("Using in-memory job repository.")
		repo = inmemory.NewInMemoryJobRepository()
	case config.RepositoryTypeSQL:
		repo = reposql.NewJobRepository(reposql.JobRepositoryParams{DBResolver: p.DBResolver, Cfg: p.Cfg})
	default:
		return nil, exception.NewConfigurationError("repository", "unknown repository type: %s", repoCfg.Type)
	}

	if repoCfg.DistributedClaim {
		redisCfg := p.Cfg.Surfin.Redis
		client := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		logger.Infof("Job instance claims are held in redis at %s (ttl %s).", redisCfg.Addr, repoCfg.ClaimTTL)
		repo = redislock.NewClaimingRepository(repo, client, repoCfg.ClaimTTL)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return repo.Close()
		},
	})
	return repo, nil
}

// Module provides the configured repository.JobRepository.
var Module = fx.Provide(NewJobRepository)
