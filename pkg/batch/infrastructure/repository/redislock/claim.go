// Package redislock moves the instance claim of a JobRepository to redis, so launchers in
// different processes sharing one history store exclude each other.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	repository "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

const (
	module = "redislock"
	// KeyPrefix prefixes the claim key of every job instance.
	KeyPrefix = "surfin:claim:"
)

var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

var renewScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return 0
`)

// ClaimingRepository is a JobRepository whose instance claims live in redis. Every other
// operation goes to the wrapped repository.
type ClaimingRepository struct {
	repository.JobRepository

	client redis.UniversalClient
	ttl    time.Duration

	mu       sync.Mutex
	renewers map[string]context.CancelFunc
}

var _ repository.JobRepository = (*ClaimingRepository)(nil)

// NewClaimingRepository wraps inner. A held claim is renewed every ttl/3 until it is
// released, so it outlives its owner by at most ttl.
func NewClaimingRepository(inner repository.JobRepository, client redis.UniversalClient, ttl time.Duration) *ClaimingRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ClaimingRepository{
		JobRepository: inner,
		client:        client,
		ttl:           ttl,
		renewers:      make(map[string]context.CancelFunc),
	}
}

func claimKey(jobInstanceID string) string {
	return KeyPrefix + jobInstanceID
}

// ClaimJobInstance sets the claim key if it is absent.
func (r *ClaimingRepository) ClaimJobInstance(ctx context.Context, jobInstanceID string, owner string) error {
	ok, err := r.client.SetNX(ctx, claimKey(jobInstanceID), owner, r.ttl).Result()
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("failed to claim JobInstance (ID: %s)", jobInstanceID), err, false, true)
	}
	if !ok {
		holder, getErr := r.client.Get(ctx, claimKey(jobInstanceID)).Result()
		if getErr != nil && !errors.Is(getErr, redis.Nil) {
			logger.Warnf("%s: Could not read holder of JobInstance %s: %v", module, jobInstanceID, getErr)
		}
		return fmt.Errorf("job instance %s is held by %q: %w", jobInstanceID, holder, exception.ErrJobInstanceClaimed)
	}

	renewCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.renewers[jobInstanceID] = cancel
	r.mu.Unlock()
	go r.renew(renewCtx, jobInstanceID, owner)

	logger.Debugf("%s: JobInstance %s claimed by %s (ttl %s).", module, jobInstanceID, owner, r.ttl)
	return nil
}

func (r *ClaimingRepository) renew(ctx context.Context, jobInstanceID, owner string) {
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := renewScript.Run(ctx, r.client, []string{claimKey(jobInstanceID)}, owner, r.ttl.Milliseconds()).Int()
			if err != nil {
				if ctx.Err() == nil {
					logger.Warnf("%s: Failed to renew claim of JobInstance %s: %v", module, jobInstanceID, err)
				}
				continue
			}
			if n == 0 {
				logger.Warnf("%s: Claim of JobInstance %s was lost.", module, jobInstanceID)
				return
			}
		}
	}
}

// ReleaseJobInstance deletes the claim key if owner still holds it.
func (r *ClaimingRepository) ReleaseJobInstance(ctx context.Context, jobInstanceID string, owner string) error {
	r.mu.Lock()
	if cancel, ok := r.renewers[jobInstanceID]; ok {
		cancel()
		delete(r.renewers, jobInstanceID)
	}
	r.mu.Unlock()

	if err := releaseScript.Run(ctx, r.client, []string{claimKey(jobInstanceID)}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return exception.NewBatchError(module, fmt.Sprintf("failed to release JobInstance (ID: %s)", jobInstanceID), err, false, true)
	}
	return nil
}

// Close stops all renewals, closes the client and then the wrapped repository.
func (r *ClaimingRepository) Close() error {
	r.mu.Lock()
	for id, cancel := range r.renewers {
		cancel()
		delete(r.renewers, id)
	}
	r.mu.Unlock()

	var errs []error
	if err := r.client.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := r.JobRepository.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
