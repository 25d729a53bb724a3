package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// ErrPinNotSet indicates the user never enrolled a step-up PIN.
var ErrPinNotSet = errors.New("authz: pin not set")

// PinSource loads and stores bcrypt PIN hashes.
type PinSource interface {
	PinHash(ctx context.Context, userID int64) (string, error)
	SavePinHash(ctx context.Context, userID int64, hash string) error
}

// PinGate verifies a per-user PIN before sensitive operations. PIN hashes
// live behind PinSource; failure counters live in Redis so lockouts survive
// a process restart and apply across instances.
type PinGate struct {
	source      PinSource
	client      *redis.Client
	logger      *slog.Logger
	maxFailures int64
	lockout     time.Duration
}

// NewPinGate constructs PinGate. maxFailures attempts within the lockout
// window trigger a temporary lockout for that user.
func NewPinGate(source PinSource, client *redis.Client, logger *slog.Logger, maxFailures int64, lockout time.Duration) *PinGate {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if lockout <= 0 {
		lockout = 15 * time.Minute
	}
	return &PinGate{source: source, client: client, logger: logger, maxFailures: maxFailures, lockout: lockout}
}

// Verify checks the PIN for userID. A missing PIN, a wrong PIN or a
// locked-out user all fail closed.
func (g *PinGate) Verify(ctx context.Context, userID int64, action shared.StepUpAction, credential string) error {
	if credential == "" {
		return shared.ErrStepUpRequired
	}
	key := g.failureKey(userID)
	failures, err := g.client.Get(ctx, key).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("authz: read failure counter: %w", err)
	}
	if failures >= g.maxFailures {
		g.logger.Warn("step-up locked out", slog.Int64("user_id", userID), slog.String("action", string(action)))
		return shared.ErrStepUpRateLimited
	}

	hash, err := g.source.PinHash(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrPinNotSet) {
			return shared.ErrStepUpRequired
		}
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(credential)); err != nil {
		if err := g.recordFailure(ctx, key); err != nil {
			g.logger.Error("record step-up failure", slog.Any("error", err))
		}
		g.logger.Warn("step-up denied", slog.Int64("user_id", userID), slog.String("action", string(action)))
		return shared.ErrStepUpRequired
	}
	if err := g.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		g.logger.Error("reset step-up failures", slog.Any("error", err))
	}
	return nil
}

// SetPin stores a new bcrypt PIN hash for the user and clears any lockout.
func (g *PinGate) SetPin(ctx context.Context, userID int64, pin string) error {
	if len(pin) < 4 {
		return fmt.Errorf("%w: pin must be at least 4 characters", shared.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("authz: hash pin: %w", err)
	}
	if err := g.source.SavePinHash(ctx, userID, string(hash)); err != nil {
		return err
	}
	if err := g.client.Del(ctx, g.failureKey(userID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		g.logger.Error("reset step-up failures", slog.Any("error", err))
	}
	return nil
}

func (g *PinGate) recordFailure(ctx context.Context, key string) error {
	pipe := g.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, g.lockout)
	_, err := pipe.Exec(ctx)
	return err
}

func (g *PinGate) failureKey(userID int64) string {
	return fmt.Sprintf("stepup:failures:%d", userID)
}
