package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/gosight/slidetrack/internal/model"
)

var ErrRateLimited = errors.New("rate limit exceeded")

type Validator struct {
	redis    *redis.Client
	validate *validator.Validate
	limit    int
}

// NewValidator creates a validator. A nil Redis client disables rate limiting.
func NewValidator(rdb *redis.Client, requestsPerSecond int) *Validator {
	validate := validator.New()
	validate.RegisterValidation("event_type", validateEventType)
	validate.RegisterStructValidation(validateSnapshotLevel, model.Snapshot{})

	return &Validator{
		redis:    rdb,
		validate: validate,
		limit:    requestsPerSecond,
	}
}

func validateEventType(fl validator.FieldLevel) bool {
	return model.EventType(fl.Field().String()).Valid()
}

// validateSnapshotLevel checks constraints spanning several fields
func validateSnapshotLevel(sl validator.StructLevel) {
	snap := sl.Current().Interface().(model.Snapshot)

	for i := 1; i < len(snap.EngagementEvents); i++ {
		if snap.EngagementEvents[i].Timestamp < snap.EngagementEvents[i-1].Timestamp {
			sl.ReportError(snap.EngagementEvents, "engagementEvents", "EngagementEvents", "ordered", "")
			break
		}
	}

	seen := make(map[string]bool, len(snap.Slides))
	for _, r := range snap.Slides {
		if seen[r.SlideID] {
			sl.ReportError(snap.Slides, "slides", "Slides", "unique_slides", r.SlideID)
			break
		}
		seen[r.SlideID] = true
	}
}

// ValidateSnapshot returns one message per violated constraint
func (v *Validator) ValidateSnapshot(snap *model.Snapshot) []string {
	err := v.validate.Struct(snap)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		messages = append(messages, formatFieldError(fe))
	}
	return messages
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Namespace()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "event_type":
		return fmt.Sprintf("%s has unknown event type %q", field, fe.Value())
	case "ordered":
		return fmt.Sprintf("%s must be ordered by timestamp", field)
	case "unique_slides":
		return fmt.Sprintf("%s has duplicate slide %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// CheckRateLimit counts one snapshot for sessionID in the current second.
// Redis failures allow the request.
func (v *Validator) CheckRateLimit(ctx context.Context, sessionID string) bool {
	if v.redis == nil || v.limit <= 0 {
		return true
	}

	key := "ratelimit:session:" + sessionID

	// Increment counter
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return true // Allow on error
	}

	// Set expiry on first request
	if count == 1 {
		v.redis.Expire(ctx, key, time.Second)
	}

	return count <= int64(v.limit)
}

func (v *Validator) Close() {
	if v.redis != nil {
		v.redis.Close()
	}
}
