// Package bucket stores sliding-window rate-limit hits. Three backends share
// one contract: Allow checks and records atomically per key.
package bucket

import (
	"fmt"

	"bastion/internal/ratelimit/models"
)

func validate(key string, limit models.Limit) error {
	if key == "" {
		return fmt.Errorf("rate limit key is required")
	}
	return limit.Validate()
}
