package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POSTWithHeaders(path string, body any, headers map[string]string) error
	GetLastResponseStatus() int
	GetLastResponseHeader(name string) string
	GetLastResponseBody() []byte
	GetCredentials() (email, password string)
}

// maxProbeRequests bounds the search for a bucket's ceiling.
const maxProbeRequests = 50

// RegisterSteps registers rate limit and lockout step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	// Request-rate limits
	ctx.Step(`^I am a new client$`, steps.newClient)
	ctx.Step(`^I request password resets for "([^"]*)" until rate limited$`, steps.requestResetsUntilLimited)
	ctx.Step(`^at least (\d+) requests? should have succeeded first$`, steps.atLeastNSucceeded)
	ctx.Step(`^the retry hint should be between (\d+) and (\d+) seconds$`, steps.retryHintBetween)

	// Account lockout
	ctx.Step(`^I fail to log in (\d+) times$`, steps.failLoginNTimes)
	ctx.Step(`^every failed attempt should return (\d+)$`, steps.everyAttemptReturned)
}

type ratelimitSteps struct {
	tc             TestContext
	clientIP       string
	requestResults []int
}

// newClient picks a fresh documentation-range address so the scenario gets
// its own buckets. The server must trust the test runner as a proxy.
func (s *ratelimitSteps) newClient(ctx context.Context) error {
	s.clientIP = fmt.Sprintf("2001:db8::%x:%x", rand.Uint32()&0xffff, rand.Uint32()&0xffff)
	return nil
}

func (s *ratelimitSteps) headers() map[string]string {
	if s.clientIP == "" {
		return nil
	}
	return map[string]string{"X-Forwarded-For": s.clientIP}
}

func (s *ratelimitSteps) requestResetsUntilLimited(ctx context.Context, email string) error {
	s.requestResults = s.requestResults[:0]
	for range maxProbeRequests {
		if err := s.tc.POSTWithHeaders("/auth/password/forgot", map[string]any{"email": email}, s.headers()); err != nil {
			return err
		}
		status := s.tc.GetLastResponseStatus()
		s.requestResults = append(s.requestResults, status)
		if status == http.StatusTooManyRequests {
			return nil
		}
	}
	return fmt.Errorf("not rate limited after %d requests", maxProbeRequests)
}

func (s *ratelimitSteps) atLeastNSucceeded(ctx context.Context, n int) error {
	succeeded := 0
	for _, status := range s.requestResults {
		if status != http.StatusOK {
			break
		}
		succeeded++
	}
	if succeeded < n {
		return fmt.Errorf("expected at least %d successful requests before the limit, got %d (%v)", n, succeeded, s.requestResults)
	}
	return nil
}

func (s *ratelimitSteps) retryHintBetween(ctx context.Context, low, high int) error {
	raw := s.tc.GetLastResponseHeader("Retry-After")
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("Retry-After %q is not a number of seconds", raw)
	}
	if seconds < low || seconds > high {
		return fmt.Errorf("Retry-After %d outside [%d, %d]", seconds, low, high)
	}
	return nil
}

func (s *ratelimitSteps) failLoginNTimes(ctx context.Context, n int) error {
	email, _ := s.tc.GetCredentials()
	s.requestResults = s.requestResults[:0]
	for range n {
		err := s.tc.POSTWithHeaders("/auth/login", map[string]any{
			"email":    email,
			"password": "Definitely-wrong-1",
		}, s.headers())
		if err != nil {
			return err
		}
		s.requestResults = append(s.requestResults, s.tc.GetLastResponseStatus())
	}
	return nil
}

func (s *ratelimitSteps) everyAttemptReturned(ctx context.Context, status int) error {
	for i, got := range s.requestResults {
		if got != status {
			return fmt.Errorf("attempt %d returned %d, want %d\nLast response: %s", i+1, got, status, s.tc.GetLastResponseBody())
		}
	}
	return nil
}
