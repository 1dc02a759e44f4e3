package e2e

import (
	"github.com/cucumber/godog"

	"bastion/e2e/steps/auth"
	"bastion/e2e/steps/common"
	"bastion/e2e/steps/ratelimit"
)

// RegisterSteps registers all step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	auth.RegisterSteps(ctx, tc)
	ratelimit.RegisterSteps(ctx, tc)
}
