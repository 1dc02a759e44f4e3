package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	POSTWithHeaders(path string, body any, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetToken() string
	SetToken(token string)
	GetCredentials() (email, password string)
	SetCredentials(email, password string)
}

const defaultPassword = "Bastion-e2e-1"

// RegisterSteps registers account step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	// Signup and login
	ctx.Step(`^I sign up with a new email$`, steps.signUpWithNewEmail)
	ctx.Step(`^I have signed up with a new email$`, steps.haveSignedUp)
	ctx.Step(`^I sign up again with the same email$`, steps.signUpAgain)
	ctx.Step(`^I sign up with a new email and password "([^"]*)"$`, steps.signUpWithPassword)
	ctx.Step(`^I log in with my password$`, steps.logInWithMyPassword)
	ctx.Step(`^I log in with the wrong password$`, steps.logInWithWrongPassword)
	ctx.Step(`^I log in as unknown email "([^"]*)"$`, steps.logInAsUnknown)
	ctx.Step(`^I save the token from the response$`, steps.saveToken)

	// Authenticated account steps
	ctx.Step(`^I request my account with the saved token$`, steps.requestMyAccount)
	ctx.Step(`^I change my password to "([^"]*)"$`, steps.changePassword)
	ctx.Step(`^I change my password giving current password "([^"]*)"$`, steps.changePasswordWithCurrent)
	ctx.Step(`^I request email verification$`, steps.requestVerification)

	// Recovery steps
	ctx.Step(`^I request a password reset for my email$`, steps.requestResetForMe)
	ctx.Step(`^I request a password reset for "([^"]*)"$`, steps.requestResetFor)
	ctx.Step(`^I reset my password with token "([^"]*)"$`, steps.resetWithToken)
	ctx.Step(`^I verify my email with token "([^"]*)"$`, steps.verifyWithToken)
}

type authSteps struct {
	tc TestContext
}

func (s *authSteps) signUpWithNewEmail(ctx context.Context) error {
	return s.signUpWithPassword(ctx, defaultPassword)
}

func (s *authSteps) signUpWithPassword(ctx context.Context, password string) error {
	email := fmt.Sprintf("e2e-%s@example.com", uuid.NewString())
	s.tc.SetCredentials(email, password)
	return s.tc.POST("/auth/signup", map[string]any{
		"email":    email,
		"password": password,
	})
}

func (s *authSteps) haveSignedUp(ctx context.Context) error {
	if err := s.signUpWithNewEmail(ctx); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != http.StatusCreated {
		return fmt.Errorf("signup returned %d: %s", status, s.tc.GetLastResponseBody())
	}
	return s.saveToken(ctx)
}

func (s *authSteps) signUpAgain(ctx context.Context) error {
	email, password := s.tc.GetCredentials()
	return s.tc.POST("/auth/signup", map[string]any{
		"email":    email,
		"password": password,
	})
}

func (s *authSteps) logInWithMyPassword(ctx context.Context) error {
	email, password := s.tc.GetCredentials()
	return s.login(email, password)
}

func (s *authSteps) logInWithWrongPassword(ctx context.Context) error {
	email, _ := s.tc.GetCredentials()
	return s.login(email, "Definitely-wrong-1")
}

func (s *authSteps) logInAsUnknown(ctx context.Context, email string) error {
	return s.login(email, defaultPassword)
}

func (s *authSteps) login(email, password string) error {
	return s.tc.POST("/auth/login", map[string]any{
		"email":    email,
		"password": password,
	})
}

func (s *authSteps) saveToken(ctx context.Context) error {
	token, err := s.tc.GetResponseField("token")
	if err != nil {
		return err
	}
	str, ok := token.(string)
	if !ok || str == "" {
		return fmt.Errorf("token field is not a non-empty string: %v", token)
	}
	s.tc.SetToken(str)
	return nil
}

func (s *authSteps) bearer() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.tc.GetToken()}
}

func (s *authSteps) requestMyAccount(ctx context.Context) error {
	return s.tc.GET("/auth/me", s.bearer())
}

func (s *authSteps) changePassword(ctx context.Context, newPassword string) error {
	email, current := s.tc.GetCredentials()
	if err := s.postChange(current, newPassword); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() == http.StatusOK {
		s.tc.SetCredentials(email, newPassword)
	}
	return nil
}

func (s *authSteps) changePasswordWithCurrent(ctx context.Context, current string) error {
	return s.postChange(current, "Another-strong-2")
}

func (s *authSteps) postChange(current, next string) error {
	return s.postWithBearer("/auth/password/change", map[string]any{
		"current_password": current,
		"new_password":     next,
	})
}

func (s *authSteps) requestVerification(ctx context.Context) error {
	return s.postWithBearer("/auth/verify/request", map[string]any{})
}

func (s *authSteps) postWithBearer(path string, body any) error {
	return s.tc.POSTWithHeaders(path, body, s.bearer())
}

func (s *authSteps) requestResetForMe(ctx context.Context) error {
	email, _ := s.tc.GetCredentials()
	return s.requestResetFor(ctx, email)
}

func (s *authSteps) requestResetFor(ctx context.Context, email string) error {
	return s.tc.POST("/auth/password/forgot", map[string]any{"email": email})
}

func (s *authSteps) resetWithToken(ctx context.Context, token string) error {
	return s.tc.POST("/auth/password/reset", map[string]any{
		"token":        token,
		"new_password": "Recovered-pass-3",
	})
}

func (s *authSteps) verifyWithToken(ctx context.Context, token string) error {
	return s.tc.POST("/auth/verify", map[string]any{"token": token})
}
