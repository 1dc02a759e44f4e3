package captcha

import (
	"context"
	"log/slog"
	"net/http"

	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/httputil"
	"bastion/pkg/platform/privacy"
	"bastion/pkg/requestcontext"
)

// HeaderToken carries the client's CAPTCHA response token.
const HeaderToken = "X-Captcha-Token"

type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// Require rejects requests whose CAPTCHA token does not verify with 403
// captcha_failed. A nil verifier means CAPTCHA is disabled and every request passes.
func Require(verifier Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientIP := requestcontext.ClientIP(ctx)

			ok, err := verifier.Verify(ctx, r.Header.Get(HeaderToken), clientIP)
			if err != nil {
				logger.WarnContext(ctx, "captcha verification unavailable",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
					"client_ip", privacy.AnonymizeIP(clientIP),
				)
			}
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeCaptchaFailed, "captcha verification failed"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
