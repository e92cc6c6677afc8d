package ternsecure

import (
	"context"
	"net/http"
	"regexp"

	"github.com/ternsecure/ternsecure/identity"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether email has the shape local@domain.tld.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// SignInsHandler serves the password-reset strategies under /api/auth/signIns.
type SignInsHandler struct {
	deps *deps
	// failure code per sub-endpoint
	strategies map[string]ErrorCode
}

func newSignInsHandler(d *deps) *SignInsHandler {
	return &SignInsHandler{
		deps: d,
		strategies: map[string]ErrorCode{
			SubResetPasswordEmail: CodePasswordResetFailed,
			SubPasswordResetEmail: CodePasswordResetFailed,
			SubCreate:             CodeSignInCreateFailed,
		},
	}
}

func (h *SignInsHandler) CanHandle(endpoint string) bool { return endpoint == EndpointSignIns }

func (h *SignInsHandler) Handle(ctx context.Context, call *Call) *Response {
	rc := call.Request
	failureCode, ok := h.strategies[rc.SubEndpoint]
	if !ok {
		return NotFound()
	}
	if rc.Method != http.MethodPost {
		return MethodNotAllowed(rc.Method)
	}
	return h.sendPasswordReset(ctx, call, failureCode)
}

func (h *SignInsHandler) sendPasswordReset(ctx context.Context, call *Call, failureCode ErrorCode) *Response {
	d := h.deps
	email := ""
	if call.Body != nil {
		email = call.Body.Email
	}
	if !ValidEmail(email) {
		return errorResponse(CodeInvalidEmail, "Invalid email address")
	}

	if d.limiter != nil {
		err := d.limiter.CheckPasswordReset(ctx, email, call.Request.ClientIP)
		if resp := d.checkLimit(ctx, "password_reset", "", err); resp != nil {
			return resp
		}
	}

	_, err := d.identity.SendPasswordResetEmail(ctx, call.Config.APIKey, identity.PasswordResetRequest{Email: email})
	if err != nil {
		d.metrics.Inc(MetricPasswordResetFailure)
		d.emitAudit(ctx, auditEventPasswordReset, false, "", "", err, nil)
		if identity.IsUserNotFound(err) {
			return errorResponse(CodeUserNotFound, "No user found with this email")
		}
		return d.upstreamFailure(ctx, failureCode, "Failed to send password reset email", err)
	}

	d.metrics.Inc(MetricPasswordResetRequest)
	d.emitAudit(ctx, auditEventPasswordReset, true, "", "", nil, nil)
	return Success(map[string]any{"message": "Password reset email sent"})
}
