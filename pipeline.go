package ternsecure

import (
	"errors"
	"io"
	"net/http"
)

// Stage names a validation stage.
type Stage string

const (
	StageCORS     Stage = "cors"
	StageSecurity Stage = "security"
	StagePath     Stage = "path"
	StageEndpoint Stage = "endpoint"
	StageBody     Stage = "body"
)

// Pipeline runs the validation stages in order and stops at the first failure.
// It holds only read-only configuration and is safe for concurrent use.
type Pipeline struct {
	config         ValidationConfig
	csrfCookieName string
}

// NewPipeline builds a Pipeline. csrfCookieName is the cookie the body stage
// compares csrfToken against.
func NewPipeline(cfg ValidationConfig, csrfCookieName string) *Pipeline {
	return &Pipeline{config: cfg, csrfCookieName: csrfCookieName}
}

// Run validates r. On failure it returns the response and the stage that produced
// it; a preflight returns its 204 response from StageCORS.
func (p *Pipeline) Run(r *http.Request, rc *RequestContext) (*RequestBody, *Response, Stage) {
	if resp := ValidateCORS(rc, p.config.CORS); resp != nil {
		return nil, resp, StageCORS
	}
	if resp := ValidateSecurity(rc, p.config.Security); resp != nil {
		return nil, resp, StageSecurity
	}
	if resp := ValidatePath(rc); resp != nil {
		return nil, resp, StagePath
	}
	if resp := ValidateEndpoint(rc, p.config.Endpoints); resp != nil {
		return nil, resp, StageEndpoint
	}

	if rc.Method != http.MethodPost {
		return &RequestBody{Fields: map[string]any{}}, nil, ""
	}
	sub, _ := subEndpointRule(rc, p.config.Endpoints)
	rule := BodyRule{
		RequireIDToken:   sub.RequireIDToken,
		RequireCSRFToken: sub.RequireCSRFToken,
		CSRFCookieName:   p.csrfCookieName,
	}
	raw, err := readBody(r)
	if err != nil {
		return nil, errorResponse(CodeInvalidRequestFormat, "Request body could not be read"), StageBody
	}
	body, resp := ValidateBody(rc, raw, rule)
	if resp != nil {
		return nil, resp, StageBody
	}
	return body, nil, ""
}

func readBody(r *http.Request) ([]byte, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxBodyBytes {
		return nil, errBodyTooLarge
	}
	return data, nil
}

var errBodyTooLarge = errors.New("request body too large")
