package ternsecure

import "net/http"

// ValidatePath rejects paths shorter than /api/auth/{endpoint}.
func ValidatePath(rc *RequestContext) *Response {
	if len(rc.Segments) < 3 {
		return errorResponse(CodeInvalidRoute, "Invalid route")
	}
	return nil
}

// ValidateEndpoint checks endpoint and sub-endpoint enablement and methods.
// Sub-endpoints the configuration does not list pass through; the handler answers
// them with NotFound.
func ValidateEndpoint(rc *RequestContext, endpoints map[string]EndpointConfig) *Response {
	ep, ok := endpoints[rc.Endpoint]
	if !ok || !ep.Enabled {
		return errorResponse(CodeEndpointNotFound, "Endpoint not found: "+rc.Endpoint)
	}
	if !ep.AllowsMethod(rc.Method) {
		return MethodNotAllowed(rc.Method)
	}
	if rc.SubEndpoint == "" {
		if ep.RequireSubEndpoint {
			return errorResponse(CodeSubEndpointRequired, "Sub-endpoint required for "+rc.Endpoint)
		}
		return nil
	}
	sub, ok := ep.SubEndpoints[rc.SubEndpoint]
	if !ok {
		return nil
	}
	if !sub.Enabled {
		return errorResponse(CodeEndpointNotFound, "Endpoint not found: "+rc.Endpoint+"/"+rc.SubEndpoint)
	}
	if !sub.AllowsMethod(rc.Method) {
		return MethodNotAllowed(rc.Method)
	}
	return nil
}

// subEndpointRule returns the body rule configured for the request's sub-endpoint.
func subEndpointRule(rc *RequestContext, endpoints map[string]EndpointConfig) (SubEndpointConfig, bool) {
	if rc.Method != http.MethodPost {
		return SubEndpointConfig{}, false
	}
	sub, ok := endpoints[rc.Endpoint].SubEndpoints[rc.SubEndpoint]
	return sub, ok
}
