package ternsecure

import "context"

// UsersHandler reserves /api/auth/users. Every call answers 501.
type UsersHandler struct{}

func (*UsersHandler) CanHandle(endpoint string) bool { return endpoint == EndpointUsers }

func (*UsersHandler) Handle(context.Context, *Call) *Response {
	return errorResponse(CodeNotImplemented, "Users endpoint is not implemented")
}
