package ternsecure

import (
	"encoding/json"
	"net/http"
)

// Response is what a validation stage or handler produces. A nil Body writes no
// payload.
type Response struct {
	Status  int
	Header  http.Header
	Body    any
	Cookies []*http.Cookie
}

// ErrorBody is the error envelope.
type ErrorBody struct {
	Error   ErrorCode `json:"error"`
	Message string    `json:"message"`
}

// JSON builds a JSON response.
func JSON(status int, body any) *Response {
	return &Response{Status: status, Header: http.Header{}, Body: body}
}

// Success builds a 200 response {success: true, ...payload}.
func Success(payload map[string]any) *Response {
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["success"] = true
	return JSON(http.StatusOK, body)
}

// ErrorResponse builds the error envelope with the status bound to code.
func ErrorResponse(code ErrorCode, message string) *Response {
	return errorResponse(code, message)
}

func errorResponse(code ErrorCode, message string) *Response {
	return JSON(code.Status(), ErrorBody{Error: code, Message: message})
}

// NotFound is the standard response for unknown sub-endpoints.
func NotFound() *Response {
	return errorResponse(CodeNotFound, "Not found")
}

// MethodNotAllowed is the standard response for a method a route does not serve.
func MethodNotAllowed(method string) *Response {
	return errorResponse(CodeMethodNotAllowed, "Method "+method+" not allowed")
}

// IsError reports whether r carries an error status.
func (r *Response) IsError() bool {
	return r != nil && r.Status >= http.StatusBadRequest
}

// SetCookie appends a cookie to the response.
func (r *Response) SetCookie(c *http.Cookie) {
	if c != nil {
		r.Cookies = append(r.Cookies, c)
	}
}

func setSecurityHeaders(h http.Header) {
	h.Set("Cache-Control", "no-store")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("X-Content-Type-Options", "nosniff")
}

// write commits resp to w. Cookies are dropped when the request context is already
// done, so an abandoned request does not commit session state.
func (r *Response) write(w http.ResponseWriter, req *http.Request) error {
	h := w.Header()
	for k, values := range r.Header {
		for _, v := range values {
			h.Add(k, v)
		}
	}
	setSecurityHeaders(h)

	if req == nil || req.Context().Err() == nil {
		for _, c := range r.Cookies {
			http.SetCookie(w, c)
		}
	}

	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	if r.Body == nil {
		w.WriteHeader(status)
		return nil
	}
	data, err := json.Marshal(r.Body)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(ErrorBody{Error: CodeInternal, Message: "Internal server error"})
	}
	h.Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, werr := w.Write(data)
	if err != nil {
		return err
	}
	return werr
}
