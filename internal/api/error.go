package api

// ApiError is the JSON envelope every failing endpoint responds with. Code
// doubles as the HTTP status. It satisfies error so handlers can return it
// directly.
type ApiError[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

func NewApiError(message string, code int) *ApiError[interface{}] {
	return &ApiError[interface{}]{Code: code, Message: message}
}

func (e ApiError[T]) Error() string {
	return e.Message
}
