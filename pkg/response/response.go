package response

import "net/http"

// APIResponseCode is the envelope code; 0 means success.
type APIResponseCode int

const (
	APIResponseCodeOK                APIResponseCode = 0
	APIResponseCodeBadRequest        APIResponseCode = 40000
	APIResponseCodeUnauthorized      APIResponseCode = 40100
	APIResponseCodeInsufficientKarma APIResponseCode = 40200
	APIResponseCodeForbidden         APIResponseCode = 40300
	APIResponseCodeNotFound          APIResponseCode = 40400
	APIResponseCodeConflict          APIResponseCode = 40900
	APIResponseCodeError             APIResponseCode = 50000
)

var codeToMsg = map[APIResponseCode]string{
	APIResponseCodeOK:                "ok",
	APIResponseCodeBadRequest:        "bad request",
	APIResponseCodeUnauthorized:      "unauthorized",
	APIResponseCodeInsufficientKarma: "insufficient karma",
	APIResponseCodeForbidden:         "forbidden",
	APIResponseCodeNotFound:          "not found",
	APIResponseCodeConflict:          "conflict",
	APIResponseCodeError:             "unexpected error",
}

var statusToCode = map[int]APIResponseCode{
	http.StatusBadRequest:      APIResponseCodeBadRequest,
	http.StatusUnauthorized:    APIResponseCodeUnauthorized,
	http.StatusPaymentRequired: APIResponseCodeInsufficientKarma,
	http.StatusForbidden:       APIResponseCodeForbidden,
	http.StatusNotFound:        APIResponseCodeNotFound,
	http.StatusConflict:        APIResponseCodeConflict,
}

// APIResponse is the generic response envelope used by HTTP APIs.
// Use OKT / ErrorT helpers to construct instances.
type APIResponse[T any] struct {
	Code    APIResponseCode `json:"code"`
	Message string          `json:"message"`
	Data    T               `json:"data"`
}

// OKT returns a successful response with data.
func OKT[T any](data T) *APIResponse[T] {
	return &APIResponse[T]{Code: APIResponseCodeOK, Message: codeToMsg[APIResponseCodeOK], Data: data}
}

// ErrorT returns an error response with message and optional data.
func ErrorT[T any](code APIResponseCode, data T) *APIResponse[T] {
	return &APIResponse[T]{Code: code, Message: codeToMsg[code], Data: data}
}

// CodeForStatus maps an HTTP status to its envelope code.
func CodeForStatus(status int) APIResponseCode {
	if c, ok := statusToCode[status]; ok {
		return c
	}
	if status >= 400 && status < 500 {
		return APIResponseCodeBadRequest
	}
	return APIResponseCodeError
}
