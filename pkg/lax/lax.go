// Package lax implements tools for building easy RESTful APIs.
//
//      ^ ^
//  ("\(-_-)/")
//  )(       )(
// ((...) (...))
//
// Take it easy!
package lax

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// A flag for debugging the server.
var debug bool

// EnableDebugMode enables debugging for the API, so debug output is printed.
func EnableDebugMode() {
	debug = true
}

// DebugModeEnabled returns `true` if debug mode is enabled.
func DebugModeEnabled() bool {
	return debug
}

// Request wraps http.Request to provide convenience methods.
type Request struct {
	*http.Request
}

// JSON loads JSON data from a request into the given address.
func (request *Request) JSON(ptr any) error {
	return json.NewDecoder(request.Body).Decode(ptr)
}

// Var returns a path variable from the route.
func (request *Request) Var(name string) string {
	return mux.Vars(request.Request)[name]
}

// Query returns a query string parameter.
func (request *Request) Query(name string) string {
	return request.URL.Query().Get(name)
}

// MethodHandler is a handler for an HTTP method.
type MethodHandler = func(request *Request) any

// View represents a view for a RESTful API.
type View struct {
	// The handler for GET requests.
	Get MethodHandler
	// The handler for POST requests.
	Post MethodHandler
	// The handler for PUT requests.
	Put MethodHandler
	// The handler for DELETE requests.
	Delete MethodHandler
}

// Response represents a response to return.
type Response struct {
	Status int
	Data   any
}

// errorBody is the shape every error response takes.
type errorBody struct {
	Error string `json:"error"`
}

// MakeResponse creates a response with a status code and data.
func MakeResponse(status int, data any) *Response {
	return &Response{status, data}
}

// MakeErrorResponse creates a response with a status code and error message.
func MakeErrorResponse(status int, message string) *Response {
	return &Response{status, errorBody{message}}
}

// MakeBadRequestResponse creates a 400 error response.
func MakeBadRequestResponse(data any) *Response {
	switch v := data.(type) {
	case error:
		return MakeErrorResponse(http.StatusBadRequest, v.Error())
	case string:
		return MakeErrorResponse(http.StatusBadRequest, v)
	default:
		return &Response{http.StatusBadRequest, v}
	}
}

// MakeNotFoundResponse creates a 404 error response.
func MakeNotFoundResponse() *Response {
	return MakeErrorResponse(http.StatusNotFound, "Not Found")
}

// Get the handler for the HTTP request method with its default status.
func dispatch(view *View, requestMethod string) (MethodHandler, int) {
	var handler MethodHandler
	defaultStatus := http.StatusOK

	switch requestMethod {
	case http.MethodGet, http.MethodHead:
		handler = view.Get
	case http.MethodPost:
		handler = view.Post
		defaultStatus = http.StatusCreated
	case http.MethodPut:
		handler = view.Put
	case http.MethodDelete:
		handler = view.Delete
	}

	if handler == nil {
		handler = func(request *Request) any {
			return MakeErrorResponse(http.StatusMethodNotAllowed, "Method Not Allowed")
		}
		defaultStatus = http.StatusMethodNotAllowed
	}

	return handler, defaultStatus
}

// Normalise response data so we can consume it.
func normalise(response any, defaultStatus int) (*Response, error) {
	switch v := response.(type) {
	case *Response:
		return v, nil
	case error:
		return &Response{http.StatusInternalServerError, nil}, v
	default:
		return &Response{defaultStatus, v}, nil
	}
}

// Wrap creates an http.HandlerFunc from a View.
func Wrap(view View) http.HandlerFunc {
	return func(writer http.ResponseWriter, httpRequest *http.Request) {
		request := Request{httpRequest}
		handler, defaultStatus := dispatch(&view, request.Method)
		response, responseErr := normalise(handler(&request), defaultStatus)

		if responseErr != nil {
			if debug {
				http.Error(writer, responseErr.Error(), response.Status)
			} else {
				http.Error(writer, "Internal Server Error", response.Status)
			}

			return
		}

		writer.Header().Set("Content-Type", "application/json")
		outputEncoder := json.NewEncoder(writer)
		outputEncoder.SetEscapeHTML(false)
		writer.WriteHeader(response.Status)

		if response.Data == nil {
			return
		}

		if err := outputEncoder.Encode(response.Data); err != nil && debug {
			http.Error(writer, err.Error(), http.StatusInternalServerError)
		}
	}
}
