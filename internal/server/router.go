package server

import (
	"net/http"
	"slices"
)

// CallbackRouter routes the few endpoints of the login server.
//
// Routes are registered as method patterns on an [http.ServeMux], so a wrong method gets a 405
// and an unknown path a 404.
type CallbackRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware
	patterns    []string
}

// NewCallbackRouter returns a router that wraps every route in middleware, outermost first.
func NewCallbackRouter(middleware ...Middleware) *CallbackRouter {
	return &CallbackRouter{
		mux:         http.NewServeMux(),
		middlewares: slices.Clone(middleware),
	}
}

// Use appends middleware. Only routes registered afterwards are wrapped.
func (r *CallbackRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers handler for method and path.
func (r *CallbackRouter) Handle(method, path string, handler http.Handler) {
	pattern := method + " " + path
	r.mux.Handle(pattern, r.wrap(handler))
	r.patterns = append(r.patterns, pattern)
}

// Handler registers handler for each of its routes as GET, the method of a browser redirect.
func (r *CallbackRouter) Handler(handler Handler) {
	for _, route := range handler.Routes() {
		r.Handle(http.MethodGet, route, handler)
	}
}

// Patterns lists the registered "METHOD /path" patterns in registration order.
func (r *CallbackRouter) Patterns() []string {
	return slices.Clone(r.patterns)
}

func (r *CallbackRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *CallbackRouter) wrap(handler http.Handler) http.Handler {
	for _, mw := range slices.Backward(r.middlewares) {
		handler = mw(handler)
	}
	return handler
}
