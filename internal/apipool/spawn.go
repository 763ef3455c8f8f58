package apipool

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/USSTM/microservice/internal/api"
	"github.com/USSTM/microservice/internal/logging"
	"github.com/USSTM/microservice/internal/specs"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	nethttpmiddleware "github.com/oapi-codegen/nethttp-middleware"
)

// Spawn installs one route per operation of a local api on r. Requests are
// validated against the spec before reaching the bound handler; operations
// nobody bound reply 501.
func (p *Pool) Spawn(name string, r chi.Router, decorator Decorator) error {
	if !p.merged {
		return ErrNotMerged
	}
	a, ok := p.apis[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAPI, name)
	}
	if !a.Local {
		return fmt.Errorf("api %s is not served locally", name)
	}
	if decorator == nil {
		decorator = func(_ string, next http.Handler) http.Handler { return next }
	}

	validator := p.validator(a)

	ids := a.OperationIDs()
	for _, id := range ids {
		op := a.operations[id]
		route := a.BasePath + op.path
		endpoint := endpointName(a.Name, id)

		handler, bound := p.handlers[endpoint]
		if !bound {
			logging.Warn("No implementation bound, replying 501", "endpoint", endpoint)
			handler = notImplemented(a, id)
		}

		r.Method(op.method, route, decorator(endpoint, validator(handler)))
		logging.Debug("Spawned endpoint", "endpoint", endpoint, "method", op.method, "route", route)
	}

	if p.currentServer == "" || p.currentServer == specs.PingName {
		p.currentServer = name
	}

	logging.Info("Spawned api", "api", name, "endpoints", len(ids))
	return nil
}

// validator checks requests against a copy of the spec whose server is
// relative, so that any Host header matches.
func (p *Pool) validator(a *API) func(http.Handler) http.Handler {
	doc := *a.Doc
	base := a.BasePath
	if base == "" {
		base = "/"
	}
	doc.Servers = openapi3.Servers{{URL: base}}

	return nethttpmiddleware.OapiRequestValidatorWithOptions(&doc, &nethttpmiddleware.Options{
		SilenceServersWarning: true,
		Options: openapi3filter.Options{
			AuthenticationFunc: p.authenticationFunc(),
		},
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			api.WriteError(w, a.formatError(validationError(message, statusCode)))
		},
	})
}

func (p *Pool) authenticationFunc() openapi3filter.AuthenticationFunc {
	if p.authFunc != nil {
		return p.authFunc
	}
	return openapi3filter.NoopAuthenticationFunc
}

func validationError(message string, statusCode int) *api.Error {
	switch statusCode {
	case http.StatusUnauthorized:
		code := api.CodeTokenInvalid
		if strings.Contains(message, "header missing") {
			code = api.CodeAuthRequired
		}
		return api.Unauthorized(code, message).Create()
	case http.StatusNotFound:
		return api.NewError(http.StatusNotFound, api.CodeNotFound, message).Create()
	case http.StatusBadRequest:
		return api.ValidationErr(message).Create()
	default:
		return api.NewError(statusCode, api.CodeUnhandledServerError, message).Create()
	}
}

func notImplemented(a *API, operationID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.WriteError(w, a.formatError(api.NotImplemented(operationID).Create()))
	})
}

// Routes lists "METHOD path" for every operation of a merged api.
func (a *API) Routes() []string {
	routes := make([]string, 0, len(a.operations))
	for _, op := range a.operations {
		routes = append(routes, op.method+" "+a.BasePath+op.path)
	}
	sort.Strings(routes)
	return routes
}
