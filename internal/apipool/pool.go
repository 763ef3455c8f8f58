// Package apipool keeps every api a microservice serves or calls, loaded from
// its swagger specification.
package apipool

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/USSTM/microservice/internal/api"
	"github.com/USSTM/microservice/internal/middleware"
	"github.com/USSTM/microservice/internal/specs"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
)

var (
	ErrAlreadyMerged = errors.New("api pool is already merged")
	ErrNotMerged     = errors.New("api pool is not merged yet")
	ErrUnknownAPI    = errors.New("unknown api")
)

// Format is a custom string format used by specs, e.g. `format: isodate`.
type Format struct {
	Name     string
	Validate func(value string) error
}

// Options describe how an api is registered.
type Options struct {
	SpecPath       string
	Timeout        time.Duration
	Formats        []Format
	ErrorFormatter api.Formatter
	// Persist keeps one keep-alive http client for the api instead of a
	// fresh connection per call.
	Persist bool
	// Local apis are served by this process on Host:Port.
	Local bool
	Host  string
	Port  int
}

// Decorator wraps the handler of every spawned endpoint. endpoint is
// "<api>.<operationId>".
type Decorator func(endpoint string, next http.Handler) http.Handler

type operation struct {
	method   string
	path     string
	pathItem *openapi3.PathItem
	op       *openapi3.Operation
}

// API is one registered specification.
type API struct {
	Name     string
	SpecPath string
	Local    bool
	Persist  bool
	Host     string
	Port     int
	Timeout  time.Duration
	Formats  []Format

	Doc      *openapi3.T
	BasePath string

	errorFormatter api.Formatter
	operations     map[string]operation
	baseURL        string

	clientOnce sync.Once
	client     *http.Client
}

func (a *API) Version() string {
	if a.Doc == nil || a.Doc.Info == nil {
		return ""
	}
	return a.Doc.Info.Version
}

// BaseURL is where calls to this api are sent.
func (a *API) BaseURL() string {
	return a.baseURL
}

// OperationIDs lists the operations of the api in stable order.
func (a *API) OperationIDs() []string {
	ids := make([]string, 0, len(a.operations))
	for id := range a.operations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (a *API) formatError(err error) *api.Error {
	if a.errorFormatter != nil {
		if e := a.errorFormatter(err); e != nil {
			return e
		}
	}
	return api.FormatError(err)
}

type Pool struct {
	apis     map[string]*API
	order    []string
	handlers map[string]http.Handler
	models   map[string]*openapi3.SchemaRef
	owners   map[string]string
	authFunc openapi3filter.AuthenticationFunc
	merged   bool

	currentServer string
}

func New(authFunc openapi3filter.AuthenticationFunc) *Pool {
	p := &Pool{
		apis:     make(map[string]*API),
		handlers: make(map[string]http.Handler),
		models:   make(map[string]*openapi3.SchemaRef),
		owners:   make(map[string]string),
		authFunc: authFunc,
	}
	p.Bind(specs.PingName, api.PingOperation, middleware.PublicCORS()(http.HandlerFunc(api.Ping)))
	return p
}

// Add registers an api. It fails when the spec file does not exist.
func (p *Pool) Add(name string, opts Options) error {
	if p.merged {
		return ErrAlreadyMerged
	}
	if name == "" {
		return fmt.Errorf("api name is empty")
	}
	if _, ok := p.apis[name]; ok {
		return fmt.Errorf("api %s is already registered", name)
	}

	info, err := os.Stat(opts.SpecPath)
	if err != nil || info.IsDir() {
		return fmt.Errorf("cannot find swagger specification at %s", opts.SpecPath)
	}

	p.apis[name] = &API{
		Name:           name,
		SpecPath:       opts.SpecPath,
		Local:          opts.Local,
		Persist:        opts.Persist,
		Host:           opts.Host,
		Port:           opts.Port,
		Timeout:        opts.Timeout,
		Formats:        opts.Formats,
		errorFormatter: opts.ErrorFormatter,
	}
	p.order = append(p.order, name)
	return nil
}

// Bind attaches the implementation of one operation of api name. Operation
// ids only need to be unique within one api.
func (p *Pool) Bind(name, operationID string, h http.Handler) {
	p.handlers[endpointName(name, operationID)] = h
}

func endpointName(name, operationID string) string {
	return name + "." + operationID
}

// Reset forgets every registered api and the merged models. Bound handlers
// are kept.
func (p *Pool) Reset() {
	p.apis = make(map[string]*API)
	p.order = nil
	p.models = make(map[string]*openapi3.SchemaRef)
	p.owners = make(map[string]string)
	p.merged = false
	p.currentServer = ""
}

func (p *Pool) API(name string) (*API, bool) {
	a, ok := p.apis[name]
	return a, ok
}

// Names returns registered apis in registration order.
func (p *Pool) Names() []string {
	return append([]string(nil), p.order...)
}

func (p *Pool) Merged() bool {
	return p.merged
}

// CurrentServer returns the name and version of the api this process serves.
func (p *Pool) CurrentServer() (string, string) {
	a, ok := p.apis[p.currentServer]
	if !ok {
		return "", ""
	}
	return a.Name, a.Version()
}

// Models returns the merged definitions shared by all apis.
func (p *Pool) Models() map[string]*openapi3.SchemaRef {
	out := make(map[string]*openapi3.SchemaRef, len(p.models))
	for k, v := range p.models {
		out[k] = v
	}
	return out
}
