// Package service turns a directory of swagger specifications into a running
// microservice.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/USSTM/microservice/internal/api"
	"github.com/USSTM/microservice/internal/apipool"
	"github.com/USSTM/microservice/internal/auth"
	"github.com/USSTM/microservice/internal/config"
	"github.com/USSTM/microservice/internal/crash"
	"github.com/USSTM/microservice/internal/logging"
	"github.com/USSTM/microservice/internal/metrics"
	"github.com/USSTM/microservice/internal/middleware"
	"github.com/USSTM/microservice/internal/specs"
	"github.com/USSTM/microservice/internal/swagger"
	"github.com/go-chi/chi/v5"
)

var (
	ErrNotLoaded      = errors.New("you must call LoadAPIs first")
	ErrEmptyServeList = errors.New("no api to serve")
	ErrNoClients      = errors.New("no client api to load")
	ErrEmptyPrefix    = errors.New("doc prefix is empty")
	ErrUnknownAPI     = errors.New("unknown api")
	ErrAlreadySetup   = errors.New("service is already set up")
)

// API is one microservice: the apis it serves, the apis it calls, their
// published documentation and the crash handler around every endpoint.
type API struct {
	cfg *config.Config

	pool           *apipool.Pool
	crash          *crash.Handler
	metrics        *metrics.Metrics
	authenticator  *auth.Authenticator
	jwt            *auth.JWTService
	errorFormatter api.Formatter
	formats        []apipool.Format
	ec2            crash.EC2Detector
	parentName     func() (string, error)

	apiPath string
	apis    map[string]string

	docs       chi.Router
	docsPrefix string

	handler http.Handler
}

type settings struct {
	reporter       crash.Reporter
	errorFormatter api.Formatter
	errorDecorator func(map[string]any)
	formats        []apipool.Format
	pool           *apipool.Pool
	ec2            crash.EC2Detector
	parentName     func() (string, error)
	metrics        *metrics.Metrics
}

type Option func(*settings)

// WithReporter sends crash reports somewhere else than the log.
func WithReporter(r crash.Reporter) Option {
	return func(s *settings) { s.reporter = r }
}

func WithErrorFormatter(f api.Formatter) Option {
	return func(s *settings) { s.errorFormatter = f }
}

// WithErrorDecorator edits the json body of every error reply.
func WithErrorDecorator(f func(body map[string]any)) Option {
	return func(s *settings) { s.errorDecorator = f }
}

func WithFormats(formats ...apipool.Format) Option {
	return func(s *settings) { s.formats = append(s.formats, formats...) }
}

func WithPool(p *apipool.Pool) Option {
	return func(s *settings) { s.pool = p }
}

func WithEC2Detector(d crash.EC2Detector) Option {
	return func(s *settings) { s.ec2 = d }
}

// WithParentName replaces the lookup of the parent process name.
func WithParentName(f func() (string, error)) Option {
	return func(s *settings) { s.parentName = f }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

func New(cfg *config.Config, opts ...Option) (*API, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	jwtService, err := auth.NewJWTService(auth.JWTDefaults{
		Secret:        cfg.JWT.Secret,
		Audience:      cfg.JWT.Audience,
		Issuer:        cfg.JWT.Issuer,
		DefaultUserID: cfg.JWT.DefaultUserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up jwt: %w", err)
	}
	authenticator := auth.NewAuthenticator(jwtService)

	if s.pool == nil {
		s.pool = apipool.New(authenticator.Authenticate)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.parentName == nil {
		s.parentName = parentProcessName
	}

	deploy, err := config.LoadDeployConfigIfPresent(cfg.Deploy)
	if err != nil {
		return nil, err
	}
	slow := cfg.Crash.ReportCallExceeding
	if deploy.ReportCallExceedingMS != config.DefaultReportSlowMsc && deploy.ReportCallExceedingMS > 0 {
		slow = time.Duration(deploy.ReportCallExceedingMS) * time.Millisecond
	}

	a := &API{
		cfg:            cfg,
		pool:           s.pool,
		metrics:        s.metrics,
		authenticator:  authenticator,
		jwt:            jwtService,
		errorFormatter: s.errorFormatter,
		formats:        s.formats,
		ec2:            s.ec2,
		parentName:     s.parentName,
	}
	a.crash = crash.NewHandler(crash.Options{
		Reporter:            s.reporter,
		ErrorFormatter:      s.errorFormatter,
		ErrorDecorator:      s.errorDecorator,
		Server:              s.pool,
		EC2:                 s.ec2,
		Metrics:             s.metrics,
		ReportCallExceeding: slow,
	})
	return a, nil
}

func (a *API) Pool() *apipool.Pool {
	return a.pool
}

func (a *API) JWT() *auth.JWTService {
	return a.jwt
}

// Crash gives access to the crash handler, e.g. to report errors caught
// outside of endpoints.
func (a *API) Crash() *crash.Handler {
	return a.crash
}

// Bind attaches the implementation of operationID in the api called name.
func (a *API) Bind(name, operationID string, h http.Handler) {
	a.pool.Bind(name, operationID, h)
}

// ReportSlow overrides the slow call limit of one endpoint
// ("<api>.<operationId>").
func (a *API) ReportSlow(endpoint string, d time.Duration) {
	a.crash.ReportSlow(endpoint, d)
}

// Client returns a loaded api to call.
func (a *API) Client(name string) (*apipool.API, error) {
	c, ok := a.pool.API(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAPI, name)
	}
	if !a.pool.Merged() {
		return nil, apipool.ErrNotMerged
	}
	return c, nil
}

func (a *API) options(specPath string) apipool.Options {
	return apipool.Options{
		SpecPath:       specPath,
		Timeout:        a.cfg.APIs.Timeout,
		Formats:        a.formats,
		ErrorFormatter: a.errorFormatter,
	}
}

// LoadClients registers apis this process only calls and loads them. It is
// meant for processes that serve nothing.
func (a *API) LoadClients(ctx context.Context, path string, names []string) error {
	if path == "" {
		return specs.ErrMissingPath
	}
	if len(names) == 0 {
		return ErrNoClients
	}

	for _, name := range names {
		specPath := filepath.Join(path, name+specs.Extension)
		if err := a.pool.Add(name, a.options(specPath)); err != nil {
			return err
		}
	}
	return a.pool.Merge(ctx)
}

// LoadAPIs finds every spec under path.
func (a *API) LoadAPIs(path string, ignore []string) error {
	apis, err := specs.Discover(path, ignore)
	if err != nil {
		return err
	}
	a.apiPath = path
	a.apis = apis

	logging.Info("Found apis", "path", path, "apis", strings.Join(specs.Names(apis), ","))
	return nil
}

// PublishAPIs serves the documentation of every loaded api under /<prefix>.
// The live host comes from the deploy config.
func (a *API) PublishAPIs(prefix string) error {
	if a.apis == nil {
		return ErrNotLoaded
	}
	if a.handler != nil {
		return ErrAlreadySetup
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ErrEmptyPrefix
	}

	deploy, err := config.LoadDeployConfig(a.cfg.Deploy)
	if err != nil {
		return err
	}
	live, err := deploy.LiveURL()
	if err != nil {
		return err
	}

	viewer := a.cfg.Docs.ViewerURL
	if viewer == "" {
		viewer = "http://petstore.swagger.io/"
	}

	r := chi.NewRouter()
	r.Use(middleware.PublicCORS())

	for _, name := range specs.Names(a.apis) {
		path := a.apis[name]
		file := filepath.Base(path)
		specURL := fmt.Sprintf("%s/%s/%s", live, prefix, file)

		r.Get("/"+name, swagger.ViewerRedirect(viewer, specURL))
		r.Get("/"+file, swagger.ServeSpecFile(path))
		if a.cfg.Docs.SwaggerUI {
			r.Get("/ui/"+name+"/*", swagger.UIHandler("/"+prefix+"/"+file))
		}

		logging.Info("Publishing api doc", "api", name, "url", swagger.ViewerURL(viewer, specURL))
	}

	a.docs = r
	a.docsPrefix = prefix
	return nil
}
