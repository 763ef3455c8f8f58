package apipool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/USSTM/microservice/internal/api"
	"github.com/USSTM/microservice/internal/logging"
	"github.com/USSTM/microservice/internal/middleware"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/oapi-codegen/runtime"
)

// DefaultTimeout bounds calls of apis registered without a timeout.
const DefaultTimeout = 20 * time.Second

// Params holds path, query and header parameters of a call, by name.
type Params map[string]any

// Call invokes an operation of the api over http. body, when not nil, is sent
// as json. The call id of ctx is forwarded so that logs can be correlated.
func (a *API) Call(ctx context.Context, operationID string, params Params, body any) (*http.Response, error) {
	if a.Doc == nil {
		return nil, ErrNotMerged
	}
	op, ok := a.operations[operationID]
	if !ok {
		return nil, fmt.Errorf("api %s has no operation %s", a.Name, operationID)
	}

	path := op.path
	query := make([]string, 0)
	headers := make(http.Header)

	declared := append(openapi3.Parameters{}, op.pathItem.Parameters...)
	declared = append(declared, op.op.Parameters...)
	for _, ref := range declared {
		if ref == nil || ref.Value == nil {
			continue
		}
		p := ref.Value
		value, ok := params[p.Name]
		if !ok {
			if p.Required && p.In != openapi3.ParameterInCookie {
				return nil, fmt.Errorf("operation %s: missing required parameter %s", operationID, p.Name)
			}
			continue
		}

		switch p.In {
		case openapi3.ParameterInPath:
			s, err := runtime.StyleParamWithLocation("simple", false, p.Name, runtime.ParamLocationPath, value)
			if err != nil {
				return nil, fmt.Errorf("operation %s: parameter %s: %w", operationID, p.Name, err)
			}
			path = strings.ReplaceAll(path, "{"+p.Name+"}", s)
		case openapi3.ParameterInQuery:
			s, err := runtime.StyleParamWithLocation("form", true, p.Name, runtime.ParamLocationQuery, value)
			if err != nil {
				return nil, fmt.Errorf("operation %s: parameter %s: %w", operationID, p.Name, err)
			}
			query = append(query, s)
		case openapi3.ParameterInHeader:
			s, err := runtime.StyleParamWithLocation("simple", false, p.Name, runtime.ParamLocationHeader, value)
			if err != nil {
				return nil, fmt.Errorf("operation %s: parameter %s: %w", operationID, p.Name, err)
			}
			headers.Set(p.Name, s)
		}
	}

	url := a.baseURL + path
	if len(query) > 0 {
		url += "?" + strings.Join(query, "&")
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("operation %s: encode body: %w", operationID, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, op.method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header = headers
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := middleware.GetRequestID(ctx); id != "" {
		req.Header.Set(middleware.CallIDHeader, id)
	}
	req.Header.Set(middleware.CallPathHeader, a.Name+"."+operationID)

	start := time.Now()
	resp, err := a.httpClient().Do(req)
	if err != nil {
		logging.Warn("Call failed", "api", a.Name, "operation", operationID, "url", url, "error", err)
		return nil, fmt.Errorf("call %s.%s: %w", a.Name, operationID, err)
	}
	logging.Debug("Called api",
		"api", a.Name,
		"operation", operationID,
		"status", resp.StatusCode,
		"duration", time.Since(start))
	return resp, nil
}

// CallJSON calls an operation and decodes a 2xx json reply into out. Error
// replies are decoded into *api.Error when possible.
func (a *API) CallJSON(ctx context.Context, operationID string, params Params, body, out any) error {
	resp, err := a.Call(ctx, operationID, params, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		return decodeErrorReply(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (a *API) httpClient() *http.Client {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if !a.Persist {
		// one connection per call
		return &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{DisableKeepAlives: true, Proxy: http.ProxyFromEnvironment},
		}
	}

	a.clientOnce.Do(func() {
		a.client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	})
	return a.client
}

func decodeErrorReply(status int, data []byte) error {
	var e api.Error
	if err := json.Unmarshal(data, &e); err != nil || e.Code == "" {
		return api.NewError(status, api.CodeUnhandledServerError, strings.TrimSpace(string(data))).Create()
	}
	if e.Status == 0 {
		e.Status = status
	}
	return &e
}
