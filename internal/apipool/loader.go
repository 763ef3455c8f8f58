package apipool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// loadDocument reads a swagger 2.0 or openapi 3 file. Swagger 2.0 documents
// are converted to openapi 3 so the rest of the pool only deals with one model.
func loadDocument(ctx context.Context, path string) (*openapi3.T, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, "", fmt.Errorf("failed to parse %s: %w", path, err)
	}
	top, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("%s is not a yaml mapping", path)
	}

	if _, isV2 := top["swagger"]; isV2 {
		return loadV2(top, path)
	}

	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = true

	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load %s: %w", path, err)
	}
	return doc, serverBasePath(doc.Servers), nil
}

func loadV2(top map[string]any, path string) (*openapi3.T, string, error) {
	data, err := json.Marshal(top)
	if err != nil {
		return nil, "", fmt.Errorf("failed to convert %s to json: %w", path, err)
	}

	var doc2 openapi2.T
	if err := json.Unmarshal(data, &doc2); err != nil {
		return nil, "", fmt.Errorf("failed to decode swagger 2.0 document %s: %w", filepath.Base(path), err)
	}

	doc3, err := openapi2conv.ToV3(&doc2)
	if err != nil {
		return nil, "", fmt.Errorf("failed to convert %s to openapi 3: %w", filepath.Base(path), err)
	}

	basePath := strings.TrimSuffix(doc2.BasePath, "/")
	doc3.Servers = serversFromV2(&doc2, basePath)
	return doc3, basePath, nil
}

func serversFromV2(doc2 *openapi2.T, basePath string) openapi3.Servers {
	if doc2.Host == "" {
		if basePath == "" {
			return nil
		}
		return openapi3.Servers{{URL: basePath}}
	}

	schemes := doc2.Schemes
	if len(schemes) == 0 {
		schemes = []string{"http"}
	}

	servers := make(openapi3.Servers, 0, len(schemes))
	for _, scheme := range schemes {
		servers = append(servers, &openapi3.Server{URL: scheme + "://" + doc2.Host + basePath})
	}
	return servers
}

// serverURL resolves variables of the first server with their defaults.
func serverURL(servers openapi3.Servers) string {
	if len(servers) == 0 || servers[0] == nil {
		return ""
	}
	s := servers[0].URL
	for name, v := range servers[0].Variables {
		if v != nil {
			s = strings.ReplaceAll(s, "{"+name+"}", v.Default)
		}
	}
	return s
}

func serverBasePath(servers openapi3.Servers) string {
	raw := serverURL(servers)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(u.Path, "/")
}

// yaml allows non string keys (e.g. response codes), json does not.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
