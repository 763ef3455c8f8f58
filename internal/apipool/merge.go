package apipool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/USSTM/microservice/internal/logging"
	"github.com/getkin/kin-openapi/openapi3"
)

// Merge loads and validates every registered spec, then merges their
// definitions into one catalog. Two apis may share a definition name only if
// both define it identically.
func (p *Pool) Merge(ctx context.Context) error {
	if p.merged {
		return ErrAlreadyMerged
	}

	for _, name := range p.order {
		a := p.apis[name]

		for _, f := range a.Formats {
			if f.Name == "" || f.Validate == nil {
				return fmt.Errorf("api %s: format needs a name and a validator", name)
			}
			openapi3.DefineStringFormatCallback(f.Name, f.Validate)
		}

		doc, basePath, err := loadDocument(ctx, a.SpecPath)
		if err != nil {
			return fmt.Errorf("api %s: %w", name, err)
		}
		if err := doc.Validate(ctx); err != nil {
			return fmt.Errorf("api %s: invalid specification %s: %w", name, a.SpecPath, err)
		}

		a.Doc = doc
		a.BasePath = basePath
		a.operations = collectOperations(doc)

		if a.Local {
			host := a.Host
			if host == "" {
				host = "localhost"
			}
			a.baseURL = fmt.Sprintf("http://%s:%d%s", host, a.Port, basePath)
			doc.Servers = openapi3.Servers{{URL: a.baseURL}}
		} else {
			a.baseURL = strings.TrimSuffix(serverURL(doc.Servers), "/")
		}

		if err := p.mergeModels(name, doc); err != nil {
			return err
		}

		logging.Info("Loaded api",
			"api", name,
			"version", a.Version(),
			"operations", len(a.operations),
			"local", a.Local,
			"persist", a.Persist,
			"url", a.baseURL)
	}

	p.merged = true
	return nil
}

func (p *Pool) mergeModels(name string, doc *openapi3.T) error {
	if doc.Components == nil {
		return nil
	}

	for model, ref := range doc.Components.Schemas {
		existing, ok := p.models[model]
		if !ok {
			p.models[model] = ref
			p.owners[model] = name
			continue
		}

		same, err := sameSchema(existing, ref)
		if err != nil {
			return fmt.Errorf("api %s: cannot compare definition %s: %w", name, model, err)
		}
		if !same {
			return fmt.Errorf("api %s: definition %s differs from the one in api %s", name, model, p.owners[model])
		}
		// point both apis at one shared definition
		doc.Components.Schemas[model] = existing
	}
	return nil
}

func sameSchema(a, b *openapi3.SchemaRef) (bool, error) {
	ja, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ja, jb), nil
}

func collectOperations(doc *openapi3.T) map[string]operation {
	ops := make(map[string]operation)
	if doc.Paths == nil {
		return ops
	}
	for path, item := range doc.Paths.Map() {
		for method, op := range item.Operations() {
			if op == nil || op.OperationID == "" {
				continue
			}
			ops[op.OperationID] = operation{
				method:   method,
				path:     path,
				pathItem: item,
				op:       op,
			}
		}
	}
	return ops
}
