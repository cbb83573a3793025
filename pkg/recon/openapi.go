package recon

import (
	"context"
	"fmt"

	"github.com/pb33f/libopenapi"
	base "github.com/pb33f/libopenapi/datamodel/high/base"
	v3 "github.com/pb33f/libopenapi/datamodel/high/v3"
)

// OpenAPIReconnaissance implements Reconnaissance over an OpenAPI 3.x
// document, producing an ordered endpoint list for `/generate/api-tests`.
type OpenAPIReconnaissance struct{}

// NewOpenAPIReconnaissance constructs the OpenAPI-driven producer.
func NewOpenAPIReconnaissance() *OpenAPIReconnaissance {
	return &OpenAPIReconnaissance{}
}

func (r *OpenAPIReconnaissance) Inspect(_ context.Context, target Target) (*Result, error) {
	if len(target.OpenAPISpec) == 0 {
		return nil, fmt.Errorf("recon: no OpenAPI document supplied")
	}

	document, err := libopenapi.NewDocument(target.OpenAPISpec)
	if err != nil {
		return nil, fmt.Errorf("recon: parse openapi document: %w", err)
	}

	model, err := document.BuildV3Model()
	if err != nil {
		return nil, fmt.Errorf("recon: build openapi v3 model: %w", err)
	}

	var endpoints []Endpoint
	for pair := model.Model.Paths.PathItems.First(); pair != nil; pair = pair.Next() {
		path := pair.Key()
		item := pair.Value()

		ops := map[string]*v3.Operation{
			"GET":    item.Get,
			"POST":   item.Post,
			"PUT":    item.Put,
			"DELETE": item.Delete,
			"PATCH":  item.Patch,
		}

		for _, method := range []string{"GET", "POST", "PUT", "DELETE", "PATCH"} {
			op := ops[method]
			if op == nil {
				continue
			}

			endpoint := Endpoint{
				Method:      method,
				Path:        path,
				Summary:     op.Summary,
				Description: op.Description,
				HasBody:     op.RequestBody != nil,
			}

			for _, param := range op.Parameters {
				endpoint.Parameters = append(endpoint.Parameters, EndpointParameter{
					Name:     param.Name,
					In:       param.In,
					Required: param.Required != nil && *param.Required,
					Type:     extractType(param.Schema),
				})
			}

			if op.Responses != nil {
				for pair := op.Responses.Codes.First(); pair != nil; pair = pair.Next() {
					status := pair.Key()
					var code int
					if n, err := fmt.Sscanf(status, "%d", &code); err == nil && n == 1 {
						endpoint.Responses = append(endpoint.Responses, code)
					}
				}
			}

			endpoints = append(endpoints, endpoint)
		}
	}

	return &Result{Endpoints: endpoints}, nil
}

func extractType(schema *base.SchemaProxy) string {
	if schema == nil || schema.Schema() == nil {
		return "unknown"
	}
	s := schema.Schema()
	if len(s.Type) > 0 {
		return s.Type[0]
	}
	return "object"
}
