// Package recon produces the structural input the Generator consumes: either
// a browser-observed page structure or a parsed OpenAPI endpoint list, behind
// a single interface.
package recon

import "context"

// Button is an interactive page element.
type Button struct {
	Text     string `json:"text"`
	Selector string `json:"selector"`
	Visible  bool   `json:"visible"`
}

// Input is a form field.
type Input struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Selector string `json:"selector"`
	Visible  bool   `json:"visible"`
}

// Link is a navigable anchor.
type Link struct {
	Text    string `json:"text"`
	Href    string `json:"href"`
	Visible bool   `json:"visible"`
}

// PageStructure is the browser-driven reconnaissance output: a snapshot of a
// page's interactive surface. Selectors prefer data-testid, falling back to
// id, then class — whichever the producer set in the Selectors map.
type PageStructure struct {
	Title     string            `json:"title"`
	URL       string            `json:"url"`
	Buttons   []Button          `json:"buttons"`
	Inputs    []Input           `json:"inputs"`
	Links     []Link            `json:"links"`
	Selectors map[string]string `json:"selectors"`
}

// Endpoint is one operation parsed from an OpenAPI document.
type Endpoint struct {
	Method      string              `json:"method"`
	Path        string              `json:"path"`
	Summary     string              `json:"summary"`
	Description string              `json:"description"`
	HasBody     bool                `json:"has_body"`
	Parameters  []EndpointParameter `json:"parameters"`
	Responses   []int               `json:"responses"`
}

// EndpointParameter is one parameter of an Endpoint.
type EndpointParameter struct {
	Name     string `json:"name"`
	In       string `json:"in"`
	Required bool   `json:"required"`
	Type     string `json:"type"`
}

// Target is what a Reconnaissance producer was asked to inspect: a page URL
// for the browser-driven path, or an OpenAPI document for the spec-driven
// one. Exactly one of the two should be set.
type Target struct {
	URL         string
	OpenAPISpec []byte
}

// Result is the structural input handed to the Generator. Exactly one of
// Page/Endpoints is populated, matching which producer ran.
type Result struct {
	Page      *PageStructure
	Endpoints []Endpoint
}

// Reconnaissance is the structural-input producer interface the Generator
// depends on. The browser-driven implementation is an external collaborator
// (a browser driver) and is out of scope here; OpenAPIReconnaissance is the
// concrete implementation this repository ships.
type Reconnaissance interface {
	Inspect(ctx context.Context, target Target) (*Result, error)
}
