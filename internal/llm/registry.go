// Package llm sits above internal/gcpclient: it owns the enumerated model
// registry, the embedding/generation facades the rest of the service
// depends on, and the structured-output helpers used for catalog metadata
// extraction and query enhancement.
package llm

import "fmt"

// Family distinguishes model providers. Only Gemini is wired today; the
// registry shape leaves room for others without a rewrite.
type Family string

const (
	FamilyGemini Family = "gemini"
)

// Mode is how a model is reached: through the regional SDK, or through the
// REST API (required for the "global" Vertex AI endpoint, which the SDK
// does not support).
type Mode string

const (
	ModeSDK  Mode = "sdk"
	ModeREST Mode = "rest"
)

// ModelSpec is one entry in the registry.
type ModelSpec struct {
	Name   string
	Family Family
	Mode   Mode
}

// registry enumerates every model this service is allowed to route an agent
// to. Resolve reports whether a name is in this set; agent creation and
// update do not call it, so llm_model is stored as given.
var registry = map[string]ModelSpec{
	"gemini-3-pro-preview":   {Name: "gemini-3-pro-preview", Family: FamilyGemini, Mode: ModeREST},
	"gemini-2.5-pro":         {Name: "gemini-2.5-pro", Family: FamilyGemini, Mode: ModeSDK},
	"gemini-2.5-flash":       {Name: "gemini-2.5-flash", Family: FamilyGemini, Mode: ModeSDK},
	"gemini-2.0-flash":       {Name: "gemini-2.0-flash", Family: FamilyGemini, Mode: ModeSDK},
}

// Resolve looks up a model by name, returning an error if it is not in the
// enumerated set.
func Resolve(name string) (ModelSpec, error) {
	spec, ok := registry[name]
	if !ok {
		return ModelSpec{}, fmt.Errorf("llm.Resolve: unknown model %q", name)
	}
	return spec, nil
}

// DefaultModel is used when an agent is created without an explicit model.
const DefaultModel = "gemini-2.5-flash"
