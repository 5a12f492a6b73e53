package http

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIYAML []byte

// openAPIDocument is converted from the embedded YAML once.
var openAPIDocument = sync.OnceValues(func() ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(openAPIYAML, &doc); err != nil {
		return nil, fmt.Errorf("parsing openapi.yaml: %w", err)
	}
	return json.MarshalIndent(stringKeys(doc), "", "  ")
})

// stringKeys rewrites YAML mappings with non-string keys so that
// encoding/json accepts them.
func stringKeys(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for k, val := range v {
			v[k] = stringKeys(val)
		}
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case []any:
		for i, val := range v {
			v[i] = stringKeys(val)
		}
		return v
	default:
		return v
	}
}

// handleOpenAPI returns the API description.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	doc, err := openAPIDocument()
	if err != nil {
		s.logger.Error("failed to load OpenAPI document", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI document")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(doc)
}
