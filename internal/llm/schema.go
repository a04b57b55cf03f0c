package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects a closed JSON schema from T. Every property is required and
// additional properties are rejected, which is what strict structured-output
// modes expect.
func SchemaFor[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: false,
		ExpandedStruct:             true,
	}
	var v T
	return reflector.Reflect(v)
}

// SchemaInstruction renders the system text used by providers without native
// schema enforcement.
func SchemaInstruction(schema *jsonschema.Schema) string {
	if schema == nil {
		return ""
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return "Respond with a single JSON object and nothing else."
	}
	return "Respond with a single JSON object and nothing else. The object MUST validate against this JSON schema:\n" + string(raw)
}

// ErrNoJSONObject is returned when a model reply contains no JSON object.
var ErrNoJSONObject = errors.New("llm: response did not contain a JSON object")

// ExtractJSON trims any prose or code fences a model wrapped around a JSON object.
func ExtractJSON(text string) (string, error) {
	content := strings.TrimSpace(text)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSONObject
	}
	return content[start : end+1], nil
}

// DecodeJSON extracts and unmarshals a JSON object reply into out.
func DecodeJSON(text string, out any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), out)
}
