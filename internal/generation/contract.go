package generation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// contract is the compiled JSON Schema one stage's document must satisfy.
// Contracts are compiled once at init; a schema that fails to compile is a
// programming error.
type contract struct {
	version int
	source  string
	schema  *jsonschema.Schema
}

func mustContract(version int, source string) *contract {
	compiler := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(source))
	if err != nil {
		panic(fmt.Sprintf("generation: unmarshal contract schema: %v", err))
	}
	const url = "rematrix://contract.json"
	if err := compiler.AddResource(url, doc); err != nil {
		panic(fmt.Sprintf("generation: add contract schema: %v", err))
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("generation: compile contract schema: %v", err))
	}
	return &contract{version: version, source: source, schema: schema}
}

// validate checks a document against the contract, flattening the validation
// tree into one readable message.
func (c *contract) validate(raw json.RawMessage) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	if err := c.schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return errors.New(strings.Join(violations(verr), "; "))
		}
		return err
	}
	return nil
}

// violations collects leaf messages with their instance locations.
func violations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{loc + ": " + verr.Error()}
	}
	var out []string
	for _, cause := range verr.Causes {
		out = append(out, violations(cause)...)
	}
	return out
}
