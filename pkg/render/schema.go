package render

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/invopop/jsonschema"

	"github.com/codeGROOVE-dev/merge-ready/pkg/readiness"
)

// Schema writes the JSON Schema of readiness.Report.
func Schema(w io.Writer) error {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	s := reflector.Reflect(&readiness.Report{})
	s.Title = "merge-ready report"

	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
