package summary

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/zhouzirui/medichat/backend/internal/model/chat"
)

// Schema describes the JSON shape the summary prompt asks the model for.
func Schema() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&chat.DiagnosisSummary{})

	raw, err := schema.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal summary schema: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode summary schema: %w", err)
	}
	return out, nil
}
