package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	payloadSchemaURL  = "https://streamable.local/schema/frame-job.json"
	envelopeSchemaURL = "https://streamable.local/schema/queued-job.json"
)

// payloadSchema describes a frame job as the extension produces it
const payloadSchema = `{
  "type": "object",
  "properties": {
    "jobId": {"type": "string"},
    "streamId": {"type": "string"},
    "frameUrl": {"type": "string", "minLength": 1},
    "frameBuffer": {
      "oneOf": [
        {"type": "string", "minLength": 1},
        {
          "type": "object",
          "required": ["type", "data"],
          "properties": {
            "type": {"const": "Buffer"},
            "data": {"type": "array", "minItems": 1, "items": {"type": "integer", "minimum": 0, "maximum": 255}}
          }
        }
      ]
    },
    "capturedAt": {"type": "string"},
    "metadata": {"type": "object"}
  },
  "anyOf": [
    {"required": ["frameUrl"]},
    {"required": ["frameBuffer"]}
  ]
}`

// envelopeSchema describes the {queue}:data hash entry wrapping a payload
const envelopeSchema = `{
  "type": "object",
  "required": ["id", "payload"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "type": {"type": "string"},
    "attempts": {"type": "integer", "minimum": 0},
    "maxRetries": {"type": "integer", "minimum": 0},
    "payload": {"$ref": "frame-job.json"}
  }
}`

type schemas struct {
	payload  *jsonschema.Schema
	envelope *jsonschema.Schema
}

var loadSchemas = sync.OnceValues(func() (*schemas, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(payloadSchemaURL, strings.NewReader(payloadSchema)); err != nil {
		return nil, fmt.Errorf("add payload schema: %w", err)
	}
	if err := compiler.AddResource(envelopeSchemaURL, strings.NewReader(envelopeSchema)); err != nil {
		return nil, fmt.Errorf("add envelope schema: %w", err)
	}

	payload, err := compiler.Compile(payloadSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}
	envelope, err := compiler.Compile(envelopeSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile envelope schema: %w", err)
	}
	return &schemas{payload: payload, envelope: envelope}, nil
})

// ValidatePayload checks a frame job payload before it is decoded
func ValidatePayload(data []byte) error {
	s, err := loadSchemas()
	if err != nil {
		return err
	}
	return validate(s.payload, data)
}

// ValidateQueuedJob checks a {queue}:data entry before it is decoded
func ValidateQueuedJob(data []byte) error {
	s, err := loadSchemas()
	if err != nil {
		return err
	}
	return validate(s.envelope, data)
}

func validate(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal job: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("job does not match schema: %w", err)
	}
	return nil
}
