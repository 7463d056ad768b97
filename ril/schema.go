package ril

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"i4.energy/across/modemctl/adapter"
)

const emptySchema = `{"type": ["object", "null"], "maxProperties": 0}`

// schemas holds the request blob schema per kind. Kinds without an entry
// take no parameters.
var schemas = map[string]string{
	KindSetupDataCall: `{
		"type": "object",
		"required": ["apn"],
		"additionalProperties": false,
		"properties": {
			"apn": {"type": "string", "minLength": 1, "maxLength": 100},
			"pdp_type": {"enum": ["IP", "IPV6", "IPV4V6"]},
			"auth": {"type": "integer", "minimum": 0, "maximum": 3},
			"username": {"type": "string"},
			"password": {"type": "string"},
			"emergency": {"type": "boolean"}
		}
	}`,
	KindDeactivateDataCall: `{
		"type": "object",
		"required": ["cid"],
		"additionalProperties": false,
		"properties": {
			"cid": {"type": "integer", "minimum": 1}
		}
	}`,
	string(adapter.KindSIMIO): `{
		"type": "object",
		"required": ["command", "fileid"],
		"additionalProperties": false,
		"properties": {
			"command": {"type": "integer", "minimum": 0, "maximum": 255},
			"fileid": {"type": "integer", "minimum": 0, "maximum": 65535},
			"p1": {"type": "integer", "minimum": 0, "maximum": 255},
			"p2": {"type": "integer", "minimum": 0, "maximum": 255},
			"p3": {"type": "integer", "minimum": 0, "maximum": 255},
			"data": {"type": "string", "pattern": "^([0-9A-Fa-f]{2})*$"}
		}
	}`,
	string(adapter.KindRadioPower): `{
		"type": "object",
		"required": ["on"],
		"additionalProperties": false,
		"properties": {
			"on": {"type": "boolean"}
		}
	}`,
	string(adapter.KindSendSMS): `{
		"type": "object",
		"required": ["pdu"],
		"additionalProperties": false,
		"properties": {
			"smsc": {"type": "string", "pattern": "^([0-9A-Fa-f]{2})*$"},
			"pdu": {"type": "string", "minLength": 2, "pattern": "^([0-9A-Fa-f]{2})+$"}
		}
	}`,
	string(adapter.KindSetPreferredNetwork): `{
		"type": "object",
		"required": ["type"],
		"additionalProperties": false,
		"properties": {
			"type": {"enum": ["gsm-wcdma", "gsm-only", "wcdma", "lte-only", "lte-gsm-wcdma", "lte-wcdma"]}
		}
	}`,
}

var (
	compileOnce sync.Once
	compiled    map[string]*gojsonschema.Schema
	compileErr  error
)

func compileSchemas() {
	compiled = make(map[string]*gojsonschema.Schema, len(schemas)+1)
	for kind, src := range schemas {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			compileErr = fmt.Errorf("ril: schema for %s: %w", kind, err)
			return
		}
		compiled[kind] = s
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(emptySchema))
	if err != nil {
		compileErr = fmt.Errorf("ril: empty schema: %w", err)
		return
	}
	compiled[""] = s
}

// validate checks blob against the schema of kind. An empty blob is
// validated as null.
func validate(kind string, blob []byte) error {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return compileErr
	}
	schema, ok := compiled[kind]
	if !ok {
		schema = compiled[""]
	}
	if len(blob) == 0 {
		blob = []byte("null")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(blob))
	if err != nil {
		return fmt.Errorf("%w: %v", adapter.ErrInvalidParams, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.Field()+": "+desc.Description())
	}
	return fmt.Errorf("%w: %s", adapter.ErrInvalidParams, strings.Join(msgs, "; "))
}
