package persist

import (
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const documentSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "shcov coverage document",
  "type": "object",
  "required": ["version", "files"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "tool": {"type": "string"},
    "files": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["path", "fingerprint", "lines", "hits"],
        "properties": {
          "path": {"type": "string", "minLength": 1},
          "fingerprint": {"type": "string", "pattern": "^[0-9a-f]{32}$"},
          "lines": {"type": "integer", "minimum": 0},
          "hits": {"type": "array", "items": {"type": "integer", "minimum": 0}}
        }
      }
    }
  }
}`

// documentSchema compiles the embedded schema once. The schema is a constant,
// so a compile failure is a programming error.
var documentSchema = sync.OnceValue(func() *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchemaJSON))
	if err != nil {
		panic("persist: invalid document schema: " + err.Error())
	}

	return schema
})
