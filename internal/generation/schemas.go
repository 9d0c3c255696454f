package generation

// Stage document contracts, version 1. These mirror the documents the
// downstream stages consume, so tightening one is a schema version bump.
const documentSchemaVersion = 1

var planContract = mustContract(documentSchemaVersion, `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["estimatedPages", "estimatedDurationSec", "style"],
  "properties": {
    "estimatedPages": {"type": "integer", "minimum": 1, "maximum": 40},
    "estimatedDurationSec": {"type": "integer", "minimum": 10, "maximum": 600},
    "style": {"type": "string", "minLength": 1},
    "questions": {"type": "array", "items": {"type": "string"}}
  }
}`)

var outlineContract = mustContract(documentSchemaVersion, `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["title", "sections"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "sections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title", "bullets"],
        "properties": {
          "title": {"type": "string", "minLength": 1},
          "bullets": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1}
          }
        }
      }
    }
  }
}`)

var storyboardContract = mustContract(documentSchemaVersion, `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["pages"],
  "properties": {
    "pages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["page", "visual", "narrationHints"],
        "properties": {
          "page": {"type": "integer", "minimum": 1},
          "visual": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1}
          },
          "narrationHints": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1}
          }
        }
      }
    }
  }
}`)

var narrationContract = mustContract(documentSchemaVersion, `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["pages"],
  "properties": {
    "pages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["page", "text"],
        "properties": {
          "page": {"type": "integer", "minimum": 1},
          "text": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`)

var pagesContract = mustContract(documentSchemaVersion, `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["theme", "slides"],
  "properties": {
    "theme": {
      "type": "object",
      "required": ["primary", "background", "text"],
      "properties": {
        "primary": {"type": "string", "minLength": 1},
        "background": {"type": "string", "minLength": 1},
        "text": {"type": "string", "minLength": 1}
      }
    },
    "slides": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title", "bullets"],
        "properties": {
          "title": {"type": "string", "minLength": 1},
          "bullets": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1}
          }
        }
      }
    }
  }
}`)
