package validation

// templateSchema is the structural contract for raw template snapshot JSON,
// checked before the payload is decoded into models. Cross-entity rules
// (api_name references, operator applicability) are checked afterwards on the
// decoded snapshot.
const templateSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "tasks"],
  "properties": {
    "id": {"type": "string"},
    "name": {"type": "string", "minLength": 1},
    "wf_name_template": {"type": "string"},
    "version": {"type": "integer", "minimum": 0},
    "kickoff": {
      "type": "object",
      "properties": {
        "description": {"type": "string"},
        "fields": {"type": "array", "items": {"$ref": "#/definitions/field"}}
      }
    },
    "tasks": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/definitions/task"}
    }
  },
  "definitions": {
    "apiName": {"type": "string", "minLength": 1, "pattern": "^[a-zA-Z0-9_-]+$"},
    "task": {
      "type": "object",
      "required": ["api_name", "number", "name", "raw_performers"],
      "properties": {
        "api_name": {"$ref": "#/definitions/apiName"},
        "number": {"type": "integer", "minimum": 1},
        "name": {"type": "string", "minLength": 1},
        "description": {"type": "string"},
        "require_completion_by_all": {"type": "boolean"},
        "delay": {"type": "integer", "minimum": 0},
        "raw_performers": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "required": ["type", "source_id"],
            "properties": {
              "type": {"enum": ["user", "group", "field"]},
              "source_id": {"type": "string", "minLength": 1}
            }
          }
        },
        "fields": {"type": "array", "items": {"$ref": "#/definitions/field"}},
        "checklists": {"type": "array", "items": {"$ref": "#/definitions/checklist"}},
        "conditions": {"type": "array", "items": {"$ref": "#/definitions/condition"}}
      }
    },
    "field": {
      "type": "object",
      "required": ["api_name", "name", "type"],
      "properties": {
        "api_name": {"$ref": "#/definitions/apiName"},
        "name": {"type": "string", "minLength": 1},
        "type": {
          "enum": ["string", "text", "number", "date", "url", "dropdown", "radio", "checkbox", "user", "file"]
        },
        "is_required": {"type": "boolean"},
        "order": {"type": "integer"},
        "selections": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["api_name", "value"],
            "properties": {
              "api_name": {"$ref": "#/definitions/apiName"},
              "value": {"type": "string", "minLength": 1}
            }
          }
        }
      }
    },
    "checklist": {
      "type": "object",
      "required": ["api_name"],
      "properties": {
        "api_name": {"$ref": "#/definitions/apiName"},
        "selections": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["api_name", "value"],
            "properties": {
              "api_name": {"$ref": "#/definitions/apiName"},
              "value": {"type": "string", "minLength": 1}
            }
          }
        }
      }
    },
    "condition": {
      "type": "object",
      "required": ["api_name", "action", "rules"],
      "properties": {
        "api_name": {"$ref": "#/definitions/apiName"},
        "action": {"enum": ["skip_task", "end_workflow"]},
        "order": {"type": "integer"},
        "rules": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "required": ["api_name", "predicates"],
            "properties": {
              "api_name": {"$ref": "#/definitions/apiName"},
              "predicates": {
                "type": "array",
                "minItems": 1,
                "items": {
                  "type": "object",
                  "required": ["api_name", "operator", "field_type"],
                  "properties": {
                    "api_name": {"$ref": "#/definitions/apiName"},
                    "operator": {
                      "enum": ["exist", "not_exist", "completed", "equal", "not_equal", "contain", "not_contain", "more_than", "less_than"]
                    },
                    "field_type": {
                      "enum": ["string", "text", "number", "date", "url", "dropdown", "radio", "checkbox", "user", "file", "kickoff", "task"]
                    },
                    "field": {"type": "string"},
                    "value": {"type": "string"}
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`
