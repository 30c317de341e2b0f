package plugin

// ManifestSchema is the JSON Schema for tool.json manifests
const ManifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "version", "main"],
  "properties": {
    "name": {
      "type": "string",
      "pattern": "^[a-z0-9][a-z0-9_-]*$",
      "description": "Tool name; must match the name the binary reports"
    },
    "version": {
      "type": "string",
      "minLength": 1,
      "description": "Semver version"
    },
    "description": {
      "type": "string"
    },
    "main": {
      "type": "string",
      "minLength": 1,
      "description": "Executable path relative to the manifest directory"
    },
    "host": {
      "type": "string",
      "description": "Semver constraint on the toolhost version (e.g. >=1.0.0)"
    }
  },
  "additionalProperties": false
}`
