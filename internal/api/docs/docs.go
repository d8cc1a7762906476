// Package docs registers the swagger spec of the status API.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/processes": {
            "get": {
                "description": "Completed and total form counts for every synced process",
                "produces": ["application/json"],
                "tags": ["processes"],
                "summary": "List processes",
                "responses": {
                    "200": {
                        "description": "Process progress",
                        "schema": {"type": "array", "items": {"$ref": "#/definitions/model.ProcessProgress"}}
                    },
                    "500": {"description": "Internal server error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/processes/{id}/progress": {
            "get": {
                "description": "Completed and total form counts for one process",
                "produces": ["application/json"],
                "tags": ["processes"],
                "summary": "Get process progress",
                "parameters": [{"type": "integer", "description": "Process ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Process progress", "schema": {"$ref": "#/definitions/model.ProcessProgress"}},
                    "400": {"description": "Invalid process ID", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Process not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/processes/{id}/enable": {
            "post": {
                "produces": ["application/json"],
                "tags": ["processes"],
                "summary": "Enable process",
                "parameters": [{"type": "integer", "description": "Process ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Process enabled", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Process not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/processes/{id}/disable": {
            "post": {
                "produces": ["application/json"],
                "tags": ["processes"],
                "summary": "Disable process",
                "parameters": [{"type": "integer", "description": "Process ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Process disabled", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Process not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List runs",
                "parameters": [{"type": "integer", "default": 20, "description": "Maximum number of runs", "name": "limit", "in": "query"}],
                "responses": {
                    "200": {"description": "Run history", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal server error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Run", "schema": {"$ref": "#/definitions/model.RunRecord"}},
                    "400": {"description": "Run ID is required", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "model.ProcessProgress": {
            "type": "object",
            "properties": {
                "process_id": {"type": "integer"},
                "name": {"type": "string"},
                "enabled": {"type": "boolean"},
                "completed": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "model.RunRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "status": {"type": "string", "enum": ["running", "completed", "rate_limited", "failed"]},
                "exported": {"type": "integer"},
                "started_at": {"type": "string"},
                "finished_at": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Cube Export Status API",
	Description:      "Export progress and run history of the Cube forms exporter.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
