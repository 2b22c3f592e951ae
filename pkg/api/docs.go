package api

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
        "/health": {"get": {"tags": ["health"], "summary": "Health check endpoint", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
        "/instruments": {"get": {"tags": ["info"], "summary": "List the drum lanes", "responses": {"200": {"description": "OK"}}}},
        "/formats": {"get": {"tags": ["info"], "summary": "List supported formats", "responses": {"200": {"description": "OK"}}}},
        "/daily": {"get": {"tags": ["puzzle"], "summary": "Daily puzzle beat",
            "parameters": [{"name": "number", "in": "query", "type": "integer", "required": false}],
            "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}},
        "/challenge/{level}": {"get": {"tags": ["puzzle"], "summary": "Challenge level beat",
            "parameters": [{"name": "level", "in": "path", "type": "integer", "required": true}],
            "responses": {"200": {"description": "OK"}}}},
        "/export/{format}": {"post": {"tags": ["convert"], "summary": "Export a beat",
            "consumes": ["application/json"], "produces": ["application/octet-stream"],
            "parameters": [{"name": "format", "in": "path", "type": "string", "enum": ["midi", "wav", "json"], "required": true},
                {"name": "beat", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BeatRequest"}}],
            "responses": {"200": {"description": "File", "schema": {"type": "file"}}, "400": {"description": "Bad Request"}}}},
        "/import": {"post": {"tags": ["convert"], "summary": "Import a beat",
            "consumes": ["multipart/form-data"],
            "parameters": [{"name": "file", "in": "formData", "type": "file", "required": true}],
            "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}},
        "/share": {
            "post": {"tags": ["share"], "summary": "Build a share link",
                "parameters": [{"name": "beat", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BeatRequest"}}],
                "responses": {"200": {"description": "OK"}}},
            "get": {"tags": ["share"], "summary": "Open a share link",
                "parameters": [{"name": "beat", "in": "query", "type": "string"}, {"name": "link", "in": "query", "type": "string"}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}},
        "/grade": {"post": {"tags": ["puzzle"], "summary": "Grade a guess",
            "parameters": [{"name": "guess", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GradeRequest"}}],
            "responses": {"200": {"description": "OK"}}}},
        "/beats": {
            "get": {"tags": ["library"], "summary": "List saved beats", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["library"], "summary": "Save a new beat",
                "parameters": [{"name": "beat", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BeatRequest"}}],
                "responses": {"201": {"description": "Created"}}}},
        "/beats/{key}": {
            "get": {"tags": ["library"], "summary": "Load a beat",
                "parameters": [{"name": "key", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}},
            "put": {"tags": ["library"], "summary": "Overwrite a beat",
                "parameters": [{"name": "key", "in": "path", "type": "string", "required": true},
                    {"name": "beat", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BeatRequest"}}],
                "responses": {"200": {"description": "OK"}}},
            "delete": {"tags": ["library"], "summary": "Delete a beat",
                "parameters": [{"name": "key", "in": "path", "type": "string", "required": true}],
                "responses": {"204": {"description": "No Content"}}}}
    },
    "definitions": {
        "BeatRequest": {"type": "object", "properties": {
            "name": {"type": "string"},
            "bpm": {"type": "integer"},
            "grid": {"type": "string", "description": "112 characters of 0/1, row-major"},
            "pattern": {"type": "array", "items": {"type": "array", "items": {"type": "boolean"}}}}},
        "GradeRequest": {"type": "object", "required": ["guess"], "properties": {
            "guess": {"type": "string"},
            "target": {"type": "string"},
            "number": {"type": "integer"}}}
    }
}`

// SwaggerInfo holds the exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Beatgrid API",
	Description:      "Drum grid export, daily puzzle beats and share links",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
