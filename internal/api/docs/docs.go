// Package docs Swagger 文档（由 handler 注释维护）
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
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"}
    },
    "paths": {
        "/api/devices": {
            "get": {"tags": ["devices"], "summary": "设备列表", "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["devices"], "summary": "注册设备", "consumes": ["application/json"],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/api.RegisterDeviceRequest"}}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}}}
        },
        "/api/devices/{serial}": {
            "get": {"tags": ["devices"], "summary": "设备状态",
                "parameters": [{"type": "integer", "name": "serial", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}},
            "delete": {"tags": ["devices"], "summary": "注销设备",
                "parameters": [{"type": "integer", "name": "serial", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}, "404": {"description": "Not Found"}}}
        },
        "/api/devices/{serial}/power": {
            "post": {"tags": ["commands"], "summary": "开关机",
                "parameters": [{"type": "integer", "name": "serial", "in": "path", "required": true},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/api.PowerRequest"}}],
                "responses": {"202": {"description": "Accepted"}}}
        },
        "/api/devices/{serial}/mode": {
            "post": {"tags": ["commands"], "summary": "切换模式",
                "parameters": [{"type": "integer", "name": "serial", "in": "path", "required": true},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/api.ModeRequest"}}],
                "responses": {"202": {"description": "Accepted"}, "409": {"description": "关机或未绑定"}}}
        },
        "/api/devices/{serial}/scene": {
            "post": {"tags": ["commands"], "summary": "切换场景",
                "parameters": [{"type": "integer", "name": "serial", "in": "path", "required": true},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/api.SceneRequest"}}],
                "responses": {"202": {"description": "Accepted"}}}
        },
        "/api/devices/{serial}/color": {
            "post": {"tags": ["commands"], "summary": "设置颜色",
                "parameters": [{"type": "integer", "name": "serial", "in": "path", "required": true},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/api.ColorRequest"}}],
                "responses": {"202": {"description": "Accepted"}}}
        },
        "/api/devices/{serial}/input": {
            "post": {"tags": ["commands"], "summary": "切换输入口",
                "parameters": [{"type": "integer", "name": "serial", "in": "path", "required": true},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/api.InputRequest"}}],
                "responses": {"202": {"description": "Accepted"}, "400": {"description": "Sidekick 不支持"}}}
        },
        "/api/devices/{serial}/refresh": {
            "post": {"tags": ["commands"], "summary": "请求状态刷新",
                "parameters": [{"type": "integer", "name": "serial", "in": "path", "required": true}],
                "responses": {"202": {"description": "Accepted"}}}
        }
    },
    "definitions": {
        "api.RegisterDeviceRequest": {"type": "object", "required": ["serial", "kind"],
            "properties": {"serial": {"type": "integer"}, "kind": {"type": "string", "enum": ["hd", "4k", "sidekick"]}, "name": {"type": "string"}}},
        "api.PowerRequest": {"type": "object", "required": ["on"], "properties": {"on": {"type": "boolean"}}},
        "api.ModeRequest": {"type": "object", "required": ["mode"], "properties": {"mode": {"type": "string", "enum": ["VIDEO", "MUSIC", "AMBIENT"]}}},
        "api.SceneRequest": {"type": "object", "required": ["scene"], "properties": {"scene": {"type": "string"}}},
        "api.ColorRequest": {"type": "object", "properties": {
            "r": {"type": "integer"}, "g": {"type": "integer"}, "b": {"type": "integer"},
            "hex": {"type": "string"},
            "hue": {"type": "number"}, "saturation": {"type": "number"}, "brightness": {"type": "number"}}},
        "api.InputRequest": {"type": "object", "required": ["input"], "properties": {"input": {"type": "integer", "minimum": 0, "maximum": 2}}}
    }
}`

// SwaggerInfo 文档元信息
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "DreamScreen Gateway API",
	Description:      "DreamScreen 设备管理与能力命令",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
