// Package docs registers the OpenAPI document served at /swagger/doc.json.
// It follows the layout produced by swag init from the annotations in
// internal/transport/http.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/session": {
            "get": {
                "description": "Returns the session with flow and speech device state.",
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Current interview state",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/message.Result"}}
                }
            },
            "post": {
                "description": "Discards the current session and returns a new one in the welcome phase.",
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Start a fresh session",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/message.Result"}}
                }
            }
        },
        "/session/summary": {
            "get": {
                "description": "Returns every question, answer and follow-up once the interview is complete.",
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Completed interview",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/message.Result"}},
                    "409": {"description": "Interview not complete", "schema": {"$ref": "#/definitions/message.Result"}}
                }
            }
        },
        "/session/style": {
            "post": {
                "description": "Sets the tone preset (serious, friendly, campus). Only valid before the interview begins.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Select interviewer style",
                "parameters": [
                    {"description": "Style", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.StyleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/message.Result"}},
                    "400": {"description": "Unknown style", "schema": {"$ref": "#/definitions/message.Result"}},
                    "409": {"description": "Interview already begun", "schema": {"$ref": "#/definitions/message.Result"}}
                }
            }
        },
        "/session/begin": {
            "post": {
                "description": "Speaks the greeting and, after a short pause, the first question.",
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Begin the interview",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/message.Result"}},
                    "409": {"description": "Interview already begun", "schema": {"$ref": "#/definitions/message.Result"}}
                }
            }
        },
        "/session/answer/start": {
            "post": {
                "description": "Clears and starts speech capture for the active question.",
                "produces": ["application/json"],
                "tags": ["answer"],
                "summary": "Start a spoken answer",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/message.Result"}},
                    "409": {"description": "Generating a follow-up or narrating a question", "schema": {"$ref": "#/definitions/message.Result"}}
                }
            }
        },
        "/session/answer": {
            "post": {
                "description": "Records the answer to the active question. Blocks while the next follow-up question is generated.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["answer"],
                "summary": "Submit an answer",
                "parameters": [
                    {"description": "Answer", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.AnswerRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/message.Result"}},
                    "409": {"description": "Not in the interview phase or a follow-up is being generated", "schema": {"$ref": "#/definitions/message.Result"}}
                }
            }
        },
        "/session/answer/voice": {
            "post": {
                "description": "Stops speech capture and submits its transcript.",
                "produces": ["application/json"],
                "tags": ["answer"],
                "summary": "Submit the spoken answer",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/message.Result"}},
                    "409": {"description": "Not in the interview phase or a follow-up is being generated", "schema": {"$ref": "#/definitions/message.Result"}}
                }
            }
        },
        "/session/text-mode": {
            "post": {
                "description": "Switches between voice and typed answers. The first switch to text mode must be confirmed.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["answer"],
                "summary": "Toggle typed answers",
                "parameters": [
                    {"description": "Confirmation", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/http.TextModeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/message.Result"}},
                    "428": {"description": "Confirmation required", "schema": {"$ref": "#/definitions/message.Result"}}
                }
            }
        },
        "/capture/audio": {
            "post": {
                "description": "Transcribes the clip on the server and appends it to the active capture session.",
                "consumes": ["audio/wav", "audio/webm", "audio/ogg"],
                "produces": ["application/json"],
                "tags": ["answer"],
                "summary": "Upload a recorded answer clip",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/message.Result"}},
                    "409": {"description": "No capture session is active", "schema": {"$ref": "#/definitions/message.Result"}},
                    "501": {"description": "Server-side transcription not configured", "schema": {"$ref": "#/definitions/message.Result"}},
                    "502": {"description": "Transcription failed", "schema": {"$ref": "#/definitions/message.Result"}}
                }
            }
        }
    },
    "definitions": {
        "http.StyleRequest": {
            "type": "object",
            "properties": {"style": {"type": "string", "example": "friendly"}}
        },
        "http.AnswerRequest": {
            "type": "object",
            "properties": {
                "text": {"type": "string", "example": "我在上一家公司负责支付系统的对账模块。"},
                "source": {"type": "string", "example": "text"}
            }
        },
        "http.TextModeRequest": {
            "type": "object",
            "properties": {"confirmed": {"type": "boolean"}}
        },
        "interview.Followup": {
            "type": "object",
            "properties": {
                "question": {"type": "string"},
                "answer": {"type": "string"},
                "answer_source": {"type": "string", "enum": ["voice", "text"]}
            }
        },
        "interview.QaItem": {
            "type": "object",
            "properties": {
                "question": {"type": "string"},
                "answer": {"type": "string"},
                "answer_source": {"type": "string", "enum": ["voice", "text"]},
                "followups": {"type": "array", "items": {"$ref": "#/definitions/interview.Followup"}}
            }
        },
        "capture.State": {
            "type": "object",
            "properties": {
                "supported": {"type": "boolean"},
                "status": {"type": "string", "enum": ["idle", "listening", "stopped", "error"]},
                "transcript": {"type": "string"},
                "partial": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "interview.Snapshot": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "phase": {"type": "string", "enum": ["welcome", "interview", "summary"]},
                "current_index": {"type": "integer"},
                "sub_slot": {"type": "string", "enum": ["main", "followup1", "followup2"]},
                "style": {"type": "string", "enum": ["serious", "friendly", "campus"]},
                "items": {"type": "array", "items": {"$ref": "#/definitions/interview.QaItem"}},
                "current_question": {"type": "string"},
                "generating": {"type": "boolean"},
                "text_mode": {"type": "boolean"},
                "followups_enabled": {"type": "boolean"},
                "has_credential": {"type": "boolean"},
                "capture": {"$ref": "#/definitions/capture.State"},
                "playback": {"type": "string", "enum": ["idle", "speaking", "stopped", "error"]},
                "playback_supported": {"type": "boolean"}
            }
        },
        "message.Result": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "action": {"type": "string"},
                "snapshot": {"$ref": "#/definitions/interview.Snapshot"},
                "text_mode": {"type": "boolean"},
                "transcript": {"type": "string"},
                "error": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "kora API",
	Description:      "Chinese voice interview agent: session actions, answer capture and summaries.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
