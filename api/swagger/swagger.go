package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Care Roster API",
        "description": "Monthly day/night caregiver rosters with cross-patient conflict checks",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Rosters", "description": "Roster generation, validation and storage"},
        {"name": "Batches", "description": "Background roster generation for several patients"}
    ],
    "paths": {
        "/rosters/generate": {
            "post": {
                "tags": ["Rosters"],
                "summary": "Generate a roster proposal",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateRosterRequest"}}
                ],
                "responses": {
                    "200": {"description": "Proposal", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Patient or worker unusable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rosters/validate": {
            "post": {
                "tags": ["Rosters"],
                "summary": "Validate a roster",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ValidateRosterRequest"}}
                ],
                "responses": {
                    "200": {"description": "Validation result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rosters/save": {
            "post": {
                "tags": ["Rosters"],
                "summary": "Save a proposal or an edited roster",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SaveRosterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Stored plan", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Shift rule violation", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "410": {"description": "Proposal expired", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rosters": {
            "get": {
                "tags": ["Rosters"],
                "summary": "List stored rosters",
                "parameters": [
                    {"name": "patientId", "in": "query", "type": "string"},
                    {"name": "year", "in": "query", "type": "integer"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Rosters", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rosters/{patientId}/{year}/{month}": {
            "get": {
                "tags": ["Rosters"],
                "summary": "Get a stored roster",
                "parameters": [
                    {"name": "patientId", "in": "path", "required": true, "type": "string"},
                    {"name": "year", "in": "path", "required": true, "type": "integer"},
                    {"name": "month", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Stored plan", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Rosters"],
                "summary": "Delete a stored roster",
                "parameters": [
                    {"name": "patientId", "in": "path", "required": true, "type": "string"},
                    {"name": "year", "in": "path", "required": true, "type": "integer"},
                    {"name": "month", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rosters/{patientId}/{year}/{month}/export": {
            "get": {
                "tags": ["Rosters"],
                "summary": "Download a stored roster as CSV",
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "patientId", "in": "path", "required": true, "type": "string"},
                    {"name": "year", "in": "path", "required": true, "type": "integer"},
                    {"name": "month", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "CSV file", "schema": {"type": "file"}}
                }
            }
        },
        "/rosters/batch": {
            "post": {
                "tags": ["Batches"],
                "summary": "Queue roster generation for several patients",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BatchRosterRequest"}}
                ],
                "responses": {
                    "202": {"description": "Batch accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Queue full", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rosters/batch/{id}": {
            "get": {
                "tags": ["Batches"],
                "summary": "Get batch progress",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Batch status", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rosters/exports/download": {
            "get": {
                "tags": ["Batches"],
                "summary": "Download a batch export via signed token",
                "security": [],
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "CSV file", "schema": {"type": "file"}},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "WorkerPreference": {
            "type": "object",
            "required": ["workerId"],
            "properties": {
                "workerId": {"type": "string"},
                "allowDay": {"type": "boolean"},
                "allowNight": {"type": "boolean"},
                "ratio": {"type": "number"},
                "days": {"type": "number"},
                "priority": {"type": "boolean"},
                "spreadAcrossPatients": {"type": "boolean"},
                "committedHours": {"type": "number"}
            }
        },
        "RosterAssignment": {
            "type": "object",
            "required": ["date", "shift"],
            "properties": {
                "date": {"type": "string", "format": "date"},
                "shift": {"type": "string", "enum": ["day", "night"]},
                "workerId": {"type": "string"},
                "workerName": {"type": "string"},
                "note": {"type": "string"}
            }
        },
        "GenerateRosterRequest": {
            "type": "object",
            "required": ["patientId", "year", "month", "preferences"],
            "properties": {
                "patientId": {"type": "string"},
                "year": {"type": "integer"},
                "month": {"type": "integer"},
                "preferences": {"type": "array", "items": {"$ref": "#/definitions/WorkerPreference"}},
                "seed": {"type": "array", "items": {"$ref": "#/definitions/RosterAssignment"}}
            }
        },
        "ValidateRosterRequest": {
            "type": "object",
            "required": ["patientId", "year", "month", "assignments"],
            "properties": {
                "patientId": {"type": "string"},
                "year": {"type": "integer"},
                "month": {"type": "integer"},
                "assignments": {"type": "array", "items": {"$ref": "#/definitions/RosterAssignment"}}
            }
        },
        "SaveRosterRequest": {
            "type": "object",
            "properties": {
                "proposalId": {"type": "string"},
                "patientId": {"type": "string"},
                "year": {"type": "integer"},
                "month": {"type": "integer"},
                "assignments": {"type": "array", "items": {"$ref": "#/definitions/RosterAssignment"}},
                "acceptRelaxed": {"type": "boolean"}
            }
        },
        "BatchRosterRequest": {
            "type": "object",
            "required": ["year", "month", "patients"],
            "properties": {
                "year": {"type": "integer"},
                "month": {"type": "integer"},
                "export": {"type": "boolean"},
                "acceptRelaxed": {"type": "boolean"},
                "patients": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "patientId": {"type": "string"},
                            "preferences": {"type": "array", "items": {"$ref": "#/definitions/WorkerPreference"}}
                        }
                    }
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
