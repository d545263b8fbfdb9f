package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "WanderDesk API",
        "description": "Travel agency back office with workflow automation",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Auth", "description": "Login, token refresh and session management"},
        {"name": "Users", "description": "Agency member directory"},
        {"name": "Clients", "description": "Client book"},
        {"name": "Trips", "description": "Trip lifecycle, travelers, feedback and readiness"},
        {"name": "Bookings", "description": "Trip components"},
        {"name": "Tasks", "description": "Manual and system-generated work items"},
        {"name": "Notifications", "description": "In-app notification feed"},
        {"name": "Approvals", "description": "Guarded action workflow"},
        {"name": "Automation", "description": "Rule scans and the deadline task generator"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and receive a token pair",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate the refresh token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Auth"],
                "summary": "Revoke the refresh token",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/trips": {
            "get": {
                "tags": ["Trips"],
                "summary": "List trips",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "stage", "in": "query", "type": "string"},
                    {"name": "owner", "in": "query", "type": "string"},
                    {"name": "client", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Trips"],
                "summary": "Open a trip",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "Idempotency-Key", "in": "header", "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateTripRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/trips/{id}/stage": {
            "post": {
                "tags": ["Trips"],
                "summary": "Move a trip forward in its lifecycle",
                "description": "Backward moves, cancellation of booked or traveling trips and reopening a completed trip require an approval request instead.",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ChangeStageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Stage moved underneath the caller"}
                }
            }
        },
        "/trips/{id}/readiness": {
            "get": {
                "tags": ["Trips"],
                "summary": "Evaluate travel readiness",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ReadinessReport"}}
                }
            }
        },
        "/approvals": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Submit an approval request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "Idempotency-Key", "in": "header", "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateApprovalRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "A pending request already exists for this entity and action"}
                }
            },
            "get": {
                "tags": ["Approvals"],
                "summary": "List approval requests",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "entityType", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/approvals/{id}/approve": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Approve and execute a pending request (admin)",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "Executed, or marked execution_failed on drift"},
                    "403": {"description": "Not an admin"},
                    "409": {"description": "Request is not pending"}
                }
            }
        },
        "/automation/run": {
            "post": {
                "tags": ["Automation"],
                "summary": "Run every rule and the task generator once (admin)",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Sweep summary", "schema": {"$ref": "#/definitions/AutomationSummary"}}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List the caller's notifications",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "unread", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tasks": {
            "post": {
                "tags": ["Tasks"],
                "summary": "Create a manual task",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "Idempotency-Key", "in": "header", "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateTaskRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "CreateTripRequest": {
            "type": "object",
            "properties": {
                "clientId": {"type": "string"},
                "title": {"type": "string"},
                "destination": {"type": "string"},
                "travelStartDate": {"type": "string", "format": "date-time"},
                "travelEndDate": {"type": "string", "format": "date-time"}
            },
            "required": ["clientId", "title", "destination"]
        },
        "ChangeStageRequest": {
            "type": "object",
            "properties": {
                "fromStage": {"type": "string"},
                "toStage": {"type": "string"}
            },
            "required": ["fromStage", "toStage"]
        },
        "CreateApprovalRequest": {
            "type": "object",
            "properties": {
                "actionType": {"type": "string", "enum": ["confirm_booking", "mark_payment_received", "change_commission_status", "stage_change", "reopen_trip", "modify_locked_trip"]},
                "entityId": {"type": "string"},
                "payload": {"type": "object"},
                "note": {"type": "string"}
            },
            "required": ["actionType", "entityId"]
        },
        "CreateTaskRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "category": {"type": "string"},
                "priority": {"type": "string", "enum": ["normal", "urgent"]},
                "dueDate": {"type": "string", "format": "date-time"},
                "tripId": {"type": "string"},
                "bookingId": {"type": "string"},
                "assigneeId": {"type": "string"}
            },
            "required": ["title"]
        },
        "ReadinessReport": {
            "type": "object",
            "properties": {
                "tripId": {"type": "string"},
                "isComplete": {"type": "boolean"},
                "missingItems": {"type": "array", "items": {"type": "string"}}
            }
        },
        "AutomationSummary": {
            "type": "object",
            "properties": {
                "ranAt": {"type": "string", "format": "date-time"},
                "duration": {"type": "string"},
                "created": {"type": "integer"},
                "failed": {"type": "integer"},
                "results": {"type": "array", "items": {"type": "object"}}
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
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
