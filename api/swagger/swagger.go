package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Clinic Scheduling API",
        "description": "Appointment scheduling core: shifts, availability, conflict-guarded booking and slot recommendations",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Appointments", "description": "Appointment lifecycle and conflict-guarded booking"},
        {"name": "Availability", "description": "Provider slot availability"},
        {"name": "Shifts", "description": "Provider working hours"},
        {"name": "Advisor", "description": "Slot recommendations and conflict dry-runs"},
        {"name": "Notifications", "description": "Booking confirmations, reminders and alerts"},
        {"name": "Exports", "description": "Day sheet exports"}
    ],
    "paths": {
        "/appointments": {
            "get": {
                "tags": ["Appointments"],
                "summary": "List appointments",
                "parameters": [
                    {"name": "X-Organization-ID", "in": "header", "required": true, "type": "integer"},
                    {"name": "providerId", "in": "query", "type": "integer"},
                    {"name": "patientId", "in": "query", "type": "integer"},
                    {"name": "date", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Appointments"],
                "summary": "Book an appointment",
                "parameters": [
                    {"name": "X-Organization-ID", "in": "header", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BookingRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Provider unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/appointments/{id}": {
            "get": {
                "tags": ["Appointments"],
                "summary": "Get appointment",
                "parameters": [
                    {"name": "X-Organization-ID", "in": "header", "required": true, "type": "integer"},
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/appointments/{id}/cancel": {
            "post": {
                "tags": ["Appointments"],
                "summary": "Cancel appointment",
                "parameters": [
                    {"name": "X-Organization-ID", "in": "header", "required": true, "type": "integer"},
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/appointments/{id}/reschedule": {
            "post": {
                "tags": ["Appointments"],
                "summary": "Reschedule appointment",
                "parameters": [
                    {"name": "X-Organization-ID", "in": "header", "required": true, "type": "integer"},
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RescheduleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/appointments/{id}/auto-reschedule": {
            "post": {
                "tags": ["Advisor"],
                "summary": "Move an appointment to the next recommendable slot",
                "parameters": [
                    {"name": "X-Organization-ID", "in": "header", "required": true, "type": "integer"},
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List a user's notifications, newest first",
                "parameters": [
                    {"name": "user_id", "in": "query", "required": true, "type": "integer"},
                    {"name": "limit", "in": "query", "required": false, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/availability/providers": {
            "get": {
                "tags": ["Availability"],
                "summary": "List providers able to take a booking on a date",
                "parameters": [
                    {"name": "date", "in": "query", "required": true, "type": "string"},
                    {"name": "start", "in": "query", "required": false, "type": "string"},
                    {"name": "duration", "in": "query", "required": false, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/providers/{id}/availability": {
            "get": {
                "tags": ["Availability"],
                "summary": "Slot availability for a date",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "date", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Provider unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/providers/{id}/availability/check": {
            "get": {
                "tags": ["Availability"],
                "summary": "Check contiguous free time from a start slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "date", "in": "query", "required": true, "type": "string"},
                    {"name": "start", "in": "query", "required": true, "type": "string"},
                    {"name": "duration", "in": "query", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/providers/{id}/shifts": {
            "get": {
                "tags": ["Shifts"],
                "summary": "List custom shifts in a range",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "from", "in": "query", "required": true, "type": "string"},
                    {"name": "to", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Shifts"],
                "summary": "Create or replace a custom shift",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertCustomShiftRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/providers/{id}/shifts/{date}": {
            "delete": {
                "tags": ["Shifts"],
                "summary": "Delete a custom shift",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "date", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/providers/{id}/shifts/default": {
            "get": {
                "tags": ["Shifts"],
                "summary": "Get the recurring weekly shift",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Shifts"],
                "summary": "Create or replace the recurring weekly shift",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertDefaultShiftRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/advisor/slots": {
            "get": {
                "tags": ["Advisor"],
                "summary": "Recommend appointment slots",
                "parameters": [
                    {"name": "providerId", "in": "query", "required": true, "type": "integer"},
                    {"name": "date", "in": "query", "required": true, "type": "string"},
                    {"name": "duration", "in": "query", "required": true, "type": "integer"},
                    {"name": "patientId", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/advisor/conflicts": {
            "post": {
                "tags": ["Advisor"],
                "summary": "Dry-run conflict detection for a draft booking",
                "parameters": [
                    {"name": "X-Organization-ID", "in": "header", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BookingRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/providers/{id}/daysheet": {
            "post": {
                "tags": ["Exports"],
                "summary": "Export a provider day sheet",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "date", "in": "query", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download an exported file",
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File stream"},
                    "404": {"description": "Invalid or expired link"}
                }
            }
        }
    },
    "definitions": {
        "BookingRequest": {
            "type": "object",
            "properties": {
                "patient_id": {"type": "integer"},
                "provider_id": {"type": "integer"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "scheduled_at": {"type": "string", "example": "2025-03-10T14:00:00"},
                "duration": {"type": "integer", "enum": [15, 30, 45, 60, 90, 120]},
                "type": {"type": "string"},
                "location": {"type": "string"},
                "is_virtual": {"type": "boolean"}
            },
            "required": ["patient_id", "provider_id", "scheduled_at", "duration"]
        },
        "RescheduleRequest": {
            "type": "object",
            "properties": {
                "scheduled_at": {"type": "string", "example": "2025-03-11T09:30:00"},
                "reason": {"type": "string"}
            },
            "required": ["scheduled_at"]
        },
        "UpsertCustomShiftRequest": {
            "type": "object",
            "properties": {
                "date": {"type": "string", "example": "2025-03-10"},
                "start_time": {"type": "string", "example": "10:00"},
                "end_time": {"type": "string", "example": "16:00"}
            },
            "required": ["date"]
        },
        "UpsertDefaultShiftRequest": {
            "type": "object",
            "properties": {
                "start_time": {"type": "string", "example": "09:00"},
                "end_time": {"type": "string", "example": "17:00"},
                "working_days": {"type": "array", "items": {"type": "string"}}
            },
            "required": ["start_time", "end_time", "working_days"]
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
                "status": {"type": "integer"},
                "details": {"type": "array", "items": {"type": "string"}}
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
