package server

// buildOpenAPI assembles the OpenAPI 3 document for the REST and stream
// surface. The document is built from plain maps: the schema is small and
// static enough that a typed OpenAPI model would only add weight.
func buildOpenAPI(info StatusInfo) map[string]any {
	positionSchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"latitude_deg":        map[string]any{"type": "number", "nullable": true, "example": 34.0522017},
			"longitude_deg":       map[string]any{"type": "number", "nullable": true, "example": -118.2436842},
			"absolute_altitude_m": map[string]any{"type": "number", "nullable": true, "example": 125.43},
			"relative_altitude_m": map[string]any{"type": "number", "nullable": true, "example": 42.10},
		},
	}
	attitudeSchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"roll_deg":  map[string]any{"type": "number", "nullable": true, "example": 1.23},
			"pitch_deg": map[string]any{"type": "number", "nullable": true, "example": -0.45},
			"yaw_deg":   map[string]any{"type": "number", "nullable": true, "example": 178.90},
		},
	}
	batterySchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"voltage_v":         map[string]any{"type": "number", "nullable": true, "example": 12.4},
			"remaining_percent": map[string]any{"type": "number", "nullable": true, "example": 0.87},
		},
	}
	timestamp := map[string]any{"type": "string", "format": "date-time", "nullable": true}

	jsonResponse := func(description string, properties map[string]any) map[string]any {
		return map[string]any{
			"200": map[string]any{
				"description": description,
				"content": map[string]any{
					"application/json": map[string]any{
						"schema": map[string]any{
							"type":       "object",
							"properties": properties,
						},
					},
				},
			},
		}
	}

	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "telemd",
			"version": "1.0.0",
			"description": "Real-time drone telemetry service.\n\n" +
				"## REST endpoints\n" +
				"JSON endpoints for on-demand telemetry snapshots.\n\n" +
				"## Stream\n" +
				"Connect to `ws://<host>/telemetry/stream` for a continuous stream of\n" +
				"snapshots pushed at the configured rate. After connecting, send a JSON\n" +
				"message to filter the pushed groups:\n" +
				"```json\n" +
				"{\"subscribe\": [\"position\"]}\n" +
				"```\n" +
				"Valid names: `position`, `attitude`, `battery`, `all` (default).",
		},
		"servers": []any{
			map[string]any{"url": "/", "description": "Current host"},
		},
		"tags": []any{
			map[string]any{"name": "Telemetry", "description": "Real-time vehicle sensor data"},
			map[string]any{"name": "Status", "description": "Service and connection health"},
		},
		"paths": map[string]any{
			"/telemetry": map[string]any{
				"get": map[string]any{
					"tags":        []any{"Telemetry"},
					"summary":     "Full telemetry snapshot",
					"description": "Latest position, attitude and battery readings.",
					"operationId": "getTelemetry",
					"responses": jsonResponse("Telemetry snapshot", map[string]any{
						"position":     positionSchema,
						"attitude":     attitudeSchema,
						"battery":      batterySchema,
						"last_updated": timestamp,
					}),
				},
			},
			"/telemetry/position": map[string]any{
				"get": map[string]any{
					"tags":        []any{"Telemetry"},
					"summary":     "Position data",
					"description": "Latest GPS position (lat, lon, altitude).",
					"operationId": "getPosition",
					"responses": jsonResponse("Position snapshot", map[string]any{
						"position": positionSchema,
					}),
				},
			},
			"/telemetry/attitude": map[string]any{
				"get": map[string]any{
					"tags":        []any{"Telemetry"},
					"summary":     "Attitude data",
					"description": "Latest roll, pitch and yaw in degrees.",
					"operationId": "getAttitude",
					"responses": jsonResponse("Attitude snapshot", map[string]any{
						"attitude": attitudeSchema,
					}),
				},
			},
			"/telemetry/battery": map[string]any{
				"get": map[string]any{
					"tags":        []any{"Telemetry"},
					"summary":     "Battery data",
					"description": "Latest battery voltage and remaining charge fraction.",
					"operationId": "getBattery",
					"responses": jsonResponse("Battery snapshot", map[string]any{
						"battery": batterySchema,
					}),
				},
			},
			"/status": map[string]any{
				"get": map[string]any{
					"tags":        []any{"Status"},
					"summary":     "Service status",
					"description": "Connection state, uptime and configuration.",
					"operationId": "getStatus",
					"responses": jsonResponse("Status information", map[string]any{
						"connected":      map[string]any{"type": "boolean"},
						"connecting":     map[string]any{"type": "boolean"},
						"started_at":     timestamp,
						"last_updated":   timestamp,
						"fault":          map[string]any{"type": "string", "nullable": true},
						"backend":        map[string]any{"type": "string", "example": info.Backend},
						"source_address": map[string]any{"type": "string", "example": info.SourceAddress},
						"push_rate_hz":   map[string]any{"type": "number", "example": info.PushRateHz},
					}),
				},
			},
			"/healthz": map[string]any{
				"get": map[string]any{
					"tags":        []any{"Status"},
					"summary":     "Liveness probe",
					"operationId": "getHealthz",
					"responses": jsonResponse("Process is alive", map[string]any{
						"status": map[string]any{"type": "string", "example": "ok"},
					}),
				},
			},
		},
	}
}
