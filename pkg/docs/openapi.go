// Package docs builds the OpenAPI document for the record API and the HTML page
// that renders it with Swagger UI.
//
// The document is fixed: it describes the route templates, not the tables that
// happen to exist in the connected database.
package docs

import (
	"encoding/json"
	"strings"
)

// Info contains API metadata for the OpenAPI document.
type Info struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// Generator produces the OpenAPI 3.0 document.
type Generator struct {
	info      Info
	serverURL string
	apiPrefix string
}

// NewGenerator returns a Generator. apiPrefix is where the record routes are mounted, e.g. "/api".
func NewGenerator(info Info, serverURL, apiPrefix string) *Generator {
	if info.Description == "" {
		info.Description = "Auto-generated API documentation for " + info.Title
	}
	return &Generator{
		info:      info,
		serverURL: strings.TrimSuffix(serverURL, "/"),
		apiPrefix: strings.TrimSuffix("/"+strings.Trim(apiPrefix, "/"), "/"),
	}
}

// Document returns the OpenAPI document as a JSON-ready map.
func (g *Generator) Document() map[string]any {
	return map[string]any{
		"openapi": "3.0.0",
		"info": map[string]any{
			"title":       g.info.Title,
			"version":     g.info.Version,
			"description": g.info.Description,
		},
		"servers": []map[string]any{
			{"url": g.serverURL, "description": "API server"},
		},
		"paths": g.paths(),
		"components": map[string]any{
			"schemas":   schemas(),
			"responses": responses(),
		},
		"tags": []map[string]any{
			{"name": "Records", "description": "CRUD operations for database records"},
			{"name": "Tables", "description": "Table discovery"},
		},
	}
}

// JSON returns the document pretty-printed.
func (g *Generator) JSON() ([]byte, error) {
	return json.MarshalIndent(g.Document(), "", "    ")
}

func (g *Generator) paths() map[string]any {
	records := g.apiPrefix + "/records/{table}"
	tables := g.apiPrefix + "/tables"

	return map[string]any{
		"/": map[string]any{
			"get": operation("Get API information", "Returns basic information about the API", "Info", nil,
				okResponse("API information", object(props("message", "version", "docs", "api")))),
		},
		"/health": map[string]any{
			"get": operation("Health check", "Check API health status", "Health", nil,
				okResponse("Health status", object(props("status", "timestamp", "database")))),
		},
		records: map[string]any{
			"get": operation("List records", "Get a list of records from the specified table", "Records",
				[]map[string]any{
					tableParam,
					queryParam("page", "integer", "Page number"),
					queryParam("size", "integer", "Page size (default 20)"),
					queryParam("limit", "integer", "Maximum number of records when page is not set"),
					queryParam("order", "string", "Order by (column,direction)"),
					queryParam("filter", "string", "Filter (column,operator,value); may be repeated"),
					queryParam("search", "string", "Search term matched against text columns"),
				},
				map[string]any{
					"200": content("List of records", object(map[string]any{
						"records": map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
						"total":   map[string]any{"type": "integer"},
					})),
					"500": ref("ServerError"),
				}),
			"post": withBody(operation("Create record", "Create a new record in the specified table", "Records",
				[]map[string]any{tableParam},
				map[string]any{
					"201": content("Record created", object(map[string]any{
						"id":      map[string]any{"type": "integer"},
						"message": map[string]any{"type": "string"},
					})),
					"400": ref("BadRequest"),
					"500": ref("ServerError"),
				}), "Record data"),
		},
		records + "/{id}": map[string]any{
			"get": operation("Get record", "Get a specific record by ID", "Records",
				[]map[string]any{tableParam, idParam},
				map[string]any{
					"200": content("Record data", map[string]any{"type": "object"}),
					"404": ref("NotFound"),
					"500": ref("ServerError"),
				}),
			"put": withBody(operation("Update record", "Update a specific record by ID", "Records",
				[]map[string]any{tableParam, idParam},
				map[string]any{
					"200": content("Record updated", mutationResult),
					"400": ref("BadRequest"),
					"500": ref("ServerError"),
				}), "Updated record data"),
			"delete": operation("Delete record", "Delete a specific record by ID", "Records",
				[]map[string]any{tableParam, idParam},
				map[string]any{
					"200": content("Record deleted", mutationResult),
					"500": ref("ServerError"),
				}),
		},
		tables: map[string]any{
			"get": operation("List tables", "List the tables of the connected database", "Tables", nil,
				okResponse("Table names", object(map[string]any{
					"tables": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				}))),
		},
		tables + "/{table}": map[string]any{
			"get": operation("Describe table", "List the columns of a table", "Tables",
				[]map[string]any{tableParam},
				map[string]any{
					"200": content("Table columns", object(map[string]any{
						"table":   map[string]any{"type": "string"},
						"columns": map[string]any{"type": "array", "items": map[string]any{"$ref": "#/components/schemas/Column"}},
					})),
					"404": ref("NotFound"),
				}),
		},
	}
}

var (
	tableParam = pathParam("table", "Table name")
	idParam    = pathParam("id", "Record ID")

	mutationResult = object(map[string]any{
		"id":            map[string]any{"type": "string"},
		"message":       map[string]any{"type": "string"},
		"affected_rows": map[string]any{"type": "integer"},
	})
)

func operation(summary, description, tag string, params []map[string]any, responses map[string]any) map[string]any {
	op := map[string]any{
		"summary":     summary,
		"description": description,
		"tags":        []string{tag},
		"responses":   responses,
	}
	if len(params) > 0 {
		op["parameters"] = params
	}
	return op
}

func withBody(op map[string]any, description string) map[string]any {
	op["requestBody"] = map[string]any{
		"required": true,
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{"type": "object", "description": description},
			},
		},
	}
	return op
}

func pathParam(name, description string) map[string]any {
	return map[string]any{
		"name":        name,
		"in":          "path",
		"required":    true,
		"schema":      map[string]any{"type": "string"},
		"description": description,
	}
}

func queryParam(name, typ, description string) map[string]any {
	return map[string]any{
		"name":        name,
		"in":          "query",
		"schema":      map[string]any{"type": typ},
		"description": description,
	}
}

func okResponse(description string, schema map[string]any) map[string]any {
	return map[string]any{"200": content(description, schema)}
}

func content(description string, schema map[string]any) map[string]any {
	return map[string]any{
		"description": description,
		"content": map[string]any{
			"application/json": map[string]any{"schema": schema},
		},
	}
}

func ref(response string) map[string]any {
	return map[string]any{"$ref": "#/components/responses/" + response}
}

func object(properties map[string]any) map[string]any {
	return map[string]any{"type": "object", "properties": properties}
}

// props declares string properties.
func props(names ...string) map[string]any {
	m := make(map[string]any, len(names))
	for _, n := range names {
		m[n] = map[string]any{"type": "string"}
	}
	return m
}

func schemas() map[string]any {
	return map[string]any{
		"Error": object(map[string]any{
			"error": map[string]any{"type": "string"},
			"code":  map[string]any{"type": "integer"},
		}),
		"Success": object(map[string]any{
			"message": map[string]any{"type": "string"},
			"data":    map[string]any{"type": "object"},
		}),
		"Column": object(map[string]any{
			"name":     map[string]any{"type": "string"},
			"type":     map[string]any{"type": "string"},
			"nullable": map[string]any{"type": "boolean"},
			"key":      map[string]any{"type": "string"},
		}),
	}
}

func responses() map[string]any {
	errorContent := func(description string) map[string]any {
		return content(description, map[string]any{"$ref": "#/components/schemas/Error"})
	}
	return map[string]any{
		"BadRequest":  errorContent("Invalid request"),
		"NotFound":    errorContent("Resource not found"),
		"ServerError": errorContent("Internal server error"),
	}
}
