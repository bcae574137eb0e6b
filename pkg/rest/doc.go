// Package rest exposes relational database tables as a JSON REST API.
//
// Every table is reachable under the API prefix (default /api):
//
//	Method | Path                      | Description
//	-------|---------------------------|-----------------------------------------
//	GET    | /records/{table}          | List records
//	POST   | /records/{table}          | Create a record from a JSON object
//	GET    | /records/{table}/{id}     | Fetch one record
//	PUT    | /records/{table}/{id}     | Update a record from a JSON object
//	DELETE | /records/{table}/{id}     | Delete a record
//	GET    | /tables                   | List tables
//	GET    | /tables/{table}           | Describe the columns of a table
//	GET    | /openapi                  | OpenAPI 3.0 document
//
// Query parameters for listing:
//
//	Parameter             | Description
//	----------------------|------------------------------------------------
//	?filter=col,op,value  | WHERE col op value; may repeat, all are ANDed
//	?search=term          | substring match over text-like columns, ORed
//	?order=col,desc       | ORDER BY col; anything but "desc" is ascending
//	?page=2&size=10       | LIMIT size OFFSET (page-1)*size; size defaults to 20
//	?limit=5              | LIMIT 5, used only when page is absent
//
// A list response has the shape {"records": [...], "total": n}, where total
// ignores paging. Create, update and delete respond with the record id and a
// message; update and delete also carry affected_rows.
//
// Successful mutations are announced through an events.Publisher.
package rest
