// Package api serves the HTTP surface of SolarWatch: device ingest, the
// read-only reporting endpoints used by the viewer, recipient management
// and Prometheus exposition.
//
// Ingest responses follow the device protocol ({"ok": ..., "error": ...});
// the /api/v1 endpoints report failures as a structured Error.
//
// The server follows the same lifecycle as the other components:
//
//	srv, err := api.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
package api
