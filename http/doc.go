// Package http provides the REST API of filepulse.
//
// # Routes
//
//	POST /api/upload             multipart/form-data, field "file"
//	PUT  /api/upload/{filename}  raw request body
//	GET  /api/file/{code}        share metadata
//	GET  /api/download/{code}    file content as an attachment
//	GET  /health                 liveness probe
//
// Uploads answer 201 with the new share:
//
//	{
//	  "code": "a1b2c3",
//	  "display_name": "report.pdf",
//	  "size": 52311,
//	  "created_at": "2025-01-01T10:00:00Z",
//	  "expires_at": "2025-01-08T10:00:00Z"
//	}
//
// Request bodies are streamed into the service; neither route buffers the
// whole file.
//
// # Errors
//
// All errors use the same JSON body:
//
//	{"error": "not_found", "message": "File not found or expired"}
//
// Status codes follow the filepulse sentinel errors: ErrTooLarge is 413,
// ErrInvalidName and ErrInvalidInput are 400, ErrNotFound is 404 (expired
// codes included) and ErrConflict is 503. Anything else is a 500 with a
// generic message.
//
// # Client Origin
//
// The origin recorded on each share is the remote address of the
// connection. With HandlerConfig.TrustProxy set, the first X-Forwarded-For
// entry or X-Real-IP wins instead.
//
// # Usage
//
//	handler := http.NewHandler(&http.HandlerConfig{
//	    TrustProxy: true,
//	    CORS:       http.CORSConfig{Enabled: false},
//	}, service)
//
//	server := &nethttp.Server{Addr: ":8000", Handler: handler.Router()}
//	server.ListenAndServe()
package http
