// Package filepulse provides an ephemeral file sharing engine: content is
// stored once per digest, handed out through short codes, and reclaimed
// when the last code pointing at it expires.
//
// # Key Components
//
//   - Service: Upload and download pipelines over a registry and a store
//   - ShareRegistry: Interface for share persistence (PostgreSQL, SQLite)
//   - ContentStore: Interface for content-addressed blob storage (filesystem)
//   - Reaper: Scheduled removal of expired shares and unreferenced blobs
//   - CodeGenerator: Source of candidate share codes
//
// # Shares and Blobs
//
// Every upload creates a share with its own code and expiry. Identical
// content uploaded twice is stored once; both shares point at the same
// blob. Deleting a share never deletes its blob directly. Only the reaper
// does, and only after confirming that no live share still references it.
//
// Uploads and the reaper coordinate through DigestLocks, so an upload can
// never attach a new share to a blob the reaper is deleting.
//
// # Example Usage
//
//	svc, err := filepulse.NewService(registry, store, filepulse.ServiceConfig{
//	    MaxFileSize: 100 << 20,
//	    TTL:         7 * 24 * time.Hour,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	share, err := svc.Upload(ctx, filepulse.UploadRequest{
//	    Filename:     "report.pdf",
//	    Content:      body,
//	    DeclaredSize: -1,
//	})
//
//	share, content, err := svc.Download(ctx, share.Code)
//
// See the http package for the REST API and the database package for the
// registry backends.
package filepulse
