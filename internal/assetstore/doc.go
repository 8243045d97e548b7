// Package assetstore is the reference asset store the pipeline and the scene
// state machine run against.
//
// A store lives in one directory per language:
//
//	<root>/manifest.db     SQLite index of entries, artifacts and folders
//	<root>/blobs/<name>    encoded entry payloads
//	<root>/artifacts/<n>   cached post-step outputs
//	<root>/.lock           cross-process write lock
//
// Payloads are treated as opaque bytes. New entries are written with the
// zstd storage codec; Recompress rewrites them with the runtime codec (lz4 by
// default) that bundle readers decode cheaply. Each entry records the BLAKE3
// hash of its decoded bytes, which Verify checks.
package assetstore
