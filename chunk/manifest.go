// Package chunk persists oversized binary objects into an object store as a
// sequence of bounded-size parts plus a manifest, and reassembles them on
// read. Either the complete object becomes durably retrievable under its
// logical name, or no trace of a partial upload is left behind.
package chunk

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Manifest describes how to reassemble a chunked object. It is persisted as
// its own object next to the chunks it references and is immutable once
// written; re-uploading the same logical name supersedes the old manifest
// and chunk set entirely.
type Manifest struct {
	OriginalFilename string    `json:"originalFilename"`
	TotalChunks      int       `json:"totalChunks"`
	ChunkSize        int64     `json:"chunkSize"`
	TotalSize        int64     `json:"totalSize"`
	Chunks           []string  `json:"chunks"`
	UploadedAt       time.Time `json:"uploadedAt"`
}

func (m Manifest) validate() error {
	if m.TotalChunks < 1 {
		return fmt.Errorf("totalChunks must be at least 1, got %d", m.TotalChunks)
	}
	if len(m.Chunks) != m.TotalChunks {
		return fmt.Errorf("manifest lists %d chunk(s), expected %d", len(m.Chunks), m.TotalChunks)
	}
	if m.TotalSize <= 0 {
		return fmt.Errorf("totalSize must be positive, got %d", m.TotalSize)
	}
	return nil
}

// Storage keys for one logical object:
//
//	<owner>/<logicalName>/chunks/<base>_chunk_<NNN><ext>    parts
//	<owner>/<logicalName>/manifests/<base>_manifest.json    manifest
//	<owner>/<logicalName>/<filename>                        single-shot object
//
// Distinct logical names own disjoint prefixes, so concurrent uploads under
// different names never interfere.
func chunkKey(ownerID, logicalName, filename string, index int) string {
	base, ext := splitExt(filename)
	return fmt.Sprintf("%s/%s/chunks/%s_chunk_%03d%s", ownerID, logicalName, base, index, ext)
}

func manifestKey(ownerID, logicalName, filename string) string {
	base, _ := splitExt(filename)
	return fmt.Sprintf("%s/%s/manifests/%s_manifest.json", ownerID, logicalName, base)
}

func directKey(ownerID, logicalName, filename string) string {
	return fmt.Sprintf("%s/%s/%s", ownerID, logicalName, filename)
}

func objectPrefix(ownerID, logicalName string) string {
	return fmt.Sprintf("%s/%s/", ownerID, logicalName)
}

func splitExt(filename string) (string, string) {
	ext := path.Ext(filename)
	return strings.TrimSuffix(filename, ext), ext
}
