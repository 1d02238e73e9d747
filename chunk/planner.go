package chunk

// DefaultPartSize is the fixed part size for media objects uploaded through
// the part-by-part path.
const DefaultPartSize int64 = 3 * 1024 * 1024

// MultipartMinPartSize is the smallest part stores with multipart minimums
// accept. Callers targeting such stores should plan with this size instead.
const MultipartMinPartSize int64 = 5 * 1024 * 1024

// Plan describes how an object splits into fixed-size parts.
type Plan struct {
	TotalChunks   int
	PartSize      int64
	LastChunkSize int64
	TotalSize     int64
}

// Single reports whether the object fits in one part. Single-part objects
// must take the whole-object path: no manifest is written for them.
func (p Plan) Single() bool {
	return p.TotalChunks == 1
}

// ChunkSize returns the byte length of the part at index.
func (p Plan) ChunkSize(index int) int64 {
	if index == p.TotalChunks-1 {
		return p.LastChunkSize
	}
	return p.PartSize
}

// Offset returns the byte offset of the part at index within the original
// object.
func (p Plan) Offset(index int) int64 {
	return int64(index) * p.PartSize
}

// PlanChunks splits totalSize bytes into ceil(totalSize/partSize) parts.
// Pure; callers guarantee both arguments are positive.
func PlanChunks(totalSize, partSize int64) Plan {
	totalChunks := int(totalSize / partSize)
	lastChunkSize := totalSize % partSize
	if lastChunkSize == 0 {
		lastChunkSize = partSize
	} else {
		totalChunks++
	}

	return Plan{
		TotalChunks:   totalChunks,
		PartSize:      partSize,
		LastChunkSize: lastChunkSize,
		TotalSize:     totalSize,
	}
}
