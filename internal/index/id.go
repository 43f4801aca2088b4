package index

import (
	"crypto/sha1"

	"github.com/google/uuid"
)

// deterministicID derives a stable UUID from the given parts, so re-indexing
// the same (agent, source, chunk) always produces the same point id. Q&A
// pairs rely on that alone and are replaced by a plain upsert; files,
// custom text and catalog entries are also filter-deleted before upsert.
func deterministicID(parts ...string) string {
	h := sha1.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, h.Sum(nil)).String()
}

// randomID is used for URL knowledge-base chunks, where the set of chunks
// can grow or shrink across re-crawls; those sources are cleared with a
// filter-delete before the new chunks are upserted.
func randomID() string {
	return uuid.New().String()
}
