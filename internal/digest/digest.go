// Package digest computes the integrity digests recorded for every input file.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"

	"github.com/dshills/logcheck/internal/schema"
)

// Compute returns the lowercase hex MD5, SHA-1 and SHA-256 of data.
func Compute(data []byte) schema.Digests {
	return schema.Digests{
		MD5:    sum(md5.New(), data),
		SHA1:   sum(sha1.New(), data),
		SHA256: sum(sha256.New(), data),
	}
}

// Reader computes the digests of everything read from r in a single pass.
func Reader(r io.Reader) (schema.Digests, error) {
	m, s1, s256 := md5.New(), sha1.New(), sha256.New()
	if _, err := io.Copy(io.MultiWriter(m, s1, s256), r); err != nil {
		return schema.Digests{}, err
	}
	return schema.Digests{
		MD5:    hex.EncodeToString(m.Sum(nil)),
		SHA1:   hex.EncodeToString(s1.Sum(nil)),
		SHA256: hex.EncodeToString(s256.Sum(nil)),
	}, nil
}

func sum(h hash.Hash, data []byte) string {
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
