// SPDX-License-Identifier: MPL-2.0

package verify

import (
	"crypto/md5"  //nolint:gosec // md5sums are still declared by build files
	"crypto/sha1" //nolint:gosec // sha1sums likewise
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/pkgbake/pkgbake/pkg/pkgbuild"
)

func newHash(algo pkgbuild.Algorithm) (hash.Hash, error) {
	switch algo {
	case pkgbuild.AlgoBlake2:
		return blake2b.New512(nil)
	case pkgbuild.AlgoSHA512:
		return sha512.New(), nil
	case pkgbuild.AlgoSHA384:
		return sha512.New384(), nil
	case pkgbuild.AlgoSHA256:
		return sha256.New(), nil
	case pkgbuild.AlgoSHA224:
		return sha256.New224(), nil
	case pkgbuild.AlgoSHA1:
		return sha1.New(), nil //nolint:gosec // declared digest
	case pkgbuild.AlgoMD5:
		return md5.New(), nil //nolint:gosec // declared digest
	case pkgbuild.AlgoCksum:
		return newCksum(), nil
	default:
		return nil, &pkgbuild.InvalidAlgorithmError{Value: algo}
	}
}

func encodeSum(h hash.Hash) string {
	if c, ok := h.(*cksum); ok {
		return c.String()
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Digests computes every algorithm of algos over r in a single pass and
// returns the encoded sums keyed by algorithm.
func Digests(r io.Reader, algos ...pkgbuild.Algorithm) (map[pkgbuild.Algorithm]string, error) {
	hashes := make(map[pkgbuild.Algorithm]hash.Hash, len(algos))
	writers := make([]io.Writer, 0, len(algos))
	for _, a := range algos {
		if _, ok := hashes[a]; ok {
			continue
		}
		h, err := newHash(a)
		if err != nil {
			return nil, err
		}
		hashes[a] = h
		writers = append(writers, h)
	}
	if _, err := io.Copy(io.MultiWriter(writers...), r); err != nil {
		return nil, err
	}

	sums := make(map[pkgbuild.Algorithm]string, len(hashes))
	for a, h := range hashes {
		sums[a] = encodeSum(h)
	}
	return sums, nil
}

// FileDigests is Digests over the file at path.
func FileDigests(path string, algos ...pkgbuild.Algorithm) (map[pkgbuild.Algorithm]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Digests(f, algos...)
}
