// SPDX-License-Identifier: MPL-2.0

package verify

import (
	"bufio"
	"bytes"
	"crypto"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"slices"
	"time"

	"golang.org/x/crypto/openpgp"        //nolint:staticcheck // detached signature checks only
	"golang.org/x/crypto/openpgp/armor"  //nolint:staticcheck // armored signatures and keyrings
	"golang.org/x/crypto/openpgp/packet" //nolint:staticcheck // signature packet fields

	"github.com/pkgbake/pkgbake/pkg/pkgbuild"
)

var (
	armorPrefix = []byte("-----BEGIN")

	errNoSignature = errors.New("no signature packet found")
)

// detached is the subset of a v3 or v4 signature packet needed to check it.
type detached struct {
	issuer uint64
	hash   crypto.Hash
	verify func(pk *packet.PublicKey, h hash.Hash) error
}

// VerifySignature checks the detached signature at sigPath over dataPath.
func (e *Engine) VerifySignature(entry pkgbuild.SourceEntry, dataPath, sigPath string) *Result {
	res := &Result{Path: dataPath}

	sig, err := readSignature(sigPath)
	if err != nil {
		res.fail(&Failure{Kind: ReadError, Err: fmt.Errorf("signature %s: %w", sigPath, err)})
		return res
	}
	keyID := fmt.Sprintf("%016X", sig.issuer)

	keys := e.keyring.KeysById(sig.issuer)
	if len(keys) == 0 {
		res.fail(&Failure{Kind: KeyUnknown, KeyID: keyID})
		return res
	}
	key := keys[0]
	fp := fmt.Sprintf("%X", key.Entity.PrimaryKey.Fingerprint[:])
	res.Fingerprint = fp

	if !sig.hash.Available() {
		res.fail(&Failure{Kind: SignatureInvalid, KeyID: keyID, Fingerprint: fp, Err: fmt.Errorf("unsupported hash %v", sig.hash)})
	} else if err := e.checkData(sig, key.PublicKey, dataPath); err != nil {
		kind := SignatureInvalid
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			kind = ReadError
		}
		res.fail(&Failure{Kind: kind, KeyID: keyID, Fingerprint: fp, Err: err})
	}

	if len(key.Entity.Revocations) > 0 || revokedBinding(key.SelfSignature) {
		res.fail(&Failure{Kind: KeyRevoked, KeyID: keyID, Fingerprint: fp})
	}
	if expired(key, e.now()) {
		res.fail(&Failure{Kind: KeyExpired, KeyID: keyID, Fingerprint: fp})
	}
	if len(e.trusted) > 0 && !slices.Contains(e.trusted, fp) {
		res.fail(&Failure{Kind: KeyUntrusted, KeyID: keyID, Fingerprint: fp})
	}

	e.logger.Debug("checked signature", "source", entry.FileName(), "key", fp, "failures", len(res.Failures))
	return res
}

// revokedBinding reports whether a subkey's binding was replaced by a
// revocation.
func revokedBinding(sig *packet.Signature) bool {
	return sig != nil && (sig.SigType == packet.SigTypeSubkeyRevocation || sig.RevocationReason != nil)
}

// expired reports whether key, or the primary key of its entity when key is
// a subkey, is past its lifetime at now.
func expired(key openpgp.Key, now time.Time) bool {
	if key.SelfSignature != nil && key.SelfSignature.KeyExpired(now) {
		return true
	}
	if key.PublicKey == key.Entity.PrimaryKey {
		return false
	}
	primary := primarySelfSignature(key.Entity)
	return primary != nil && primary.KeyExpired(now)
}

// primarySelfSignature returns the self-signature of the identity flagged
// primary, else of the first identity.
func primarySelfSignature(ent *openpgp.Entity) *packet.Signature {
	var first *packet.Signature
	for _, id := range ent.Identities {
		if id.SelfSignature == nil {
			continue
		}
		if id.SelfSignature.IsPrimaryId != nil && *id.SelfSignature.IsPrimaryId {
			return id.SelfSignature
		}
		if first == nil {
			first = id.SelfSignature
		}
	}
	return first
}

func (e *Engine) checkData(sig *detached, pk *packet.PublicKey, dataPath string) error {
	f, err := os.Open(dataPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	h := sig.hash.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	return sig.verify(pk, h)
}

func readSignature(path string) (*detached, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r, err := dearmor(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	pr := packet.NewReader(r)
	for {
		p, err := pr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errNoSignature
			}
			return nil, err
		}
		switch s := p.(type) {
		case *packet.Signature:
			if s.IssuerKeyId == nil {
				return nil, errors.New("signature has no issuer key id")
			}
			return &detached{
				issuer: *s.IssuerKeyId,
				hash:   s.Hash,
				verify: func(pk *packet.PublicKey, h hash.Hash) error { return pk.VerifySignature(h, s) },
			}, nil
		case *packet.SignatureV3:
			return &detached{
				issuer: s.IssuerKeyId,
				hash:   s.Hash,
				verify: func(pk *packet.PublicKey, h hash.Hash) error { return pk.VerifySignatureV3(h, s) },
			}, nil
		}
	}
}

// dearmor strips ASCII armor when present.
func dearmor(br *bufio.Reader) (io.Reader, error) {
	head, _ := br.Peek(len(armorPrefix))
	if !bytes.Equal(head, armorPrefix) {
		return br, nil
	}
	block, err := armor.Decode(br)
	if err != nil {
		return nil, err
	}
	return block.Body, nil
}

// LoadKeyring reads binary or armored public keys from every path.
func LoadKeyring(paths ...string) (openpgp.EntityList, error) {
	var all openpgp.EntityList
	for _, path := range paths {
		keys, err := readKeyFile(path)
		if err != nil {
			return nil, fmt.Errorf("keyring %s: %w", path, err)
		}
		all = append(all, keys...)
	}
	return all, nil
}

func readKeyFile(path string) (openpgp.EntityList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	br := bufio.NewReader(f)
	if head, _ := br.Peek(len(armorPrefix)); bytes.Equal(head, armorPrefix) {
		return openpgp.ReadArmoredKeyRing(br)
	}
	return openpgp.ReadKeyRing(br)
}
