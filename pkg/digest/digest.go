// Package digest computes the content digests recorded in archive catalogs.
package digest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/odvcencio/libforge/pkg/archive"
)

// ErrNoSigner is returned when a signed digest is requested from a Digester
// without a Signer.
var ErrNoSigner = errors.New("signed digest requested but no signing key is configured")

// Digester computes digest records over program images.
type Digester struct {
	Algorithm Algorithm
	Signer    Signer
}

// Digest hashes data and, when signed is true, signs the raw hash. The
// signed flag is the only input deciding the mode; there is no fallback to
// an unsigned digest.
func (d *Digester) Digest(ctx context.Context, data []byte, signed bool) (archive.Digest, error) {
	if err := ctx.Err(); err != nil {
		return archive.Digest{}, fmt.Errorf("digest: %w", err)
	}
	alg := d.Algorithm
	if alg == "" {
		alg = SHA256
	}
	sum, err := Sum(alg, data)
	if err != nil {
		return archive.Digest{}, fmt.Errorf("digest: %w", err)
	}

	rec := archive.Digest{
		Type:   string(alg),
		Signed: signed,
		Value:  hex.EncodeToString(sum),
	}
	if !signed {
		return rec, nil
	}
	if d.Signer == nil {
		return archive.Digest{}, fmt.Errorf("digest: %w", ErrNoSigner)
	}
	rec.Signature, err = d.Signer(sum)
	if err != nil {
		return archive.Digest{}, fmt.Errorf("digest: sign: %w", err)
	}
	return rec, nil
}

// Verify checks that rec matches data, including the signature of signed
// records.
func Verify(rec archive.Digest, data []byte) error {
	alg, err := ParseAlgorithm(rec.Type)
	if err != nil {
		return fmt.Errorf("verify digest: %w", err)
	}
	sum, err := Sum(alg, data)
	if err != nil {
		return fmt.Errorf("verify digest: %w", err)
	}
	if hex.EncodeToString(sum) != rec.Value {
		return fmt.Errorf("verify digest: %s mismatch", rec.Type)
	}
	if rec.Signed {
		if rec.Signature == "" {
			return fmt.Errorf("verify digest: signed record has no signature")
		}
		return VerifySignature(rec.Signature, sum)
	}
	return nil
}
