package digest

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

const signaturePrefix = "sshsig-v1"

// Signer signs a raw digest and returns the encoded signature.
type Signer func(payload []byte) (string, error)

// NewSSHSigner loads the unencrypted SSH private key at keyPath and returns
// a Signer producing "sshsig-v1:<format>:<pubkey b64>:<sig b64>" signatures,
// together with the absolute key path.
func NewSSHSigner(keyPath string) (Signer, string, error) {
	path, err := signingKeyPath(keyPath)
	if err != nil {
		return nil, "", err
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("signing key: %w", err)
	}
	key, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, "", fmt.Errorf("signing key %s: %w", path, err)
	}
	return SSHSigner(key), path, nil
}

// SSHSigner wraps an already parsed key.
func SSHSigner(key ssh.Signer) Signer {
	pubB64 := base64.StdEncoding.EncodeToString(key.PublicKey().Marshal())
	return func(payload []byte) (string, error) {
		sig, err := key.Sign(rand.Reader, payload)
		if err != nil {
			return "", err
		}
		sigB64 := base64.StdEncoding.EncodeToString(sig.Blob)
		return fmt.Sprintf("%s:%s:%s:%s", signaturePrefix, sig.Format, pubB64, sigB64), nil
	}
}

// VerifySignature checks an encoded signature against the raw digest it
// claims to sign.
func VerifySignature(encoded string, payload []byte) error {
	parts := strings.SplitN(encoded, ":", 4)
	if len(parts) != 4 || parts[0] != signaturePrefix {
		return fmt.Errorf("verify signature: malformed signature")
	}
	pubRaw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("verify signature: public key: %w", err)
	}
	pub, err := ssh.ParsePublicKey(pubRaw)
	if err != nil {
		return fmt.Errorf("verify signature: public key: %w", err)
	}
	blob, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return fmt.Errorf("verify signature: blob: %w", err)
	}
	if err := pub.Verify(payload, &ssh.Signature{Format: parts[1], Blob: blob}); err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	return nil
}

// signingKeyPath returns keyPath made absolute, with a leading "~/" taken
// from the home directory. An empty path is an error; keys are never
// guessed.
func signingKeyPath(keyPath string) (string, error) {
	keyPath = strings.TrimSpace(keyPath)
	if keyPath == "" {
		return "", fmt.Errorf("signing key: %w", ErrNoSigner)
	}
	if rest, ok := strings.CutPrefix(keyPath, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("signing key %q: %w", keyPath, err)
		}
		keyPath = filepath.Join(home, rest)
	}
	return filepath.Abs(keyPath)
}
