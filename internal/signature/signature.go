// Package signature implements Ed25519 sign/verify of flow files against a
// local trust store of PEM public keys.
package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/juniormartinxo/council/internal/paths"
)

const (
	FlowSignatureVersion   = 1
	FlowSignatureAlgorithm = "ed25519"

	RequireFlowSignatureEnvVar = "REQUIRE_FLOW_SIGNATURE"
)

var keyIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Error is the taxonomy member for signature/verification failures. It
// implements the ConfigError contract when wrapped at flow-load time (see
// internal/flow).
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func errf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// VerificationError distinguishes an untrusted-key/bad-signature/malformed
// outcome from a plain configuration mistake.
type VerificationError struct {
	err *Error
}

func (e *VerificationError) Error() string { return e.err.msg }

// Metadata is the parsed contents of a `<flow>.sig` sidecar.
type Metadata struct {
	Version   int
	Algorithm string
	KeyID     string
	Signature string // base64
}

type sidecarPayload struct {
	Version   int    `json:"version"`
	Algorithm string `json:"algorithm"`
	KeyID     string `json:"key_id"`
	Signature string `json:"signature"`
}

// NormalizeKeyID validates and trims a key id, used both as a filename
// component and as the sidecar's key_id field.
func NormalizeKeyID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !keyIDPattern.MatchString(trimmed) {
		return "", errf("invalid key_id %q: use only letters, digits, '.', '_' or '-' (1-64 chars)", raw)
	}
	return trimmed, nil
}

// ParseRequireSignatureEnv parses the REQUIRE_FLOW_SIGNATURE environment
// variable, failing fast on any value outside the accepted set.
func ParseRequireSignatureEnv() (bool, error) {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(RequireFlowSignatureEnvVar)))
	switch raw {
	case "1", "true", "yes", "on":
		return true, nil
	case "", "0", "false", "no", "off":
		return false, nil
	default:
		return false, errf("invalid value for %s: %q. Use one of: 0, 1, false, true, no, off, on, yes", RequireFlowSignatureEnvVar, raw)
	}
}

// SidecarPath returns the co-located signature file path for flowPath.
func SidecarPath(flowPath string) string {
	return flowPath + ".sig"
}

// GenerateKeyPair creates a fresh Ed25519 key pair and writes both halves as
// PEM with owner-only permissions.
func GenerateKeyPair(privateKeyPath, publicKeyPath string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(privateKeyPath); err == nil {
			return errf("private key file already exists: %s", privateKeyPath)
		}
		if _, err := os.Stat(publicKeyPath); err == nil {
			return errf("public key file already exists: %s", publicKeyPath)
		}
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("marshaling private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("marshaling public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	if err := secureWriteBytes(privateKeyPath, privPEM, 0o600); err != nil {
		return err
	}
	return secureWriteBytes(publicKeyPath, pubPEM, 0o600)
}

// Sign signs flowPath's byte content with the PEM private key at
// privateKeyPath and writes the sidecar JSON next to it (or to
// sidecarPathOverride, when non-empty).
func Sign(flowPath, privateKeyPath, keyID, sidecarPathOverride string, overwrite bool) (string, error) {
	normalizedKeyID, err := NormalizeKeyID(keyID)
	if err != nil {
		return "", err
	}

	flowBytes, err := readRegularFile(flowPath)
	if err != nil {
		return "", err
	}
	privBytes, err := readRegularFile(privateKeyPath)
	if err != nil {
		return "", err
	}
	priv, err := loadPrivateKey(privBytes)
	if err != nil {
		return "", err
	}

	sidecarPath := sidecarPathOverride
	if sidecarPath == "" {
		sidecarPath = SidecarPath(flowPath)
	}
	if !overwrite {
		if _, err := os.Stat(sidecarPath); err == nil {
			return "", errf("signature file already exists: %s", sidecarPath)
		}
	}

	sig := ed25519.Sign(priv, flowBytes)
	payload := sidecarPayload{
		Version:   FlowSignatureVersion,
		Algorithm: FlowSignatureAlgorithm,
		KeyID:     normalizedKeyID,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}
	serialized, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling signature sidecar: %w", err)
	}
	if err := secureWriteBytes(sidecarPath, serialized, 0o600); err != nil {
		return "", err
	}
	return sidecarPath, nil
}

// Trust copies a public key into the trust store under <key_id>.pem.
func Trust(publicKeyPath, keyID string, overwrite bool) (string, error) {
	normalizedKeyID, err := NormalizeKeyID(keyID)
	if err != nil {
		return "", err
	}
	keyBytes, err := readRegularFile(publicKeyPath)
	if err != nil {
		return "", err
	}
	if _, err := loadPublicKey(keyBytes); err != nil {
		return "", err
	}

	dir, err := paths.TrustedFlowKeysDir(true)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(dir, normalizedKeyID+".pem")
	if !overwrite {
		if _, err := os.Stat(dest); err == nil {
			return "", errf("key %q already trusted at %s", normalizedKeyID, dest)
		}
	}
	if err := secureWriteBytes(dest, keyBytes, 0o600); err != nil {
		return "", err
	}
	return dest, nil
}

// LoadMetadata parses a sidecar file's contents.
func LoadMetadata(sidecarPath string) (*Metadata, error) {
	raw, err := readRegularFile(sidecarPath)
	if err != nil {
		return nil, err
	}
	var payload sidecarPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errf("invalid signature file at %s: expected UTF-8 JSON", sidecarPath)
	}
	if payload.Version != FlowSignatureVersion {
		return nil, errf("unsupported signature version at %s: %d (expected %d)", sidecarPath, payload.Version, FlowSignatureVersion)
	}
	if payload.Algorithm != FlowSignatureAlgorithm {
		return nil, errf("unsupported signature algorithm at %s: %q (expected %q)", sidecarPath, payload.Algorithm, FlowSignatureAlgorithm)
	}
	if strings.TrimSpace(payload.KeyID) == "" {
		return nil, errf("invalid signature at %s: missing key_id", sidecarPath)
	}
	if strings.TrimSpace(payload.Signature) == "" {
		return nil, errf("invalid signature at %s: missing signature", sidecarPath)
	}
	normalizedKeyID, err := NormalizeKeyID(payload.KeyID)
	if err != nil {
		return nil, err
	}
	return &Metadata{
		Version:   payload.Version,
		Algorithm: payload.Algorithm,
		KeyID:     normalizedKeyID,
		Signature: strings.TrimSpace(payload.Signature),
	}, nil
}

// VerifyOptions configures Verify's key resolution.
type VerifyOptions struct {
	RequireSignature bool
	PublicKeyPath    string // explicit override; takes precedence over the trust store
	TrustedKeysDir   string // override; empty means the default trust store
	SidecarPath      string // override; empty means "<flowPath>.sig"
}

// Verify checks flowPath's signature sidecar against the trust store. It
// returns (false, nil) when no sidecar exists and RequireSignature is false.
func Verify(flowPath string, flowContent []byte, opts VerifyOptions) (bool, error) {
	sidecarPath := opts.SidecarPath
	if sidecarPath == "" {
		sidecarPath = SidecarPath(flowPath)
	}
	if _, err := os.Stat(sidecarPath); errors.Is(err, os.ErrNotExist) {
		if opts.RequireSignature {
			return false, &VerificationError{err: errf("missing signature for %s (expected %s)", flowPath, sidecarPath)}
		}
		return false, nil
	}

	metadata, err := LoadMetadata(sidecarPath)
	if err != nil {
		return false, err
	}
	sigBytes, err := base64.StdEncoding.DecodeString(metadata.Signature)
	if err != nil {
		return false, errf("invalid signature field: expected valid base64")
	}

	publicKeyPath := opts.PublicKeyPath
	if publicKeyPath == "" {
		trustedDir := opts.TrustedKeysDir
		if trustedDir == "" {
			trustedDir, err = paths.TrustedFlowKeysDir(false)
			if err != nil {
				return false, err
			}
		}
		publicKeyPath = filepath.Join(trustedDir, metadata.KeyID+".pem")
		if _, err := os.Stat(publicKeyPath); errors.Is(err, os.ErrNotExist) {
			return false, &VerificationError{err: errf("untrusted key_id=%q: expected %s (use 'flow trust')", metadata.KeyID, publicKeyPath)}
		}
	}

	pubBytes, err := readRegularFile(publicKeyPath)
	if err != nil {
		return false, err
	}
	pub, err := loadPublicKey(pubBytes)
	if err != nil {
		return false, err
	}

	if !ed25519.Verify(pub, flowContent, sigBytes) {
		return false, &VerificationError{err: errf("invalid signature for %s (key_id=%q, sidecar=%s)", flowPath, metadata.KeyID, sidecarPath)}
	}
	return true, nil
}

func loadPrivateKey(pemBytes []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errf("invalid private key: expected PEM")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errf("invalid private key: %v", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errf("unsupported private key type: expected Ed25519 PEM")
	}
	return priv, nil
}

func loadPublicKey(pemBytes []byte) (ed25519.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errf("invalid public key: expected PEM")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errf("invalid public key: %v", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, errf("unsupported public key type: expected Ed25519 PEM")
	}
	return pub, nil
}

func readRegularFile(path string) ([]byte, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, errf("file not found: %s", path)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, errf("path must not be a symlink: %s", path)
	}
	if !info.Mode().IsRegular() {
		return nil, errf("path is not a regular file: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errf("failed to read %s: %v", path, err)
	}
	return data, nil
}

func secureWriteBytes(path string, payload []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	_ = os.Chmod(dir, 0o700)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into place %s: %w", path, err)
	}
	return os.Chmod(path, mode)
}
