package signature

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateSignVerify_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	priv := filepath.Join(dir, "priv.pem")
	pub := filepath.Join(dir, "pub.pem")
	if err := GenerateKeyPair(priv, pub, false); err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	flowPath := filepath.Join(dir, "flow.json")
	content := []byte(`{"steps":[]}`)
	if err := os.WriteFile(flowPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	sidecarPath, err := Sign(flowPath, priv, "test-key", "", false)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	ok, err := Verify(flowPath, content, VerifyOptions{PublicKeyPath: pub, SidecarPath: sidecarPath})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("expected verification to succeed")
	}
}

func TestVerify_TamperedContentFails(t *testing.T) {
	dir := t.TempDir()
	priv := filepath.Join(dir, "priv.pem")
	pub := filepath.Join(dir, "pub.pem")
	GenerateKeyPair(priv, pub, false)

	flowPath := filepath.Join(dir, "flow.json")
	os.WriteFile(flowPath, []byte(`{"steps":[]}`), 0o644)
	sidecarPath, _ := Sign(flowPath, priv, "test-key", "", false)

	_, err := Verify(flowPath, []byte(`{"steps":[],"tampered":true}`), VerifyOptions{PublicKeyPath: pub, SidecarPath: sidecarPath})
	if err == nil {
		t.Fatal("expected verification error for tampered content")
	}
}

func TestVerify_MissingSidecarStrict(t *testing.T) {
	dir := t.TempDir()
	flowPath := filepath.Join(dir, "flow.json")
	os.WriteFile(flowPath, []byte(`{"steps":[]}`), 0o644)

	_, err := Verify(flowPath, []byte(`{"steps":[]}`), VerifyOptions{RequireSignature: true})
	if err == nil {
		t.Fatal("expected error when signature required but missing")
	}
}

func TestVerify_MissingSidecarNonStrict(t *testing.T) {
	dir := t.TempDir()
	flowPath := filepath.Join(dir, "flow.json")
	os.WriteFile(flowPath, []byte(`{"steps":[]}`), 0o644)

	ok, err := Verify(flowPath, []byte(`{"steps":[]}`), VerifyOptions{RequireSignature: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false when no sidecar present")
	}
}

func TestVerify_UntrustedKeyID(t *testing.T) {
	dir := t.TempDir()
	priv := filepath.Join(dir, "priv.pem")
	pub := filepath.Join(dir, "pub.pem")
	GenerateKeyPair(priv, pub, false)

	flowPath := filepath.Join(dir, "flow.json")
	content := []byte(`{"steps":[]}`)
	os.WriteFile(flowPath, content, 0o644)
	sidecarPath, _ := Sign(flowPath, priv, "test-key", "", false)

	emptyTrustDir := t.TempDir()
	_, err := Verify(flowPath, content, VerifyOptions{TrustedKeysDir: emptyTrustDir, SidecarPath: sidecarPath})
	if err == nil {
		t.Fatal("expected untrusted-key error")
	}
}

func TestParseRequireSignatureEnv(t *testing.T) {
	cases := map[string]bool{"1": true, "true": true, "yes": true, "on": true, "0": false, "false": false, "": false}
	for raw, want := range cases {
		os.Setenv(RequireFlowSignatureEnvVar, raw)
		got, err := ParseRequireSignatureEnv()
		if err != nil {
			t.Fatalf("raw=%q: unexpected error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("raw=%q: got %v want %v", raw, got, want)
		}
	}
	os.Unsetenv(RequireFlowSignatureEnvVar)

	os.Setenv(RequireFlowSignatureEnvVar, "banana")
	defer os.Unsetenv(RequireFlowSignatureEnvVar)
	if _, err := ParseRequireSignatureEnv(); err == nil {
		t.Fatal("expected error for invalid value")
	}
}
