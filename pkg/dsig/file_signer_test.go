package dsig

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/require"

	"github.com/SUNET/fedtrust/pkg/federation"
	"github.com/SUNET/fedtrust/pkg/jws"
)

func requireOpenSSL(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("openssl"); err != nil {
		t.Skip("openssl not available")
	}
}

func TestFileSignerRSA(t *testing.T) {
	requireOpenSSL(t)

	tmpDir := t.TempDir()
	certPath := filepath.Join(tmpDir, "cert.pem")
	keyPath := filepath.Join(tmpDir, "key.pem")

	cmd := exec.Command("openssl", "req", "-x509", "-newkey", "rsa:2048",
		"-keyout", keyPath, "-out", certPath, "-days", "1", "-nodes",
		"-subj", "/CN=Test Certificate")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Skipf("failed to generate test certificate: %v, output: %s", err, output)
	}

	signer := NewFileSigner(certPath, keyPath)
	signingKey, err := signer.Load()
	require.NoError(t, err)
	require.Equal(t, jwa.RS256(), signingKey.Algorithm)
	require.NotEmpty(t, signingKey.KeyID)

	pub, err := jwk.Import(signingKey.Signer.Public())
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, signingKey.KeyID))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	stmt := federation.EntityStatement{IssuedAt: 1}
	token, err := jws.Sign(stmt, signingKey, "")
	require.NoError(t, err)

	_, err = jws.Verify(token, set)
	require.NoError(t, err)
}

func TestFileSignerEC(t *testing.T) {
	requireOpenSSL(t)

	tmpDir := t.TempDir()
	certPath := filepath.Join(tmpDir, "cert.pem")
	keyPath := filepath.Join(tmpDir, "key.pem")

	cmd := exec.Command("openssl", "req", "-x509", "-newkey", "ec",
		"-pkeyopt", "ec_paramgen_curve:P-256",
		"-keyout", keyPath, "-out", certPath, "-days", "1", "-nodes",
		"-subj", "/CN=Test EC Certificate")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Skipf("failed to generate test EC certificate: %v, output: %s", err, output)
	}

	signer := NewFileSigner(certPath, keyPath)
	signingKey, err := signer.Load()
	require.NoError(t, err)
	require.Equal(t, jwa.ES256(), signingKey.Algorithm)
}

func TestFileSignerMissingFiles(t *testing.T) {
	signer := NewFileSigner(filepath.Join(os.TempDir(), "does-not-exist-cert.pem"), filepath.Join(os.TempDir(), "does-not-exist-key.pem"))
	_, err := signer.Load()
	require.Error(t, err)
}
