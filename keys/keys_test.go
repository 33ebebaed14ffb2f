package keys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	require.NotEmpty(t, kp.PrivatePEM)
	require.NotEmpty(t, kp.PublicPEM)

	parsed, err := Parse(kp.PrivatePEM, kp.PublicPEM)
	require.NoError(t, err)
	require.Equal(t, kp.Private.D, parsed.Private.D)
	require.Equal(t, kp.Public.N, parsed.Public.N)
}

func TestParseDerivesPublicKey(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	parsed, err := Parse(kp.PrivatePEM, nil)
	require.NoError(t, err)
	require.Equal(t, kp.Public.N, parsed.Public.N)
	require.NotEmpty(t, parsed.PublicPEM)
}

func TestLoadFromDisk(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "instance.pem")
	pubPath := filepath.Join(dir, "instance.pub")
	require.NoError(t, os.WriteFile(privPath, kp.PrivatePEM, 0o600))
	require.NoError(t, os.WriteFile(pubPath, kp.PublicPEM, 0o644))

	loaded, err := Load(privPath, pubPath)
	require.NoError(t, err)
	require.Equal(t, kp.Private.D, loaded.Private.D)

	_, err = Load(filepath.Join(dir, "missing.pem"), "")
	require.Error(t, err)
}

func TestParsePublicRejectsGarbage(t *testing.T) {
	_, err := ParsePublic([]byte("not a key"))
	require.Error(t, err)
}
