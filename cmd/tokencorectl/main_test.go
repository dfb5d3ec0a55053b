package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tokencore/internal/security/password"
	"github.com/dropDatabas3/tokencore/internal/security/pkce"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), out.String())
	return out.String()
}

func kv(out string) map[string]string {
	m := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			m[k] = v
		}
	}
	return m
}

func TestPKCE(t *testing.T) {
	m := kv(run(t, "pkce"))
	assert.Equal(t, "S256", m["code_challenge_method"])
	assert.True(t, pkce.Verify(m["code_verifier"], m["code_challenge"], pkce.MethodS256))
}

func TestSecretHash(t *testing.T) {
	m := kv(run(t, "secret", "hash", "s3cr3t-value"))
	require.NotEmpty(t, m["salt"])
	assert.True(t, password.VerifySecret("s3cr3t-value", m["salt"], m["digest"]))
}

func TestKeysGen_OutDir(t *testing.T) {
	dir := t.TempDir()
	out := run(t, "keys", "gen", "--out-dir", dir)
	assert.Contains(t, out, "kid: ")
	for _, f := range []string{"private.pem", "public.pem", "encryption.key"} {
		_, err := os.Stat(filepath.Join(dir, f))
		require.NoError(t, err, f)
	}

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"keys", "gen", "--out-dir", dir})
	assert.Error(t, root.Execute(), "existing files need --force")
}

func TestUserHash_RejectsWeakPassword(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"user", "hash", "short"})
	err := root.Execute()
	require.ErrorIs(t, err, password.ErrWeak)
	assert.Contains(t, err.Error(), "at least 10 characters")
	assert.Contains(t, err.Error(), "a digit")
}
