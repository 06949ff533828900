package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProducesValidRecord(t *testing.T) {
	rec, err := Generate("instance-1", "https://platform.example.com/webhook")
	require.NoError(t, err)
	assert.True(t, len(rec.ClientID) > len("smartly_"))
	assert.GreaterOrEqual(t, len(rec.ClientSecret), 32)
	assert.NoError(t, Validate(rec))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credential.yaml")

	rec, err := Generate("instance-1", "https://platform.example.com/webhook")
	require.NoError(t, err)
	rec.AllowedCIDRs = []string{"10.0.0.0/8"}

	require.NoError(t, Save(path, rec))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, rec.ClientID, loaded.ClientID)
	assert.Equal(t, rec.AllowedCIDRs, loaded.AllowedCIDRs)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credential.yaml")
	rec, _ := Generate("instance-1", "https://platform.example.com/webhook")
	require.NoError(t, Save(path, rec))

	t.Setenv("SMARTLY_CLIENT_SECRET", "overriddenoverriddenoverriddenov")
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "overriddenoverriddenoverriddenov", loaded.ClientSecret)
}

func TestValidateRejectsShortSecret(t *testing.T) {
	rec := Record{ClientID: "smartly_x", ClientSecret: "short", TrustProxyMode: TrustProxyNever}
	assert.Error(t, Validate(rec))
}

func TestValidateRejectsBadTrustProxyMode(t *testing.T) {
	rec := Record{ClientID: "smartly_x", ClientSecret: "01234567890123456789012345678901", TrustProxyMode: "bogus"}
	assert.Error(t, Validate(rec))
}

func TestValidateRejectsBadCIDR(t *testing.T) {
	rec := Record{
		ClientID: "smartly_x", ClientSecret: "01234567890123456789012345678901",
		TrustProxyMode: TrustProxyNever, AllowedCIDRs: []string{"not-a-cidr"},
	}
	assert.Error(t, Validate(rec))
}

func TestParsedAllowedCIDRsSkipsUnparseable(t *testing.T) {
	rec := Record{AllowedCIDRs: []string{"10.0.0.0/8", "garbage"}}
	nets := ParsedAllowedCIDRs(rec)
	require.Len(t, nets, 1)
}

func TestStoreGetSet(t *testing.T) {
	rec := Record{ClientID: "a"}
	s := NewStore(rec)
	assert.Equal(t, "a", s.Get().ClientID)

	s.Set(Record{ClientID: "b"})
	assert.Equal(t, "b", s.Get().ClientID)
}
