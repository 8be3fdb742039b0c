package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := NewFileStore(FileStoreConfig{StorageDir: t.TempDir()})
	require.NoError(t, err)
	return fs
}

func testRecord(provider string) *CredentialRecord {
	return &CredentialRecord{
		ProviderID: provider,
		AuthMethod: AuthMethodDevice,
		Secret:     NewRedactedSecret("at-123"),
		Source:     SourceDeviceCode,
		CreatedAt:  time.Now(),
	}
}

func TestFileStore_SaveAndGet(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	id, err := fs.Save(ctx, testRecord("github"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	stored, err := fs.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "github", stored.Record.ProviderID)
	assert.Equal(t, "at-123", stored.Record.Secret.Value())
	assert.False(t, stored.Disabled)
}

func TestFileStore_SaveValidation(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	_, err := fs.Save(ctx, nil)
	assert.Error(t, err)

	_, err = fs.Save(ctx, &CredentialRecord{ProviderID: "p"})
	assert.Error(t, err, "record without secret material must be rejected")

	_, err = fs.Save(ctx, &CredentialRecord{Secret: NewRedactedSecret("x")})
	assert.Error(t, err, "record without provider id must be rejected")
}

func TestFileStore_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(FileStoreConfig{StorageDir: dir})
	require.NoError(t, err)

	id, err := fs.Save(context.Background(), testRecord("gitlab"))
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, id+".json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStore_ListNewestFirst(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	_, err := fs.Save(ctx, testRecord("first"))
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = fs.Save(ctx, testRecord("second"))
	require.NoError(t, err)

	list, err := fs.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Record.ProviderID)
	assert.Equal(t, "first", list[1].Record.ProviderID)
}

func TestFileStore_Disable(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	id, err := fs.Save(ctx, testRecord("github"))
	require.NoError(t, err)

	require.NoError(t, fs.Disable(ctx, id))
	// Disabling twice is a no-op, not an error.
	require.NoError(t, fs.Disable(ctx, id))

	stored, err := fs.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, stored.Disabled)
	assert.False(t, stored.DisabledAt.IsZero())

	// Material survives disabling.
	assert.Equal(t, "at-123", stored.Record.Secret.Value())
}

func TestCredentialRecord_OAuthToken(t *testing.T) {
	record := &CredentialRecord{
		ProviderID:    "github",
		AuthMethod:    AuthMethodDevice,
		Secret:        NewRedactedSecret("at-123"),
		RefreshSecret: NewRedactedSecret("rt-456"),
		Expiry:        time.Now().Add(time.Hour),
	}

	tok := record.OAuthToken()
	require.NotNil(t, tok)
	assert.Equal(t, "at-123", tok.AccessToken)
	assert.Equal(t, "rt-456", tok.RefreshToken)
	assert.True(t, tok.Valid())

	// An expired token round-trips as invalid, which the credentials listing
	// surfaces as status "expired".
	record.Expiry = time.Now().Add(-time.Hour)
	assert.False(t, record.OAuthToken().Valid())

	apiKey := &CredentialRecord{AuthMethod: AuthMethodAPIKey, Secret: NewRedactedSecret("sk")}
	assert.Nil(t, apiKey.OAuthToken())
}

func TestFileStore_DisableUnknown(t *testing.T) {
	fs := newTestStore(t)
	err := fs.Disable(context.Background(), "nope")
	assert.Error(t, err)
}
