package db

import (
	"context"
	"database/sql"
	"encoding/base64"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// testEncryptionKey is a valid base64-encoded 32-byte key for tests.
var testEncryptionKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

// setupTestDB creates a test database connection and runs migrations for encryption tests
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := Migrate(database); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}

// resetEncryptor clears the package-level encryptor singleton so a test can
// re-initialize it with its own ENCRYPTION_KEY.
func resetEncryptor(t *testing.T) {
	t.Helper()
	encryptorOnce = sync.Once{}
	encryptor = nil
	encryptorErr = nil
	t.Cleanup(func() {
		encryptorOnce = sync.Once{}
		encryptor = nil
		encryptorErr = nil
	})
}

// TestEncryptedTokens tests the full encryption/decryption flow with database operations
func TestEncryptedTokens(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", testEncryptionKey)
	resetEncryptor(t)

	db := setupTestDB(t)
	ctx := context.Background()

	provider := "test-encrypted-provider"
	accessToken := "test-access-token-12345"
	refreshToken := "test-refresh-token-67890"
	expiry := time.Now().Add(1 * time.Hour)
	scope := "test:scope1 test:scope2"

	if err := UpsertOAuthToken(ctx, db, provider, accessToken, refreshToken, expiry, scope); err != nil {
		t.Fatalf("UpsertOAuthToken() error = %v", err)
	}

	// The raw row must not carry plaintext.
	var storedAccess, storedRefresh string
	var encVersion int
	err := db.QueryRow(`SELECT access_token, refresh_token, encryption_version FROM oauth_tokens WHERE provider=$1`, provider).
		Scan(&storedAccess, &storedRefresh, &encVersion)
	if err != nil {
		t.Fatalf("failed to query stored token: %v", err)
	}
	if encVersion != 1 {
		t.Errorf("encryption_version = %d, want 1 (encrypted)", encVersion)
	}
	if storedAccess == accessToken {
		t.Errorf("access_token stored in plaintext, should be encrypted")
	}
	if storedRefresh == refreshToken {
		t.Errorf("refresh_token stored in plaintext, should be encrypted")
	}

	retrievedAccess, retrievedRefresh, retrievedExpiry, retrievedScope, err := GetOAuthToken(ctx, db, provider)
	if err != nil {
		t.Fatalf("GetOAuthToken() error = %v", err)
	}
	if retrievedAccess != accessToken {
		t.Errorf("retrieved access_token = %q, want %q", retrievedAccess, accessToken)
	}
	if retrievedRefresh != refreshToken {
		t.Errorf("retrieved refresh_token = %q, want %q", retrievedRefresh, refreshToken)
	}
	if retrievedScope != scope {
		t.Errorf("retrieved scope = %q, want %q", retrievedScope, scope)
	}
	if retrievedExpiry.Sub(expiry).Abs() > time.Second {
		t.Errorf("expiry mismatch: got %v, want %v", retrievedExpiry, expiry)
	}

	// Updates re-encrypt.
	newAccessToken := "new-access-token-99999"
	newRefreshToken := "new-refresh-token-88888"
	if err := UpsertOAuthToken(ctx, db, provider, newAccessToken, newRefreshToken, time.Now().Add(2*time.Hour), "test:scope3"); err != nil {
		t.Fatalf("UpsertOAuthToken() update error = %v", err)
	}
	retrievedAccess, retrievedRefresh, _, retrievedScope, err = GetOAuthToken(ctx, db, provider)
	if err != nil {
		t.Fatalf("GetOAuthToken() after update error = %v", err)
	}
	if retrievedAccess != newAccessToken {
		t.Errorf("updated access_token = %q, want %q", retrievedAccess, newAccessToken)
	}
	if retrievedRefresh != newRefreshToken {
		t.Errorf("updated refresh_token = %q, want %q", retrievedRefresh, newRefreshToken)
	}
	if retrievedScope != "test:scope3" {
		t.Errorf("updated scope = %q, want test:scope3", retrievedScope)
	}
}

// TestPlaintextTokenCompatibility tests that plaintext tokens (encryption_version=0) can still be read
func TestPlaintextTokenCompatibility(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "")
	resetEncryptor(t)

	db := setupTestDB(t)
	ctx := context.Background()

	provider := "test-plaintext-provider"
	accessToken := "plaintext-access-token"
	refreshToken := "plaintext-refresh-token"
	scope := "plaintext:scope"

	if err := UpsertOAuthToken(ctx, db, provider, accessToken, refreshToken, time.Now().Add(time.Hour), scope); err != nil {
		t.Fatalf("UpsertOAuthToken() error = %v", err)
	}

	var storedAccess string
	var encVersion int
	err := db.QueryRow(`SELECT access_token, encryption_version FROM oauth_tokens WHERE provider=$1`, provider).
		Scan(&storedAccess, &encVersion)
	if err != nil {
		t.Fatalf("failed to query stored token: %v", err)
	}
	if encVersion != 0 {
		t.Errorf("encryption_version = %d, want 0 (plaintext)", encVersion)
	}
	if storedAccess != accessToken {
		t.Errorf("stored access_token = %q, want %q (plaintext)", storedAccess, accessToken)
	}

	retrievedAccess, retrievedRefresh, _, retrievedScope, err := GetOAuthToken(ctx, db, provider)
	if err != nil {
		t.Fatalf("GetOAuthToken() error = %v", err)
	}
	if retrievedAccess != accessToken {
		t.Errorf("retrieved access_token = %q, want %q", retrievedAccess, accessToken)
	}
	if retrievedRefresh != refreshToken {
		t.Errorf("retrieved refresh_token = %q, want %q", retrievedRefresh, refreshToken)
	}
	if retrievedScope != scope {
		t.Errorf("retrieved scope = %q, want %q", retrievedScope, scope)
	}
}

// TestEncryptionMigration tests migrating from plaintext to encrypted tokens
func TestEncryptionMigration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	provider := "test-migration-provider"
	accessToken := "migration-access-token"
	refreshToken := "migration-refresh-token"
	scope := "migration:scope"

	// Step 1: plaintext write with no encryption key.
	t.Setenv("ENCRYPTION_KEY", "")
	resetEncryptor(t)

	if err := UpsertOAuthToken(ctx, db, provider, accessToken, refreshToken, time.Now().Add(time.Hour), scope); err != nil {
		t.Fatalf("UpsertOAuthToken() plaintext error = %v", err)
	}
	var encVersion1 int
	if err := db.QueryRow(`SELECT encryption_version FROM oauth_tokens WHERE provider=$1`, provider).Scan(&encVersion1); err != nil {
		t.Fatalf("failed to query encryption_version: %v", err)
	}
	if encVersion1 != 0 {
		t.Errorf("initial encryption_version = %d, want 0", encVersion1)
	}

	// Step 2: enable encryption and re-upsert, which is what a token refresh does.
	t.Setenv("ENCRYPTION_KEY", testEncryptionKey)
	resetEncryptor(t)

	if err := UpsertOAuthToken(ctx, db, provider, accessToken, refreshToken, time.Now().Add(time.Hour), scope); err != nil {
		t.Fatalf("UpsertOAuthToken() encrypted error = %v", err)
	}
	var encVersion2 int
	var storedAccess string
	if err := db.QueryRow(`SELECT encryption_version, access_token FROM oauth_tokens WHERE provider=$1`, provider).
		Scan(&encVersion2, &storedAccess); err != nil {
		t.Fatalf("failed to query after migration: %v", err)
	}
	if encVersion2 != 1 {
		t.Errorf("after migration encryption_version = %d, want 1", encVersion2)
	}
	if storedAccess == accessToken {
		t.Errorf("after migration, token should be encrypted but is plaintext")
	}

	// Step 3: reads still decrypt correctly.
	retrievedAccess, retrievedRefresh, _, retrievedScope, err := GetOAuthToken(ctx, db, provider)
	if err != nil {
		t.Fatalf("GetOAuthToken() after migration error = %v", err)
	}
	if retrievedAccess != accessToken {
		t.Errorf("after migration retrieved access_token = %q, want %q", retrievedAccess, accessToken)
	}
	if retrievedRefresh != refreshToken {
		t.Errorf("after migration retrieved refresh_token = %q, want %q", retrievedRefresh, refreshToken)
	}
	if retrievedScope != scope {
		t.Errorf("after migration retrieved scope = %q, want %q", retrievedScope, scope)
	}
}

// TestEncryptionKeyNotSet verifies encryption silently disables when the key is not configured
func TestEncryptionKeyNotSet(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "")
	resetEncryptor(t)

	enc, err := getEncryptor()
	if err != nil {
		t.Errorf("getEncryptor() should not error when key not set, got: %v", err)
	}
	if enc != nil {
		t.Errorf("getEncryptor() should return nil when key not set")
	}
}

// TestInvalidEncryptionKey tests handling of invalid encryption keys
func TestInvalidEncryptionKey(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "not-valid-base64!@#")
	resetEncryptor(t)
	if _, err := getEncryptor(); err == nil {
		t.Errorf("getEncryptor() with invalid base64 should return error")
	}

	t.Setenv("ENCRYPTION_KEY", "dGVzdAo=") // decodes to 5 bytes
	resetEncryptor(t)
	if _, err := getEncryptor(); err == nil {
		t.Errorf("getEncryptor() with wrong key length should return error")
	}
}
