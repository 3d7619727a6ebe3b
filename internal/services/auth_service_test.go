package services

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/appfence/appfence/internal/database"
	"github.com/appfence/appfence/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Operator{}, &models.AuditEvent{}))
	return db
}

func TestEnsureAdmin_BootstrapsOnce(t *testing.T) {
	db := testDB(t)
	svc := NewAuthService(db, "test-secret")

	require.NoError(t, svc.EnsureAdmin("hunter22"))

	var count int64
	db.Model(&models.Operator{}).Count(&count)
	require.EqualValues(t, 1, count)

	// Second call is a no-op; existing accounts are never overwritten.
	require.NoError(t, svc.EnsureAdmin("different"))
	db.Model(&models.Operator{}).Count(&count)
	require.EqualValues(t, 1, count)

	_, err := svc.Login("admin", "hunter22")
	require.NoError(t, err)
}

func TestEnsureAdmin_EmptyPasswordSkips(t *testing.T) {
	db := testDB(t)
	svc := NewAuthService(db, "test-secret")

	require.NoError(t, svc.EnsureAdmin(""))

	var count int64
	db.Model(&models.Operator{}).Count(&count)
	require.EqualValues(t, 0, count)
}

func TestLogin_IssuesVerifiableToken(t *testing.T) {
	db := testDB(t)
	svc := NewAuthService(db, "test-secret")
	require.NoError(t, svc.EnsureAdmin("hunter22"))

	token, err := svc.Login("admin", "hunter22")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	username, err := svc.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "admin", username)
}

func TestLogin_RejectsBadCredentials(t *testing.T) {
	db := testDB(t)
	svc := NewAuthService(db, "test-secret")
	require.NoError(t, svc.EnsureAdmin("hunter22"))

	_, err := svc.Login("admin", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login("nobody", "hunter22")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerify_RejectsGarbageAndForeignTokens(t *testing.T) {
	db := testDB(t)
	svc := NewAuthService(db, "test-secret")
	require.NoError(t, svc.EnsureAdmin("hunter22"))

	_, err := svc.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)

	other := NewAuthService(db, "other-secret")
	token, err := other.Login("admin", "hunter22")
	require.NoError(t, err)

	_, err = svc.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}
