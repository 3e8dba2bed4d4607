//go:build integration

package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/layer-3/assetgate/adapters/store"
	"github.com/layer-3/assetgate/core"
)

var dsn string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "assetgate_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		panic(err)
	}
	dsn = fmt.Sprintf("postgres://postgres:password@%s:%s/assetgate_test?sslmode=disable", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestPostgresStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	now := time.Now().UTC().Truncate(time.Microsecond)
	id := &core.Identity{
		ID:                    uuid.NewString(),
		WalletAddress:         "0xAbC0000000000000000000000000000000000001",
		Role:                  core.RoleInvestor,
		Extra:                 map[string]string{"country": "DE"},
		EmailVerification:     core.EmailUnverified,
		KYCStatus:             core.KYCPending,
		VerificationCode:      "123456",
		VerificationExpiresAt: now.Add(10 * time.Minute),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	require.NoError(t, s.Create(ctx, id))

	byWallet, err := s.FindByWallet(ctx, "0xabc0000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, id.ID, byWallet.ID)
	assert.Equal(t, "DE", byWallet.Extra["country"])
	assert.Empty(t, byWallet.Email)
	assert.True(t, byWallet.VerificationExpiresAt.Equal(id.VerificationExpiresAt))

	byCode, err := s.FindByVerificationCode(ctx, "123456", now)
	require.NoError(t, err)
	assert.Equal(t, id.ID, byCode.ID)

	_, err = s.FindByVerificationCode(ctx, "123456", now.Add(11*time.Minute))
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = s.FindByID(ctx, "1")
	assert.ErrorIs(t, err, core.ErrNotFound, "non-uuid ids match nothing")

	id.Email = "Investor@Example.com"
	id.Role = core.RoleAdmin
	id.KYCInquiryID = "inq_1"
	require.NoError(t, s.Save(ctx, id))

	byEmail, err := s.FindByEmail(ctx, "investor@example.com")
	require.NoError(t, err)
	assert.Equal(t, core.RoleAdmin, byEmail.Role)

	byInquiry, err := s.FindByKYCInquiry(ctx, "inq_1")
	require.NoError(t, err)
	assert.Equal(t, id.ID, byInquiry.ID)

	_, err = s.FindByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPostgresStore_UniqueWalletCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	now := time.Now().UTC()
	first := &core.Identity{ID: uuid.NewString(), WalletAddress: "0xDEF0000000000000000000000000000000000002", Role: core.RoleInvestor, EmailVerification: core.EmailUnverified, KYCStatus: core.KYCPending, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.Create(ctx, first))

	second := *first
	second.ID = uuid.NewString()
	second.WalletAddress = "0xdef0000000000000000000000000000000000002"
	assert.ErrorIs(t, s.Create(ctx, &second), core.ErrDuplicate)

	missing := *first
	missing.ID = uuid.NewString()
	missing.WalletAddress = "0x0000000000000000000000000000000000000003"
	assert.ErrorIs(t, s.Save(ctx, &missing), core.ErrNotFound)
}
