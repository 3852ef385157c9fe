package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/coursebridge/launchgate/providers"
	"github.com/coursebridge/launchgate/providers/repofakes"
	"github.com/coursebridge/launchgate/scopes"
	"github.com/coursebridge/launchgate/token"
	"github.com/stretchr/testify/require"
)

func issuerFixture(t *testing.T, opts ...token.IssuerOption) (*token.Issuer, *repofakes.FakeDirectory) {
	t.Helper()

	dir := repofakes.NewFakeDirectory()
	dir.Register(&providers.Provider{
		ID:           "acme",
		TrustDomain:  "https://sims.acme.example",
		Scopes:       scopes.New(scopes.ProgressRead, scopes.ProgressWrite),
		SharedSecret: "acme-secret",
	}, "c1")

	issuer, err := token.NewIssuer(dir, token.NewHMACSigner("launch-secret"), "https://lms.example", opts...)
	require.NoError(t, err)
	return issuer, dir
}

func TestIssuer_Issue(t *testing.T) {
	issuer, _ := issuerFixture(t)

	claims, raw, err := issuer.Issue(context.Background(), "u1", "c1", token.RoleStudent,
		scopes.New(scopes.ProgressWrite), "https://lms.example/cb")
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	require.Equal(t, "u1", claims.SubjectID())
	require.Equal(t, "c1", claims.CourseID)
	require.Equal(t, token.RoleStudent, claims.Role)
	require.Equal(t, "https://lms.example/cb", claims.CallbackURL)
	require.GreaterOrEqual(t, len(claims.Nonce), 8)
	require.NotEmpty(t, claims.ID)

	got, err := token.ParseLaunch(raw, token.NewHMACSigner("launch-secret"))
	require.NoError(t, err)
	require.Equal(t, claims.Nonce, got.Nonce)
}

func TestIssuer_ClampsScopesToProviderGrant(t *testing.T) {
	issuer, _ := issuerFixture(t)

	// attempts.write is not in the provider's configured grant.
	claims, _, err := issuer.Issue(context.Background(), "u1", "c1", token.RoleStudent,
		scopes.New(scopes.ProgressWrite, scopes.AttemptsWrite), "")
	require.NoError(t, err)
	require.Equal(t, scopes.New(scopes.ProgressWrite), claims.ScopeSet())
}

func TestIssuer_NoncesAreUnique(t *testing.T) {
	issuer, _ := issuerFixture(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		claims, _, err := issuer.Issue(context.Background(), "u1", "c1", token.RoleStudent, nil, "")
		require.NoError(t, err)
		require.False(t, seen[claims.Nonce], "nonce reused")
		seen[claims.Nonce] = true
	}
}

func TestIssuer_ExpiryWindow(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, _ := issuerFixture(t,
		token.WithLaunchTTL(7*time.Minute),
		token.WithIssuerNowFunc(func() time.Time { return fixed }),
	)

	claims, _, err := issuer.Issue(context.Background(), "u1", "c1", token.RoleTeacher, nil, "")
	require.NoError(t, err)
	require.Equal(t, fixed, claims.IssuedAt.Time)
	require.Equal(t, fixed.Add(7*time.Minute), claims.ExpiresAt.Time)
}

func TestIssuer_Errors(t *testing.T) {
	issuer, _ := issuerFixture(t)

	t.Run("unknown course", func(t *testing.T) {
		_, _, err := issuer.Issue(context.Background(), "u1", "ghost", token.RoleStudent, nil, "")
		require.ErrorIs(t, err, providers.ErrNotFound)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, _, err := issuer.Issue(context.Background(), "u1", "c1", token.Role("superuser"), nil, "")
		require.Error(t, err)
	})

	t.Run("missing subject", func(t *testing.T) {
		_, _, err := issuer.Issue(context.Background(), "", "c1", token.RoleStudent, nil, "")
		require.Error(t, err)
	})
}
