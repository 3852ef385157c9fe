package launch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coursebridge/launchgate/launch"
	"github.com/coursebridge/launchgate/nonce"
	"github.com/coursebridge/launchgate/providers"
	"github.com/coursebridge/launchgate/providers/repofakes"
	"github.com/coursebridge/launchgate/scopes"
	"github.com/coursebridge/launchgate/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	launchSecret   = "launch-secret"
	runtimeSecret  = "runtime-secret"
	acmeOrigin     = "https://sims.acme.example"
	fallbackOrigin = "https://labs.lms.example"
)

type fixture struct {
	directory *repofakes.FakeDirectory
	registry  *nonce.MemoryRegistry
	issuer    *token.Issuer
	exchanger *launch.Exchanger
}

func setup(t *testing.T, opts ...launch.ExchangerOption) *fixture {
	t.Helper()

	dir := repofakes.NewFakeDirectory()
	dir.Register(&providers.Provider{
		ID:           "acme",
		TrustDomain:  acmeOrigin,
		Scopes:       scopes.New(scopes.ProgressRead, scopes.ProgressWrite, scopes.AttemptsWrite),
		SharedSecret: "acme-shared-secret",
	}, "c1")

	reg := nonce.NewMemoryRegistry()

	issuer, err := token.NewIssuer(dir, token.NewHMACSigner(launchSecret), "https://lms.example")
	require.NoError(t, err)

	opts = append([]launch.ExchangerOption{
		launch.WithOriginAllowList([]string{fallbackOrigin}),
	}, opts...)
	ex, err := launch.NewExchanger(dir, reg,
		token.NewHMACSigner(launchSecret), token.NewHMACSigner(runtimeSecret),
		"https://lms.example", opts...)
	require.NoError(t, err)

	return &fixture{directory: dir, registry: reg, issuer: issuer, exchanger: ex}
}

func (f *fixture) issue(t *testing.T, subject, course string, requested scopes.Set) string {
	t.Helper()
	_, raw, err := f.issuer.Issue(context.Background(), subject, course, token.RoleStudent, requested, "")
	require.NoError(t, err)
	return raw
}

func TestExchange_Success(t *testing.T) {
	f := setup(t)
	raw := f.issue(t, "u1", "c1", scopes.New(scopes.ProgressWrite))

	res, err := f.exchanger.Exchange(context.Background(), raw, acmeOrigin)
	require.NoError(t, err)
	require.NotEmpty(t, res.RuntimeToken)
	require.True(t, res.ExpiresAt.After(time.Now()))

	claims, err := token.ParseRuntime(res.RuntimeToken, token.NewHMACSigner(runtimeSecret))
	require.NoError(t, err)
	require.Equal(t, "u1", claims.SubjectID())
	require.Equal(t, "c1", claims.CourseID)
	require.Equal(t, token.RoleStudent, claims.Role)
	require.Equal(t, scopes.New(scopes.ProgressWrite), claims.ScopeSet())
}

func TestExchange_SecondCallIsReplayed(t *testing.T) {
	f := setup(t)
	raw := f.issue(t, "u1", "c1", scopes.New(scopes.ProgressWrite))

	_, err := f.exchanger.Exchange(context.Background(), raw, acmeOrigin)
	require.NoError(t, err)

	_, err = f.exchanger.Exchange(context.Background(), raw, acmeOrigin)
	require.ErrorIs(t, err, launch.ErrReplayed)
}

func TestExchange_ConcurrentExactlyOneWins(t *testing.T) {
	f := setup(t)
	raw := f.issue(t, "u1", "c1", scopes.New(scopes.ProgressWrite))

	const callers = 32
	var wg sync.WaitGroup
	results := make(chan error, callers)
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.exchanger.Exchange(context.Background(), raw, acmeOrigin)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var successes, replays int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, launch.ErrReplayed):
			replays++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, successes, "exactly one concurrent exchange may succeed")
	require.Equal(t, callers-1, replays)
}

func TestExchange_AudienceMismatch(t *testing.T) {
	f := setup(t)
	raw := f.issue(t, "u1", "c1", scopes.New(scopes.ProgressWrite))

	_, err := f.exchanger.Exchange(context.Background(), raw, "https://evil.example")
	require.ErrorIs(t, err, launch.ErrAudienceMismatch)

	// The failed attempt must not have consumed the nonce.
	_, err = f.exchanger.Exchange(context.Background(), raw, acmeOrigin)
	require.NoError(t, err)
}

func TestExchange_Expired(t *testing.T) {
	f := setup(t)

	signer := token.NewHMACSigner(launchSecret)
	raw, err := signer.Sign(&token.LaunchClaims{
		CourseID: "c1",
		Role:     token.RoleStudent,
		Scopes:   []string{"progress.write"},
		Nonce:    "0123456789abcdef",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	require.NoError(t, err)

	_, err = f.exchanger.Exchange(context.Background(), raw, acmeOrigin)
	require.ErrorIs(t, err, launch.ErrExpired)
}

func TestExchange_InvalidToken(t *testing.T) {
	f := setup(t)

	t.Run("garbage", func(t *testing.T) {
		_, err := f.exchanger.Exchange(context.Background(), "not-a-token", acmeOrigin)
		require.ErrorIs(t, err, launch.ErrInvalidToken)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		raw, err := token.NewHMACSigner("attacker-key").Sign(&token.LaunchClaims{
			CourseID: "c1",
			Nonce:    "0123456789abcdef",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "u1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		})
		require.NoError(t, err)

		_, err = f.exchanger.Exchange(context.Background(), raw, acmeOrigin)
		require.ErrorIs(t, err, launch.ErrInvalidToken)
	})

	t.Run("nonce below minimum length", func(t *testing.T) {
		raw, err := token.NewHMACSigner(launchSecret).Sign(&token.LaunchClaims{
			CourseID: "c1",
			Nonce:    "short",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "u1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		})
		require.NoError(t, err)

		_, err = f.exchanger.Exchange(context.Background(), raw, acmeOrigin)
		require.ErrorIs(t, err, launch.ErrInvalidToken)
	})
}

func TestExchange_ProviderSharedSecretSignature(t *testing.T) {
	f := setup(t)

	// A launch token signed by the provider's own registered shared secret
	// must verify too.
	raw, err := token.NewHMACSigner("acme-shared-secret").Sign(&token.LaunchClaims{
		CourseID: "c1",
		Role:     token.RoleStudent,
		Scopes:   []string{"progress.write"},
		Nonce:    "fedcba9876543210",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	require.NoError(t, err)

	res, err := f.exchanger.Exchange(context.Background(), raw, acmeOrigin)
	require.NoError(t, err)
	require.NotEmpty(t, res.RuntimeToken)
}

func TestExchange_ScopeNarrowingChain(t *testing.T) {
	f := setup(t)

	// The launch token claims a scope outside the provider's configured
	// grant (forged or stale); the runtime token must not carry it.
	raw, err := token.NewHMACSigner(launchSecret).Sign(&token.LaunchClaims{
		CourseID: "c1",
		Role:     token.RoleStudent,
		Scopes:   []string{"progress.write", "files.write"},
		Nonce:    "aaaabbbbccccdddd",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	require.NoError(t, err)

	res, err := f.exchanger.Exchange(context.Background(), raw, acmeOrigin)
	require.NoError(t, err)

	provider, err := f.directory.Get(context.Background(), "acme")
	require.NoError(t, err)

	runtimeScopes := res.Claims.ScopeSet()
	require.Equal(t, scopes.New(scopes.ProgressWrite), runtimeScopes)
	require.True(t, runtimeScopes.SubsetOf(provider.Scopes))
}

func TestExchange_FallbackAllowList(t *testing.T) {
	f := setup(t)

	// Course with no registered provider: only the configured allow-list
	// may redeem.
	raw, err := token.NewHMACSigner(launchSecret).Sign(&token.LaunchClaims{
		CourseID: "orphan-course",
		Role:     token.RoleStudent,
		Scopes:   []string{"progress.write"},
		Nonce:    "1111222233334444",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	require.NoError(t, err)

	_, err = f.exchanger.Exchange(context.Background(), raw, "https://random.example")
	require.ErrorIs(t, err, launch.ErrAudienceMismatch)

	res, err := f.exchanger.Exchange(context.Background(), raw, fallbackOrigin)
	require.NoError(t, err)
	require.Equal(t, scopes.New(scopes.ProgressWrite), res.Claims.ScopeSet())
}

func TestExchange_FailureAfterClaimConsumesNonce(t *testing.T) {
	dir := repofakes.NewFakeDirectory()
	dir.Register(&providers.Provider{
		ID:           "acme",
		TrustDomain:  acmeOrigin,
		Scopes:       scopes.New(scopes.ProgressWrite),
		SharedSecret: "acme-shared-secret",
	}, "c1")
	reg := nonce.NewMemoryRegistry()

	// A runtime signer that fails on first use, simulating a partial
	// failure after the nonce claim.
	failing := &flakySigner{inner: token.NewHMACSigner(runtimeSecret), failures: 1}
	ex, err := launch.NewExchanger(dir, reg,
		token.NewHMACSigner(launchSecret), failing, "https://lms.example")
	require.NoError(t, err)

	issuer, err := token.NewIssuer(dir, token.NewHMACSigner(launchSecret), "https://lms.example")
	require.NoError(t, err)
	_, raw, err := issuer.Issue(context.Background(), "u1", "c1", token.RoleStudent, scopes.New(scopes.ProgressWrite), "")
	require.NoError(t, err)

	_, err = ex.Exchange(context.Background(), raw, acmeOrigin)
	require.Error(t, err)

	// Fail closed: the nonce is gone, the same token cannot be retried.
	_, err = ex.Exchange(context.Background(), raw, acmeOrigin)
	require.ErrorIs(t, err, launch.ErrReplayed)
}

type flakySigner struct {
	inner    token.Signer
	mu       sync.Mutex
	failures int
}

func (f *flakySigner) Sign(claims jwt.Claims) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return "", assertError("signer unavailable")
	}
	return f.inner.Sign(claims)
}

func (f *flakySigner) GetVerificationKey(t *jwt.Token) (any, error) {
	return f.inner.GetVerificationKey(t)
}

func (f *flakySigner) GetSigningMethod() jwt.SigningMethod {
	return f.inner.GetSigningMethod()
}

type assertError string

func (e assertError) Error() string { return string(e) }
