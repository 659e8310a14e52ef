package taskqueue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/compute/metadata"
	oidc "github.com/coreos/go-oidc/v3/oidc"
)

// TokenMinter produces a bearer token scoped to a target audience, used to
// authenticate the enqueue side's call to the batch worker endpoint. The
// token's audience equals the endpoint's origin.
type TokenMinter interface {
	Mint(ctx context.Context, audience string) (string, error)
}

// MetadataServerMinter mints identity tokens via the GCE/Cloud Run
// metadata server, the standard way a service account proves its identity
// to another Cloud Run service without exchanging a shared secret.
type MetadataServerMinter struct {
	client *metadata.Client

	mu     sync.Mutex
	cached map[string]cachedToken
}

type cachedToken struct {
	token   string
	expires time.Time
}

// NewMetadataServerMinter constructs a minter backed by the ambient
// metadata server; callers outside of a GCE/Cloud Run environment should
// use NewStaticMinter instead.
func NewMetadataServerMinter() *MetadataServerMinter {
	return &MetadataServerMinter{client: metadata.NewClient(nil), cached: make(map[string]cachedToken)}
}

// Mint returns a cached identity token for audience, refreshing it when
// expired. Google-minted identity tokens are valid for one hour; this
// minter refreshes a minute early.
func (m *MetadataServerMinter) Mint(ctx context.Context, audience string) (string, error) {
	m.mu.Lock()
	if ct, ok := m.cached[audience]; ok && time.Now().Before(ct.expires) {
		m.mu.Unlock()
		return ct.token, nil
	}
	m.mu.Unlock()

	path := fmt.Sprintf("instance/service-accounts/default/identity?audience=%s&format=full", url.QueryEscape(audience))
	tok, err := m.client.GetWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("mint identity token for %s: %w", audience, err)
	}

	expires := time.Now().Add(55 * time.Minute)
	if claims, err := parseExpiry(tok); err == nil {
		expires = claims
	}

	m.mu.Lock()
	m.cached[audience] = cachedToken{token: tok, expires: expires}
	m.mu.Unlock()
	return tok, nil
}

// parseExpiry reads the unverified "exp" claim out of a JWT's payload
// segment, used only to size this process's local cache TTL; the batch
// worker endpoint performs real signature verification.
func parseExpiry(rawIDToken string) (time.Time, error) {
	parts := strings.Split(rawIDToken, ".")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("malformed JWT")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, err
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.Exp == 0 {
		return time.Time{}, fmt.Errorf("no exp claim")
	}
	return time.Unix(claims.Exp, 0).Add(-time.Minute), nil
}

// StaticMinter returns a fixed token on every call, used in tests and in
// deployments that front the batch-worker endpoint with a static shared
// secret instead of OIDC.
type StaticMinter struct {
	Token string
}

func (s StaticMinter) Mint(ctx context.Context, audience string) (string, error) {
	return s.Token, nil
}

var _ TokenMinter = (*MetadataServerMinter)(nil)
var _ TokenMinter = StaticMinter{}

// AudienceFor derives the OIDC audience from an endpoint URL, which is
// its scheme+host origin.
func AudienceFor(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse batch worker endpoint %q: %w", endpoint, err)
	}
	return u.Scheme + "://" + u.Host, nil
}

// Verifier checks incoming "Authorization: Bearer <id_token>" headers on
// /ingest-batch, verifying both signature and audience against Google's
// OIDC issuer (the counterpart to MetadataServerMinter on the receiving
// side).
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewVerifier constructs a Verifier that accepts only tokens whose
// audience equals expectedAudience (typically this service's own origin).
func NewVerifier(ctx context.Context, expectedAudience string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, "https://accounts.google.com")
	if err != nil {
		return nil, fmt.Errorf("discover OIDC provider: %w", err)
	}
	return &Verifier{verifier: provider.Verifier(&oidc.Config{ClientID: expectedAudience})}, nil
}

// Verify validates rawIDToken's signature, issuer, and audience, returning
// the verified subject (the calling service account's email) on success.
func (v *Verifier) Verify(ctx context.Context, rawIDToken string) (subject string, err error) {
	token, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", fmt.Errorf("verify id token: %w", err)
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := token.Claims(&claims); err != nil {
		return "", fmt.Errorf("decode id token claims: %w", err)
	}
	return claims.Email, nil
}
