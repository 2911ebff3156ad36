package keyvault

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	rqsotel "github.com/shamanic-technologies/reply-qualification-service/internal/otel"
)

var tracer = rqsotel.Tracer("github.com/shamanic-technologies/reply-qualification-service/internal/keyvault")

// Tier identifies which credential scope actually serviced a request. It is
// threaded through to cost logging as-is; re-deriving it later could drift
// from the key that was actually used.
type Tier string

const (
	TierPlatform Tier = "platform"
	TierOrg      Tier = "org"
	TierApp      Tier = "app"
)

// KeySource is the caller's explicit key-source preference. Empty means
// legacy precedence (org first when an org id is present, then app).
type KeySource string

const (
	SourceDefault  KeySource = ""
	SourcePlatform KeySource = "platform"
	SourceBYOK     KeySource = "byok"
	SourceApp      KeySource = "app"
)

// ValidKeySource reports whether s is an accepted key-source value.
func ValidKeySource(s string) bool {
	switch KeySource(s) {
	case SourceDefault, SourcePlatform, SourceBYOK, SourceApp:
		return true
	}
	return false
}

// ErrOrgIDRequired is returned when keySource=byok is requested without an
// organization id. No network call is made in that case.
var ErrOrgIDRequired = errors.New("keySource byok requires an organization id")

// NotConfiguredError is the terminal resolution failure: every attempted
// scope reported "not configured". Scopes lists what was tried, in order.
type NotConfiguredError struct {
	Scopes []string
}

func (e *NotConfiguredError) Error() string {
	if len(e.Scopes) == 1 {
		return fmt.Sprintf("no %s key configured", e.Scopes[0])
	}
	return fmt.Sprintf("no key configured in any attempted scope: %v", e.Scopes)
}

// ResolvedCredential is a usable upstream credential plus the tier that
// produced it. Held only for the duration of one request; the APIKey must
// never be logged or persisted.
type ResolvedCredential struct {
	APIKey string
	Tier   Tier
}

// ResolveParams identifies the request on whose behalf a credential is
// resolved.
type ResolveParams struct {
	OrgID     string // optional
	AppID     string // optional; resolver default used when empty
	KeySource KeySource
	Caller    CallerContext
}

// Resolver applies the credential precedence policy for one provider.
type Resolver struct {
	client     *Client
	provider   string
	defaultApp string
}

// NewResolver creates a Resolver for the given provider (e.g. "anthropic").
// defaultApp is the app scope used when a request supplies none.
func NewResolver(client *Client, provider, defaultApp string) *Resolver {
	return &Resolver{client: client, provider: provider, defaultApp: defaultApp}
}

// Resolve produces a usable credential for one request.
//
// With an explicit KeySource, only that single path is tried and any
// failure is terminal. With no preference, the org scope is tried first
// (only when an org id was supplied), falling through to the app scope
// only on ErrNotConfigured; a transport error on the org lookup aborts
// resolution rather than falling through.
func (r *Resolver) Resolve(ctx context.Context, p ResolveParams) (*ResolvedCredential, error) {
	ctx, span := tracer.Start(ctx, "keyvault.resolve",
		trace.WithAttributes(
			attribute.String("provider", r.provider),
			attribute.String("key_source", string(p.KeySource)),
		))
	defer span.End()

	appID := p.AppID
	if appID == "" {
		appID = r.defaultApp
	}

	switch p.KeySource {
	case SourcePlatform:
		key, err := r.client.PlatformKey(ctx, r.provider, p.Caller)
		if errors.Is(err, ErrNotConfigured) {
			return nil, &NotConfiguredError{Scopes: []string{"platform"}}
		}
		if err != nil {
			return nil, err
		}
		return &ResolvedCredential{APIKey: key, Tier: TierPlatform}, nil

	case SourceBYOK:
		if p.OrgID == "" {
			return nil, ErrOrgIDRequired
		}
		key, err := r.client.OrgKey(ctx, r.provider, p.OrgID, p.Caller)
		if errors.Is(err, ErrNotConfigured) {
			return nil, &NotConfiguredError{Scopes: []string{"org"}}
		}
		if err != nil {
			return nil, err
		}
		return &ResolvedCredential{APIKey: key, Tier: TierOrg}, nil

	case SourceApp:
		key, err := r.client.AppKey(ctx, r.provider, appID, p.Caller)
		if errors.Is(err, ErrNotConfigured) {
			return nil, &NotConfiguredError{Scopes: []string{"app"}}
		}
		if err != nil {
			return nil, err
		}
		return &ResolvedCredential{APIKey: key, Tier: TierApp}, nil

	case SourceDefault:
		return r.resolveLegacy(ctx, p, appID)

	default:
		return nil, fmt.Errorf("unknown key source %q", p.KeySource)
	}
}

// resolveLegacy is the default-precedence path: org scope first when an org
// id is present, then app scope. Only ErrNotConfigured falls through.
func (r *Resolver) resolveLegacy(ctx context.Context, p ResolveParams, appID string) (*ResolvedCredential, error) {
	var attempted []string

	if p.OrgID != "" {
		attempted = append(attempted, "org")
		key, err := r.client.OrgKey(ctx, r.provider, p.OrgID, p.Caller)
		if err == nil {
			return &ResolvedCredential{APIKey: key, Tier: TierOrg}, nil
		}
		if !errors.Is(err, ErrNotConfigured) {
			return nil, err
		}
	}

	attempted = append(attempted, "app")
	key, err := r.client.AppKey(ctx, r.provider, appID, p.Caller)
	if err == nil {
		return &ResolvedCredential{APIKey: key, Tier: TierApp}, nil
	}
	if errors.Is(err, ErrNotConfigured) {
		return nil, &NotConfiguredError{Scopes: attempted}
	}
	return nil, err
}
