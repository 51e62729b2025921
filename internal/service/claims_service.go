package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	appErrors "github.com/noah-isme/sustainability-assessment-api/pkg/errors"
	"github.com/noah-isme/sustainability-assessment-api/pkg/idp"
)

// KeySource resolves IdP signing keys by key id.
type KeySource interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// ClaimsConfig lists the accepted issuers and audiences.
type ClaimsConfig struct {
	Issuers   []string
	Audiences []string
	// Leeway tolerates clock skew on exp and iat.
	Leeway time.Duration
}

type idpClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string                          `json:"preferred_username"`
	Email             string                          `json:"email"`
	AuthorizedParty   string                          `json:"azp"`
	Organizations     map[string]models.OrgMembership `json:"organizations"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// ClaimsService turns IdP bearer tokens into principals.
type ClaimsService struct {
	keys      KeySource
	parser    *jwt.Parser
	issuers   map[string]struct{}
	audiences map[string]struct{}
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewClaimsService constructs the resolver.
func NewClaimsService(keys KeySource, cfg ClaimsConfig, metrics *MetricsService, logger *zap.Logger) *ClaimsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = 30 * time.Second
	}
	return &ClaimsService{
		keys: keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(cfg.Leeway),
		),
		issuers:   toSet(cfg.Issuers),
		audiences: toSet(cfg.Audiences),
		metrics:   metrics,
		logger:    logger,
	}
}

// Resolve validates raw and returns the principal it carries. Every validation
// failure yields the same UNAUTHENTICATED error; an unreachable IdP yields UPSTREAM_UNAVAILABLE.
func (s *ClaimsService) Resolve(ctx context.Context, raw string) (*models.Principal, error) {
	principal, err := s.resolve(ctx, raw)
	if err == nil {
		return principal, nil
	}
	s.metrics.IncAuthFailure()
	s.logger.Debug("bearer token rejected", zap.Error(err))
	if errors.Is(err, idp.ErrUnavailable) {
		return nil, appErrors.ErrUpstream
	}
	return nil, appErrors.ErrUnauthenticated
}

func (s *ClaimsService) resolve(ctx context.Context, raw string) (*models.Principal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty token")
	}
	claims := &idpClaims{}
	_, err := s.parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid")
		}
		return s.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.IssuedAt == nil {
		return nil, errors.New("iat claim missing")
	}
	if _, ok := s.issuers[claims.Issuer]; !ok {
		return nil, fmt.Errorf("issuer %q not accepted", claims.Issuer)
	}
	if !s.audienceAccepted(claims) {
		return nil, errors.New("audience not accepted")
	}
	if claims.Subject == "" {
		return nil, errors.New("sub claim missing")
	}
	return principalFromClaims(claims), nil
}

func (s *ClaimsService) audienceAccepted(claims *idpClaims) bool {
	for _, aud := range claims.Audience {
		if _, ok := s.audiences[aud]; ok {
			return true
		}
	}
	if claims.AuthorizedParty != "" {
		_, ok := s.audiences[claims.AuthorizedParty]
		return ok
	}
	return false
}

func principalFromClaims(claims *idpClaims) *models.Principal {
	orgs := make(map[string]models.OrgMembership, len(claims.Organizations))
	for id, m := range claims.Organizations {
		if id == "" {
			continue
		}
		if m.Roles == nil {
			m.Roles = []string{}
		}
		if m.Categories == nil {
			m.Categories = []string{}
		}
		orgs[id] = m
	}
	p := &models.Principal{
		UserID:        claims.Subject,
		Username:      claims.PreferredUsername,
		Email:         claims.Email,
		Organizations: orgs,
		RealmRoles:    claims.RealmAccess.Roles,
	}
	for _, role := range claims.RealmAccess.Roles {
		switch strings.ToLower(role) {
		case models.RoleSuperUser:
			p.IsSuperUser = true
		case models.RoleApplicationAdmin:
			p.IsApplicationAdmin = true
		}
	}
	return p
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

var _ KeySource = (*idp.KeyCache)(nil)
