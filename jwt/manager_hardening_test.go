package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("unit-test-secret-unit-test-secret")

func newHS256Manager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := Config{
		AccessTTL: time.Minute,
		Secret:    testSecret,
		Issuer:    "songsvc",
		Audience:  "songsvc-api",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func stdClaims(mutate func(*AccessClaims)) AccessClaims {
	claims := AccessClaims{
		UID:   "u-1",
		Email: "ana@example.com",
		SID:   "sid-1",
		RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    "songsvc",
			Audience:  gjwt.ClaimStrings{"songsvc-api"},
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
		},
	}
	if mutate != nil {
		mutate(&claims)
	}
	return claims
}

func signWith(t *testing.T, method gjwt.SigningMethod, claims AccessClaims, secret []byte, kid string) string {
	t.Helper()
	tok := gjwt.NewWithClaims(method, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	signed, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestParseAccessRejectsForeignAlgorithm(t *testing.T) {
	m := newHS256Manager(t, nil)

	hs512 := signWith(t, gjwt.SigningMethodHS512, stdClaims(nil), testSecret, "")
	if _, err := m.ParseAccess(hs512); err == nil {
		t.Fatal("expected HS512 token to be rejected")
	}

	noneTok := gjwt.NewWithClaims(gjwt.SigningMethodNone, stdClaims(nil))
	none, err := noneTok.SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := m.ParseAccess(none); err == nil {
		t.Fatal("expected unsigned token to be rejected")
	}
}

func TestParseAccessRejectsWrongSecret(t *testing.T) {
	m := newHS256Manager(t, nil)

	forged := signWith(t, gjwt.SigningMethodHS256, stdClaims(nil), []byte("attacker-secret-attacker-secret!"), "")
	if _, err := m.ParseAccess(forged); !errors.Is(err, gjwt.ErrTokenSignatureInvalid) {
		t.Fatalf("expected signature failure, got %v", err)
	}
}

func TestParseAccessIssuerAudienceAndLeeway(t *testing.T) {
	m := newHS256Manager(t, func(c *Config) { c.Leeway = 30 * time.Second })

	good := signWith(t, gjwt.SigningMethodHS256, stdClaims(nil), testSecret, "")
	if _, err := m.ParseAccess(good); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	badIssuer := signWith(t, gjwt.SigningMethodHS256, stdClaims(func(c *AccessClaims) {
		c.Issuer = "other"
	}), testSecret, "")
	if _, err := m.ParseAccess(badIssuer); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	badAudience := signWith(t, gjwt.SigningMethodHS256, stdClaims(func(c *AccessClaims) {
		c.Audience = gjwt.ClaimStrings{"other-api"}
	}), testSecret, "")
	if _, err := m.ParseAccess(badAudience); err == nil {
		t.Fatal("expected wrong audience to fail")
	}

	withinLeeway := signWith(t, gjwt.SigningMethodHS256, stdClaims(func(c *AccessClaims) {
		c.ExpiresAt = gjwt.NewNumericDate(time.Now().Add(-15 * time.Second))
	}), testSecret, "")
	if _, err := m.ParseAccess(withinLeeway); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}

	expired := signWith(t, gjwt.SigningMethodHS256, stdClaims(func(c *AccessClaims) {
		c.ExpiresAt = gjwt.NewNumericDate(time.Now().Add(-2 * time.Minute))
	}), testSecret, "")
	if _, err := m.ParseAccess(expired); !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired in the chain, got %v", err)
	}
}

func TestParseAccessRequiredIdentityClaims(t *testing.T) {
	m := newHS256Manager(t, nil)

	noUID := signWith(t, gjwt.SigningMethodHS256, stdClaims(func(c *AccessClaims) {
		c.UID = ""
	}), testSecret, "")
	if _, err := m.ParseAccess(noUID); !errors.Is(err, gjwt.ErrTokenRequiredClaimMissing) {
		t.Fatalf("expected required claim failure for uid, got %v", err)
	}

	noEmail := signWith(t, gjwt.SigningMethodHS256, stdClaims(func(c *AccessClaims) {
		c.Email = ""
	}), testSecret, "")
	if _, err := m.ParseAccess(noEmail); !errors.Is(err, gjwt.ErrTokenRequiredClaimMissing) {
		t.Fatalf("expected required claim failure for email, got %v", err)
	}
}

func TestParseAccessFutureIssuedAt(t *testing.T) {
	futureIAT := func(c *AccessClaims) {
		c.IssuedAt = gjwt.NewNumericDate(time.Now().Add(time.Hour))
		c.ExpiresAt = gjwt.NewNumericDate(time.Now().Add(2 * time.Hour))
	}

	strict := newHS256Manager(t, func(c *Config) { c.RequireIAT = true })
	token := signWith(t, gjwt.SigningMethodHS256, stdClaims(futureIAT), testSecret, "")
	if _, err := strict.ParseAccess(token); !errors.Is(err, gjwt.ErrTokenUsedBeforeIssued) {
		t.Fatalf("expected used-before-issued failure, got %v", err)
	}

	// Without RequireIAT the parser skips iat, but the future-iat ceiling
	// still applies.
	lax := newHS256Manager(t, nil)
	if _, err := lax.ParseAccess(token); err == nil || !strings.Contains(err.Error(), "iat too far in the future") {
		t.Fatalf("expected future iat ceiling to fire, got %v", err)
	}
}

func TestParseAccessKidRotation(t *testing.T) {
	oldSecret := []byte("old-secret-old-secret-old-secret")
	m := newHS256Manager(t, func(c *Config) {
		c.KeyID = "k2"
		c.VerifyKeys = map[string][]byte{
			"k1": oldSecret,
			"k2": testSecret,
		}
	})

	fresh, err := m.CreateAccess("u-1", "ana@example.com", "Ana", true, "sid-1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(fresh); err != nil {
		t.Fatalf("token signed with current kid must parse: %v", err)
	}

	old := signWith(t, gjwt.SigningMethodHS256, stdClaims(nil), oldSecret, "k1")
	if _, err := m.ParseAccess(old); err != nil {
		t.Fatalf("token signed with retired kid must stay valid: %v", err)
	}

	unknown := signWith(t, gjwt.SigningMethodHS256, stdClaims(nil), testSecret, "k3")
	if _, err := m.ParseAccess(unknown); err == nil {
		t.Fatal("expected unknown kid to fail")
	}

	missing := signWith(t, gjwt.SigningMethodHS256, stdClaims(nil), testSecret, "")
	if _, err := m.ParseAccess(missing); err == nil {
		t.Fatal("expected missing kid to fail when a key set is configured")
	}
}
