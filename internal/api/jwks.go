package api

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const (
	jwksCacheTTL = 10 * time.Minute
	// An unknown kid triggers at most one refetch per interval.
	jwksMinRefetch = 30 * time.Second
)

// keySet caches the RSA signing keys published at a JWKS endpoint, keyed by kid.
type keySet struct {
	url    string
	client *http.Client

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	fetches   int
}

func newKeySet(url string) *keySet {
	return &keySet{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// key returns the signing key for kid. The set is refetched when the cache has expired
// or when kid is unknown and the last fetch is older than jwksMinRefetch.
func (s *keySet) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	age := time.Since(s.fetchedAt)
	if key, ok := s.keys[kid]; ok && age < jwksCacheTTL {
		return key, nil
	}
	if s.keys != nil && age < jwksMinRefetch {
		return nil, fmt.Errorf("no signing key with kid %q", kid)
	}

	keys, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.keys, s.fetchedAt = keys, time.Now()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("no signing key with kid %q", kid)
	}
	return key, nil
}

func (s *keySet) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	if s.url == "" {
		return nil, errors.New("jwks url not configured")
	}
	s.fetches++

	set, err := jwk.Fetch(ctx, s.url, jwk.WithHTTPClient(s.client))
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok || key.KeyID() == "" {
			continue
		}
		if pub, err := rsaSigningKey(key); err == nil {
			keys[key.KeyID()] = pub
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("jwks has no usable RSA signing keys")
	}
	return keys, nil
}

func rsaSigningKey(key jwk.Key) (*rsa.PublicKey, error) {
	if key.KeyType() != jwa.RSA {
		return nil, fmt.Errorf("unsupported key type %s", key.KeyType())
	}
	if use := key.KeyUsage(); use != "" && use != string(jwk.ForSignature) {
		return nil, fmt.Errorf("key use %q is not sig", use)
	}
	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("decode key %s: %w", key.KeyID(), err)
	}
	pub, ok := raw.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return pub, nil
}
