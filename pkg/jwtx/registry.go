package jwtx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// asymmetricMethods are the algorithms a Registry will ever hand out keys
// for. HMAC is deliberately absent so a provider key can never be used as
// a shared secret.
var asymmetricMethods = []string{
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
	"EdDSA",
}

type registryEntry struct {
	kid string
	alg string
	key any
}

// Registry is an immutable lookup of provider verification keys, built once
// from a JWKS. Keys are indexed by kid. Keys that advertise an alg are also
// indexed by it so tokens without a kid header still resolve; when several
// keys share an alg the later one in the set wins that slot.
type Registry struct {
	byKID map[string]registryEntry
	byAlg map[string]registryEntry
}

// NewRegistry parses every signing key in set. Encryption keys are skipped.
// A key that fails to parse fails the whole registry.
func NewRegistry(set JWKS) (*Registry, error) {
	r := &Registry{
		byKID: make(map[string]registryEntry, len(set.Keys)),
		byAlg: make(map[string]registryEntry),
	}

	for _, j := range set.Keys {
		if j.Use != "" && j.Use != "sig" {
			continue
		}
		if j.Alg != "" && !slices.Contains(asymmetricMethods, j.Alg) {
			return nil, fmt.Errorf("%w: key %q advertises %q", ErrUnknownAlgorithm, j.Kid, j.Alg)
		}

		key, err := j.PublicKey()
		if err != nil {
			return nil, fmt.Errorf("jwtx: key %q: %w", j.Kid, err)
		}

		e := registryEntry{kid: j.Kid, alg: j.Alg, key: key}
		if j.Kid != "" {
			r.byKID[j.Kid] = e
		}
		if j.Alg != "" {
			r.byAlg[j.Alg] = e
		}
	}

	if len(r.byKID) == 0 && len(r.byAlg) == 0 {
		return nil, fmt.Errorf("%w: no usable signing keys in set", ErrNoKey)
	}
	return r, nil
}

// Methods implements KeySource.
func (r *Registry) Methods() []string {
	return slices.Clone(asymmetricMethods)
}

// Key implements KeySource.
func (r *Registry) Key(alg, kid string) (any, error) {
	return r.Resolve(alg, kid)
}

// Resolve finds the verification key for a token header. A kid must match
// exactly; without one the alg index is consulted. The key type must be
// compatible with alg either way.
func (r *Registry) Resolve(alg, kid string) (any, error) {
	var (
		e  registryEntry
		ok bool
	)
	if kid != "" {
		e, ok = r.byKID[kid]
		if !ok {
			return nil, fmt.Errorf("%w: no key with kid %q", ErrUnknownAlgorithm, kid)
		}
		if e.alg != "" && e.alg != alg {
			return nil, fmt.Errorf("%w: key %q is %s, token says %s", ErrUnknownAlgorithm, kid, e.alg, alg)
		}
	} else {
		e, ok = r.byAlg[alg]
		if !ok {
			return nil, fmt.Errorf("%w: no key for %q", ErrUnknownAlgorithm, alg)
		}
	}

	if !keyFitsAlgorithm(alg, e.key) {
		return nil, fmt.Errorf("%w: key type %T cannot verify %s", ErrUnknownAlgorithm, e.key, alg)
	}
	return e.key, nil
}

// Len reports how many distinct keys are reachable.
func (r *Registry) Len() int {
	seen := make(map[any]struct{}, len(r.byKID)+len(r.byAlg))
	for _, e := range r.byKID {
		seen[e.kid] = struct{}{}
	}
	for _, e := range r.byAlg {
		if e.kid == "" {
			seen["alg:"+e.alg] = struct{}{}
		}
	}
	return len(seen)
}

// KeyIDs returns the sorted kids in the registry.
func (r *Registry) KeyIDs() []string {
	ids := make([]string, 0, len(r.byKID))
	for kid := range r.byKID {
		ids = append(ids, kid)
	}
	sort.Strings(ids)
	return ids
}

// Algorithms returns the sorted algs that resolve without a kid.
func (r *Registry) Algorithms() []string {
	algs := make([]string, 0, len(r.byAlg))
	for alg := range r.byAlg {
		algs = append(algs, alg)
	}
	sort.Strings(algs)
	return algs
}

func keyFitsAlgorithm(alg string, key any) bool {
	switch {
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"):
		_, ok := key.(*rsa.PublicKey)
		return ok
	case strings.HasPrefix(alg, "ES"):
		_, ok := key.(*ecdsa.PublicKey)
		return ok
	case alg == "EdDSA":
		_, ok := key.(ed25519.PublicKey)
		return ok
	default:
		return false
	}
}
