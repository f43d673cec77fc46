package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// TraitLoader loads a trait by name. TraitStore implements it.
type TraitLoader interface {
	Load(ctx context.Context, name string) (*Document, bool, error)
}

// AppliedTrait records the keys one trait contributed to a resolution.
type AppliedTrait struct {
	Name string
	Keys []string
}

// TraitFailure records a trait that exists but could not be loaded.
type TraitFailure struct {
	Name string
	Err  error
}

// Resolution describes what a Resolve call did.
type Resolution struct {
	Profile string
	Applied []AppliedTrait
	Missing []string
	Invalid []TraitFailure
}

// Contributor returns the trait that supplied key, if any.
func (r *Resolution) Contributor(key string) (string, bool) {
	for _, applied := range r.Applied {
		for _, k := range applied.Keys {
			if k == key {
				return applied.Name, true
			}
		}
	}
	return "", false
}

// Resolver merges a profile with the traits it names.
type Resolver struct {
	traits TraitLoader
	logger zerolog.Logger
}

// NewResolver creates a resolver backed by traits.
func NewResolver(traits TraitLoader, logger zerolog.Logger) *Resolver {
	return &Resolver{
		traits: traits,
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve returns the effective configuration for profile.
//
// The profile is cloned and each trait in declaration order only fills in
// top-level keys that are still absent, so profile keys always win and an
// earlier trait wins over a later one. Missing and malformed traits are
// logged and skipped. The input profile is never modified.
func (r *Resolver) Resolve(ctx context.Context, profile *Profile) (*Profile, *Resolution, error) {
	if profile == nil {
		return nil, nil, errors.New("resolve: nil profile")
	}

	effective := profile.Clone()
	res := &Resolution{Profile: profile.Name}

	for _, name := range profile.Traits() {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("resolve %s: %w", profile.Name, err)
		}

		trait, ok, err := r.traits.Load(ctx, name)
		switch {
		case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
			return nil, nil, fmt.Errorf("resolve %s: %w", profile.Name, err)
		case err != nil:
			r.logger.Warn().Err(err).Str("trait", name).Msg("Skipping unreadable trait")
			res.Invalid = append(res.Invalid, TraitFailure{Name: name, Err: err})
			continue
		case !ok:
			r.logger.Warn().Str("trait", name).Msg("Trait not found, skipping")
			res.Missing = append(res.Missing, name)
			continue
		}

		applied := AppliedTrait{Name: name}
		for _, key := range trait.Keys() {
			value, _ := trait.Get(key)
			if effective.Doc.SetIfAbsent(key, cloneValue(value)) {
				applied.Keys = append(applied.Keys, key)
			}
		}
		res.Applied = append(res.Applied, applied)

		r.logger.Debug().
			Str("trait", name).
			Strs("keys", applied.Keys).
			Msg("Trait applied")
	}

	return effective, res, nil
}
