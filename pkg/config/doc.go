// Package config loads, merges and checks forge configuration documents.
//
// # Overview
//
// A repository holds three kinds of documents:
//
//	profiles/<name>.yaml   top-level description of one machine
//	traits/<name>.yaml     reusable fragments a profile pulls in
//	forge.yaml             forge's own Settings
//
// Profiles and traits are decoded into ordered Documents so that the order
// of keys, and with it the order of pillars, is the order in which they are
// written.
//
// # Resolution
//
// The Resolver turns a Profile into its effective configuration. It clones
// the profile and, for every trait in the traits list, sets each top-level
// key of the trait only if the key is still absent:
//
//	# profiles/desktop.yaml        # traits/base.yaml
//	traits: [base, gamer]          shell: zsh
//	editor: nvim                   editor: vim
//
// resolves to editor=nvim and shell=zsh. Nested mappings are not merged; the
// first document to define a top-level key owns all of it.
//
// A trait that does not exist or does not parse is logged and skipped. A
// profile that does not exist or does not parse is fatal and is reported
// as ErrConfigNotFound or ErrConfigInvalid.
//
// # Usage Example
//
//	repo := os.DirFS(settings.Root)
//	profiles := config.NewProfileStore(repo, settings.Layout.Profiles)
//	traits := config.NewTraitStore(repo, settings.Layout.Traits)
//
//	profile, err := profiles.Load(ctx, "desktop")
//	if err != nil {
//	    return err
//	}
//	effective, resolution, err := config.NewResolver(traits, log.Logger).Resolve(ctx, profile)
//
// # Validation
//
// Validator combines the CUE schemas of SchemaRegistry, struct tags on
// ProfileSpec and reference checks against the repository tree. It is used
// by "forge validate" and never by provisioning itself.
package config
