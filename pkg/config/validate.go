package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/go-playground/validator/v10"
)

// Validator checks profiles before anything is provisioned. It reports
// structural problems (schema and typed-shape checks) as errors and dangling
// references (traits or pillars that do not exist) as warnings, matching how
// provisioning later treats them.
type Validator struct {
	fsys     fs.FS
	layout   Layout
	profiles *ProfileStore
	traits   *TraitStore
	schemas  *SchemaRegistry
	validate *validator.Validate
}

// NewValidator creates a validator over the repository tree fsys.
func NewValidator(fsys fs.FS, layout Layout, schemas *SchemaRegistry) *Validator {
	if schemas == nil {
		schemas = NewSchemaRegistry()
	}
	return &Validator{
		fsys:     fsys,
		layout:   layout,
		profiles: NewProfileStore(fsys, layout.Profiles),
		traits:   NewTraitStore(fsys, layout.Traits),
		schemas:  schemas,
		validate: validator.New(),
	}
}

// ValidateProfile checks one profile and the traits and pillars it names.
// Only a cancelled context produces an error; every other problem is a
// finding in the report.
func (v *Validator) ValidateProfile(ctx context.Context, name string) (*ValidationReport, error) {
	report := &ValidationReport{Profile: name}
	file := v.profiles.Path(name)

	profile, err := v.profiles.Load(ctx, name)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		report.add(file, "", SeverityError, "%v", err)
		return report, nil
	}

	if err := v.schemas.ValidateDocument(SchemaProfile, profile.Doc); err != nil {
		report.add(file, "", SeverityError, "%v", err)
	}

	if err := v.validate.Struct(profile.Spec()); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				report.add(file, fe.Namespace(), SeverityError, "failed %q check", fe.Tag())
			}
		} else {
			report.add(file, "", SeverityError, "%v", err)
		}
	}

	for _, trait := range profile.Traits() {
		doc, ok, err := v.traits.Load(ctx, trait)
		tfile := path.Join(v.layout.Traits, trait+".yaml")
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			report.add(tfile, "", SeverityWarning, "trait will be skipped: %v", err)
		case !ok:
			report.add(file, "traits", SeverityWarning, "trait %q not found", trait)
		default:
			if err := v.schemas.ValidateDocument(SchemaTrait, doc); err != nil {
				report.add(tfile, "", SeverityError, "%v", err)
			}
		}
	}

	for _, sel := range profile.Pillars() {
		key := fmt.Sprintf("pillars.%s", sel.Name)
		if sel.Mode == PillarModeSkip {
			report.add(file, key, SeverityWarning, "value is neither a step list, \"all\" nor true; pillar will not run")
			continue
		}

		dir := path.Join(v.layout.Pillars, sel.Name)
		info, err := fs.Stat(v.fsys, dir)
		if err != nil || !info.IsDir() {
			report.add(file, key, SeverityWarning, "pillar directory %s not found", dir)
			continue
		}
		for _, step := range sel.Steps {
			script := path.Join(dir, step+v.layout.StepExt)
			if _, err := fs.Stat(v.fsys, script); err != nil {
				report.add(file, key, SeverityWarning, "step %s not found, it will be skipped", script)
			}
		}
	}

	return report, nil
}

// ValidateAll checks every profile in the repository.
func (v *Validator) ValidateAll(ctx context.Context) ([]*ValidationReport, error) {
	names, err := v.profiles.List(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]*ValidationReport, 0, len(names))
	for _, name := range names {
		report, err := v.ValidateProfile(ctx, name)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}
