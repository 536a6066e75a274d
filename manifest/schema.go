package manifest

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// ErrInvalid is returned when mender.toml does not match the schema.
var ErrInvalid = errors.New("invalid configuration")

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error

	// cue.Context is not safe for concurrent use.
	schemaMu sync.Mutex
)

func loadSchema() {
	schemaCtx = cuecontext.New()
	v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		schemaErr = fmt.Errorf("manifest: compile schema: %w", err)
		return
	}
	schemaDef = v.LookupPath(cue.ParsePath("#Manifest"))
	if err := schemaDef.Err(); err != nil {
		schemaErr = fmt.Errorf("manifest: schema has no #Manifest: %w", err)
	}
}

// validate checks decoded TOML against the schema.
func validate(raw map[string]any) error {
	schemaOnce.Do(loadSchema)
	if schemaErr != nil {
		return schemaErr
	}

	if raw == nil {
		raw = map[string]any{}
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()

	v := schemaDef.Unify(schemaCtx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, cueerrors.Details(err, nil))
	}
	return nil
}
