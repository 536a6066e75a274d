package enhance

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/mender/classfile"
)

// RecordAttribute is the class attribute that marks an enhanced class.
const RecordAttribute = "mender.enhanced"

const recordVersion = 1

// Kind is the persistence classification of an enhanced class.
type Kind string

const (
	KindEntity           Kind = "entity"
	KindEmbeddable       Kind = "embeddable"
	KindMappedSuperclass Kind = "mapped-superclass"
)

// Record describes what was done to a class. It is stored, CBOR encoded,
// in the RecordAttribute of the output.
type Record struct {
	Version       int           `cbor:"1,keyasint"`
	Kind          Kind          `cbor:"2,keyasint"`
	Attributes    []string      `cbor:"3,keyasint"` // in attribute index order
	Lazy          []string      `cbor:"4,keyasint,omitempty"`
	Associations  []Association `cbor:"5,keyasint,omitempty"`
	DirtyTracking bool          `cbor:"6,keyasint"`
	Extended      bool          `cbor:"7,keyasint"`
	Rewritten     []string      `cbor:"8,keyasint,omitempty"` // selectors redirected to generated accessors
}

// Association is one managed bidirectional association.
type Association struct {
	Field   string `cbor:"1,keyasint"`
	Target  string `cbor:"2,keyasint"`
	Inverse string `cbor:"3,keyasint"`
	ToMany  bool   `cbor:"4,keyasint"`
}

var recordEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("enhance: failed to create CBOR enc mode: %v", err))
	}
	recordEncMode = em
}

// MarshalRecord serializes a record to canonical CBOR.
func MarshalRecord(r *Record) ([]byte, error) {
	return recordEncMode.Marshal(r)
}

// UnmarshalRecord deserializes a record.
func UnmarshalRecord(data []byte) (*Record, error) {
	var r Record
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("enhance: unmarshal record: %w", err)
	}
	if r.Version != recordVersion {
		return nil, fmt.Errorf("enhance: unsupported record version %d", r.Version)
	}
	return &r, nil
}

// ReadRecord returns the enhancement record of c. The boolean is false when
// the class has not been enhanced.
func ReadRecord(c *classfile.Class) (*Record, bool, error) {
	attr, ok := c.Attribute(RecordAttribute)
	if !ok {
		return nil, false, nil
	}
	r, err := UnmarshalRecord(attr.Data)
	if err != nil {
		return nil, true, err
	}
	return r, true, nil
}
