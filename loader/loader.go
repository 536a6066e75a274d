package loader

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/mender/classfile"
)

var log = commonlog.GetLogger("mender.loader")

// ErrNameMismatch is returned when a class file defines a different class
// than the one requested.
var ErrNameMismatch = errors.New("class file defines a different class")

// Transformer rewrites a class file before it is defined. A nil result with
// a nil error leaves the bytes unchanged.
type Transformer interface {
	Transform(ns *Namespace, className string, data []byte) ([]byte, error)
}

// TransformerFunc adapts a function to the Transformer interface.
type TransformerFunc func(ns *Namespace, className string, data []byte) ([]byte, error)

// Transform calls f.
func (f TransformerFunc) Transform(ns *Namespace, className string, data []byte) ([]byte, error) {
	return f(ns, className, data)
}

// DefineError reports a failed definition. Err is the transformer or parse
// failure, unchanged.
type DefineError struct {
	ClassName string
	Namespace string
	Err       error
}

func (e *DefineError) Error() string {
	return fmt.Sprintf("loader: cannot define %s in %s: %v", e.ClassName, e.Namespace, e.Err)
}

func (e *DefineError) Unwrap() error { return e.Err }

// Loader defines classes into namespaces, giving every registered
// transformer a chance to rewrite the bytes first.
type Loader struct {
	mu           sync.RWMutex
	transformers []Transformer
}

// New creates a loader with no transformers.
func New() *Loader {
	return &Loader{}
}

// AddTransformer appends a transformer. Transformers run in registration order.
func (l *Loader) AddTransformer(t Transformer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transformers = append(l.transformers, t)
}

// DefineClass runs the transformer chain over data, parses the result and
// registers the class in ns. The returned bytes are what was defined.
// On failure nothing is registered.
func (l *Loader) DefineClass(ns *Namespace, className string, data []byte) ([]byte, error) {
	l.mu.RLock()
	chain := append([]Transformer(nil), l.transformers...)
	l.mu.RUnlock()

	current := data
	for _, t := range chain {
		out, err := t.Transform(ns, className, current)
		if err != nil {
			return nil, &DefineError{ClassName: className, Namespace: ns.Name(), Err: err}
		}
		if out != nil {
			current = out
		}
	}

	c, err := classfile.Parse(current)
	if err != nil {
		return nil, &DefineError{ClassName: className, Namespace: ns.Name(), Err: err}
	}
	if c.Name != className {
		return nil, &DefineError{ClassName: className, Namespace: ns.Name(),
			Err: fmt.Errorf("%w: got %s", ErrNameMismatch, c.Name)}
	}

	if ns.Define(c.TypeInfo()) {
		log.Debugf("redefined %s in %s", className, ns.Name())
	} else {
		log.Debugf("defined %s in %s", className, ns.Name())
	}
	return current, nil
}
