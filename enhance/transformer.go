package enhance

import (
	"github.com/chazu/mender/loader"
)

// ClassTransformer is the definition-time hook. It is safe for concurrent
// use: every Transform call scopes the policy to its own namespace and runs
// its own Enhancer.
type ClassTransformer struct {
	policy Policy
	opts   []Option
}

// NewClassTransformer creates a transformer around a long-lived policy.
func NewClassTransformer(p Policy, opts ...Option) *ClassTransformer {
	return &ClassTransformer{policy: p, opts: opts}
}

// Transform enhances one class file for definition in ns. Unless an error
// is returned, the result is either the enhanced class file or the original
// slice. Every failure is reported as a *TransformError.
func (t *ClassTransformer) Transform(ns Namespace, className string, classfileBuffer []byte) ([]byte, error) {
	enhancer := NewEnhancer(Scope(t.policy, ns), t.opts...)
	out, err := enhancer.Enhance(className, classfileBuffer)
	if err != nil {
		return nil, &TransformError{ClassName: className, Err: err}
	}
	return out, nil
}

// Hook adapts t to a loader transformer.
func (t *ClassTransformer) Hook() loader.Transformer {
	return loader.TransformerFunc(func(ns *loader.Namespace, className string, data []byte) ([]byte, error) {
		if ns == nil {
			return t.Transform(nil, className, data)
		}
		return t.Transform(ns, className, data)
	})
}
