package enhance

// scopedPolicy pins a policy to the namespace of one definition event.
// Every method except LoadingNamespace is promoted from the embedded policy.
type scopedPolicy struct {
	Policy
	ns Namespace
}

// NamespaceAware is implemented by policies whose answers depend on the
// loading namespace. Scope hands such a policy the namespace first and
// delegates to the copy it returns.
type NamespaceAware interface {
	Policy
	WithNamespace(ns Namespace) Policy
}

// Scope returns a view of p whose LoadingNamespace is always ns. The view
// is immutable; build a new one per definition rather than sharing it.
func Scope(p Policy, ns Namespace) Policy {
	if aware, ok := p.(NamespaceAware); ok {
		p = aware.WithNamespace(ns)
	}
	return scopedPolicy{Policy: p, ns: ns}
}

func (s scopedPolicy) LoadingNamespace() Namespace {
	return s.ns
}
