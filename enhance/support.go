package enhance

import "github.com/chazu/mender/classfile"

// Runtime support types referenced by enhanced classes. They must be
// visible from every namespace that defines a persistent class.
const (
	ManagedEntityType           = "Mender::ManagedEntity"
	ManagedCompositeType        = "Mender::ManagedComposite"
	ManagedMappedSuperclassType = "Mender::ManagedMappedSuperclass"
	InterceptableType           = "Mender::Interceptable"
	SelfDirtinessTrackerType    = "Mender::SelfDirtinessTracker"
	CompositeTrackerType        = "Mender::CompositeTracker"
	DirtyTrackerType            = "Mender::DirtyTracker"
	AssociationsType            = "Mender::Associations"
)

// SupportTypes returns type descriptions of the runtime support types,
// suitable for defining into a shared parent namespace.
func SupportTypes() []classfile.TypeInfo {
	return []classfile.TypeInfo{
		{Name: ManagedEntityType},
		{Name: ManagedCompositeType},
		{Name: ManagedMappedSuperclassType},
		{Name: InterceptableType},
		{Name: SelfDirtinessTrackerType},
		{Name: CompositeTrackerType},
		{Name: DirtyTrackerType, Superclass: "Object",
			Fields: []classfile.FieldInfo{{Name: "names", Type: "Set<Symbol>"}}},
		{Name: AssociationsType, Superclass: "Object"},
	}
}

// Generated member names. The "$$_" prefix is reserved.
const (
	syntheticPrefix = "$$_"

	fieldInterceptor    = "$$_interceptor"
	fieldTracker        = "$$_tracker"
	fieldOwner          = "$$_owner"
	fieldOwnerAttribute = "$$_ownerAttribute"

	readerPrefix = "$$_read_"
	writerPrefix = "$$_write_"

	selGetInterceptor     = "$$_interceptor"
	selSetInterceptor     = "$$_setInterceptor:"
	selTrackChange        = "$$_trackChange:"
	selHasDirty           = "$$_hasDirtyAttributes"
	selDirtyAttributes    = "$$_dirtyAttributes"
	selClearDirty         = "$$_clearDirtyAttributes"
	selSetOwner           = "$$_setOwner:attribute:"
	selClearOwner         = "$$_clearOwner"
	selInterceptorRead    = "readObject:attribute:value:"
	selInterceptorWrite   = "writeObject:attribute:old:new:"
	selAssociateOne       = "owner:inverse:unlink:link:"
	selAssociateMany      = "owner:inverse:unlinkAll:linkAll:"
	selTrackerAdd         = "add:"
	selTrackerIsEmpty     = "isEmpty"
	selTrackerNames       = "asArray"
	selTrackerClear       = "removeAll"
	selNew                = "new"
	selEqual              = "="
	pragmaAttributeIndex  = "attributeIndex:"
	pragmaEnhancedMethod  = "enhanced"
	emptyDirtyResultClass = "Array"
)

func readerSelector(field string) string { return readerPrefix + field }

func writerSelector(field string) string { return writerPrefix + field + ":" }
