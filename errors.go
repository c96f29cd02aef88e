package berth

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/xraph/go-utils/errs"
)

// =============================================================================
// ERROR CODES
// =============================================================================

const (
	// CodeInvalidKey indicates a malformed key (nil type, reserved wrapper, repeated qualifier tag)
	CodeInvalidKey = "INVALID_KEY"

	// CodeDuplicateBinding indicates two or more bindings share a key
	CodeDuplicateBinding = "DUPLICATE_BINDING"

	// CodeUnresolvedDependency indicates a required dependency has no candidate
	CodeUnresolvedDependency = "UNRESOLVED_DEPENDENCY"

	// CodeCircularDependency indicates a circular dependency was detected
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"

	// CodeInstantiation indicates a factory failed while constructing an instance
	CodeInstantiation = "INSTANTIATION_FAILED"

	// CodeIllegalState indicates misuse of an arena slot, builder or controller
	CodeIllegalState = "ILLEGAL_STATE"

	// CodeNotFound indicates a key is not bound in a registry
	CodeNotFound = "NOT_FOUND"

	// CodeTypeMismatch indicates an instance is not assignable to its key type
	CodeTypeMismatch = "TYPE_MISMATCH"

	// CodeBuildFailed indicates the aggregate build report carries diagnostics
	CodeBuildFailed = "BUILD_FAILED"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrInvalidKey is the sentinel behind every InvalidKeyError.
	ErrInvalidKey = errs.NewError(CodeInvalidKey, "invalid key", nil)

	// ErrDuplicateBinding is the sentinel behind every DuplicateBindingError.
	ErrDuplicateBinding = errs.NewError(CodeDuplicateBinding, "duplicate binding", nil)

	// ErrUnresolvedDependency is the sentinel behind every UnresolvedDependencyError.
	ErrUnresolvedDependency = errs.NewError(CodeUnresolvedDependency, "unresolved dependency", nil)

	// ErrCircularDependency is the sentinel behind every CircularDependencyError.
	ErrCircularDependency = errs.NewError(CodeCircularDependency, "circular dependency", nil)

	// ErrInstantiation is the sentinel behind every InstantiationError.
	ErrInstantiation = errs.NewError(CodeInstantiation, "instantiation failed", nil)

	// ErrIllegalState is the sentinel behind every IllegalStateError.
	ErrIllegalState = errs.NewError(CodeIllegalState, "illegal state", nil)

	// ErrNotFound is returned (wrapped) when a key has no binding.
	ErrNotFound = errs.NewError(CodeNotFound, "binding not found", nil)

	// ErrTypeMismatch is returned (wrapped) when an instance does not fit its key.
	ErrTypeMismatch = errs.NewError(CodeTypeMismatch, "type mismatch", nil)

	// ErrBuildFailed is the sentinel behind BuildError.
	ErrBuildFailed = errs.NewError(CodeBuildFailed, "build failed", nil)
)

// =============================================================================
// DIAGNOSTIC ERRORS
// =============================================================================

// InvalidKeyError reports a malformed key. It is local to the declaration
// that tried to build the key.
type InvalidKeyError struct {
	Type   reflect.Type
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid key %s: %s", typeName(e.Type), e.Reason)
}

func (e *InvalidKeyError) Unwrap() error { return ErrInvalidKey }

// DuplicateBindingError names a key bound more than once and every site
// that bound it.
type DuplicateBindingError struct {
	Key   Key
	Sites []Site
}

func (e *DuplicateBindingError) Error() string {
	sites := make([]string, len(e.Sites))
	for i, s := range e.Sites {
		sites[i] = s.String()
	}

	return fmt.Sprintf("key %s bound %d times: %s", e.Key, len(e.Sites), strings.Join(sites, ", "))
}

func (e *DuplicateBindingError) Unwrap() error { return ErrDuplicateBinding }

// UnresolvedDependencyError reports a required dependency (or a declaring
// binding) with no candidate in the scope or any ancestor.
type UnresolvedDependencyError struct {
	Key        Key
	Dependency Key
	Site       Site
	Declaring  bool
}

func (e *UnresolvedDependencyError) Error() string {
	what := "dependency"
	if e.Declaring {
		what = "declaring binding"
	}

	return fmt.Sprintf("%s %s of %s (%s) is not bound", what, e.Dependency, e.Key, e.Site)
}

func (e *UnresolvedDependencyError) Unwrap() error { return ErrUnresolvedDependency }

// CircularDependencyError reports a cycle among eager edges. Path starts and
// ends with the same key.
type CircularDependencyError struct {
	Path         []Key
	Sites        []Site
	ViaDeclaring bool
}

func (e *CircularDependencyError) Error() string {
	parts := make([]string, len(e.Path))
	for i, k := range e.Path {
		parts[i] = k.String()
	}

	msg := "circular dependency detected: " + strings.Join(parts, " -> ")
	if e.ViaDeclaring {
		msg += " (through a declaring binding)"
	}

	return msg
}

func (e *CircularDependencyError) Unwrap() error { return ErrCircularDependency }

// InstantiationError wraps an error returned by a factory.
type InstantiationError struct {
	Key  Key
	Site Site
	Err  error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("instantiating %s (%s): %v", e.Key, e.Site, e.Err)
}

func (e *InstantiationError) Unwrap() []error { return []error{ErrInstantiation, e.Err} }

// IllegalStateError reports misuse of the runtime: a double write to an
// arena slot, a second launch, a stop before launch and so on.
type IllegalStateError struct {
	Op     string
	Reason string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("illegal state in %s: %s", e.Op, e.Reason)
}

func (e *IllegalStateError) Unwrap() error { return ErrIllegalState }

func illegalState(op, format string, args ...any) *IllegalStateError {
	return &IllegalStateError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ERROR CONSTRUCTORS
// =============================================================================

// ErrKeyNotFound creates an error for a key that has no binding.
func ErrKeyNotFound(key Key) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}

// ErrInstanceTypeMismatch creates an error for an instance that is not
// assignable to the type of its key.
func ErrInstanceTypeMismatch(key Key, actual any) error {
	return fmt.Errorf("%w: %s got %T", ErrTypeMismatch, key, actual)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	return t.String()
}
