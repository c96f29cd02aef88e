package berth

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// In is a marker type embedded in parameter structs. Each exported field of
// such a struct becomes one dependency.
//
// Example:
//
//	type ServiceParams struct {
//	    berth.In
//
//	    DB     *Database
//	    Logger *Logger `optional:"true"`
//	    Cache  *Cache  `name:"redis"`
//	}
type In struct{}

var (
	inType      = reflect.TypeOf(In{})
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// constructorInfo holds analyzed constructor metadata.
type constructorInfo struct {
	fn       reflect.Value
	fnType   reflect.Type
	result   reflect.Type
	params   []paramInfo
	deps     []Dependency
	hasError bool
}

// paramInfo describes a constructor parameter.
type paramInfo struct {
	typ      reflect.Type
	context  bool
	dep      int         // index into deps, -1 when not a dependency
	isIn     bool        // expanded into fields
	ptr      bool        // In struct passed by pointer
	inFields []fieldInfo // when isIn
}

type fieldInfo struct {
	index []int // path for reflect.Value.FieldByIndex
	dep   int
}

// Constructor turns a plain constructor function into a binding. The key is
// the function's first result type. Parameters become required
// dependencies keyed by their type, except context.Context, which receives
// the construction context, and In structs, whose fields are expanded. The
// function may return (T) or (T, error).
//
// Example:
//
//	b.Add(berth.MustConstructor(NewUserService, berth.Exported()))
func Constructor(fn any, opts ...BindOption) (*BindingBuilder, error) {
	info, err := analyzeConstructor(fn)
	if err != nil {
		return nil, err
	}

	key, err := Of(info.result)
	if err != nil {
		return nil, err
	}

	opts = append([]BindOption{At(CallerSite(1)), DependsOn(info.deps...)}, opts...)

	return Bind(key, info.factory, opts...), nil
}

// MustConstructor is Constructor that panics on a malformed function.
func MustConstructor(fn any, opts ...BindOption) *BindingBuilder {
	opts = append([]BindOption{At(CallerSite(1))}, opts...)

	b, err := Constructor(fn, opts...)
	if err != nil {
		panic(fmt.Sprintf("berth: invalid constructor %T: %v", fn, err))
	}

	return b
}

// analyzeConstructor inspects a constructor function and extracts its
// dependencies and result.
func analyzeConstructor(constructor any) (*constructorInfo, error) {
	if constructor == nil {
		return nil, errors.New("constructor must be a function")
	}

	fnValue := reflect.ValueOf(constructor)
	fnType := fnValue.Type()

	if fnType.Kind() != reflect.Func {
		return nil, errors.New("constructor must be a function")
	}

	if fnType.IsVariadic() {
		return nil, errors.New("constructor must not be variadic")
	}

	info := &constructorInfo{fn: fnValue, fnType: fnType}

	switch fnType.NumOut() {
	case 1:
	case 2:
		if fnType.Out(1) != errorType {
			return nil, errors.New("second result must be error")
		}

		info.hasError = true
	default:
		return nil, fmt.Errorf("constructor must return (T) or (T, error), got %d results", fnType.NumOut())
	}

	info.result = fnType.Out(0)
	if info.result == errorType {
		return nil, errors.New("constructor must return a non-error value")
	}

	for i := 0; i < fnType.NumIn(); i++ {
		param, err := info.analyzeParam(fnType.In(i))
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}

		info.params = append(info.params, param)
	}

	return info, nil
}

func (c *constructorInfo) analyzeParam(t reflect.Type) (paramInfo, error) {
	param := paramInfo{typ: t, dep: -1}

	switch {
	case t == contextType:
		param.context = true
	case isInStruct(t):
		param.isIn = true
		param.ptr = t.Kind() == reflect.Ptr

		fields, err := c.expandInStruct(t)
		if err != nil {
			return param, err
		}

		param.inFields = fields
	default:
		key, err := Of(t)
		if err != nil {
			return param, err
		}

		param.dep = len(c.deps)
		c.deps = append(c.deps, Require(key))
	}

	return param, nil
}

// isInStruct checks whether a type embeds In.
func isInStruct(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return false
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && (field.Type == inType || isInStruct(field.Type)) {
			return true
		}
	}

	return false
}

// expandInStruct turns the exported fields of an In struct into
// dependencies. The name tag adds a Name qualifier; optional:"true" makes
// the dependency optional. Embedded In structs are flattened.
func (c *constructorInfo) expandInStruct(t reflect.Type) ([]fieldInfo, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return c.expandFields(t, nil)
}

func (c *constructorInfo) expandFields(t reflect.Type, prefix []int) ([]fieldInfo, error) {
	var fields []fieldInfo

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		path := append(append([]int(nil), prefix...), i)

		if field.Anonymous {
			if field.Type == inType {
				continue
			}

			if isInStruct(field.Type) {
				if field.Type.Kind() == reflect.Ptr {
					return nil, fmt.Errorf("field %s: embedded In struct must not be a pointer", field.Name)
				}

				nested, err := c.expandFields(field.Type, path)
				if err != nil {
					return nil, err
				}

				fields = append(fields, nested...)

				continue
			}
		}

		if !field.IsExported() {
			continue
		}

		var quals []any
		if name := field.Tag.Get("name"); name != "" {
			quals = append(quals, Name(name))
		}

		key, err := Of(field.Type, quals...)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}

		dep := Require(key)
		if strings.EqualFold(field.Tag.Get("optional"), "true") {
			dep = Optional(key)
		}

		fields = append(fields, fieldInfo{index: path, dep: len(c.deps)})
		c.deps = append(c.deps, dep)
	}

	return fields, nil
}

// factory calls the constructor with the resolved dependencies.
func (c *constructorInfo) factory(ctx context.Context, args Args) (any, error) {
	in := make([]reflect.Value, len(c.params))

	for i, p := range c.params {
		switch {
		case p.context:
			in[i] = reflect.ValueOf(&ctx).Elem()
		case p.isIn:
			structType := p.typ
			if p.ptr {
				structType = structType.Elem()
			}

			sv := reflect.New(structType).Elem()
			for _, f := range p.inFields {
				fv := sv.FieldByIndex(f.index)
				fv.Set(argValue(args.Value(f.dep), fv.Type()))
			}

			if p.ptr {
				in[i] = sv.Addr()
			} else {
				in[i] = sv
			}
		default:
			in[i] = argValue(args.Value(p.dep), p.typ)
		}
	}

	out := c.fn.Call(in)

	if c.hasError && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}

	return out[0].Interface(), nil
}

// argValue converts a resolved instance to a call argument; nil becomes the
// zero value of t.
func argValue(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}

	return reflect.ValueOf(v)
}
