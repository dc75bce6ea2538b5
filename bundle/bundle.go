// Package bundle splits a struct into one latest-value channel per field.
//
// [Split] takes a struct value and returns a [Senders] and a [Receivers],
// each holding one [baton] channel handle per exported field of the struct,
// named by the field name and initialized to the field's value. The fields
// are independent: sending on one does not wake receivers of another.
//
// Values are checked against the field types at run time. The generic
// helpers [Send], [Next], and [Get] provide typed access to single fields.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/creachadair/baton"
	"golang.org/x/sync/errgroup"
)

// ErrNoField is reported for a field name that is not part of the bundle.
var ErrNoField = errors.New("no such field")

// TypeError is the concrete type of the error reported when a value does not
// match the type of a field.
type TypeError struct {
	Field string
	Want  reflect.Type // the field type
	Got   reflect.Type // the offending type; nil for an untyped nil
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("field %q: value of type %v is not assignable to %v", e.Field, e.Got, e.Want)
}

// layout records the field structure of a bundle. It is shared by the
// senders, receivers, and their clones, and is read-only.
type layout struct {
	typ   reflect.Type
	names []string // in declaration order
	types map[string]reflect.Type
}

func (l *layout) fieldType(name string) (reflect.Type, error) {
	ft, ok := l.types[name]
	if !ok {
		return nil, fmt.Errorf("field %q: %w", name, ErrNoField)
	}
	return ft, nil
}

// check reports whether v may be stored in the named field, and returns the
// value to store.
func (l *layout) check(name string, v any) (any, error) {
	ft, err := l.fieldType(name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		switch ft.Kind() {
		case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
			return reflect.Zero(ft).Interface(), nil
		}
		return nil, &TypeError{Field: name, Want: ft}
	}
	vt := reflect.TypeOf(v)
	if !vt.AssignableTo(ft) {
		return nil, &TypeError{Field: name, Want: ft, Got: vt}
	}
	if ft.Kind() == reflect.Interface {
		return v, nil
	}
	return reflect.ValueOf(v).Convert(ft).Interface(), nil
}

// structValue returns the struct value denoted by rec, which must be a struct
// or a non-nil pointer to a struct.
func structValue(rec any) (reflect.Value, error) {
	rv := reflect.ValueOf(rec)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, errors.New("nil struct pointer")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("value of type %T is not a struct", rec)
	}
	return rv, nil
}

// Split constructs a channel for each exported field of rec, which must be a
// struct or a pointer to a struct, and returns the senders and receivers for
// them. Unexported fields are ignored. The options are applied to every
// channel.
func Split(rec any, opts ...baton.Option) (*Senders, *Receivers, error) {
	rv, err := structValue(rec)
	if err != nil {
		return nil, nil, err
	}
	lay := &layout{typ: rv.Type(), types: make(map[string]reflect.Type)}
	s := &Senders{lay: lay, chans: make(map[string]*baton.Sender[any])}
	r := &Receivers{lay: lay, chans: make(map[string]*baton.Receiver[any])}
	for i := range rv.NumField() {
		f := lay.typ.Field(i)
		if !f.IsExported() {
			continue
		}
		lay.names = append(lay.names, f.Name)
		lay.types[f.Name] = f.Type
		s.chans[f.Name], r.chans[f.Name] = baton.New(rv.Field(i).Interface(), opts...)
	}
	return s, r, nil
}

// Senders holds the sending handles for the fields of a bundle.
type Senders struct {
	lay   *layout
	chans map[string]*baton.Sender[any]
}

// Names returns the names of the fields in s, in declaration order.
func (s *Senders) Names() []string { return append([]string(nil), s.lay.names...) }

// Set sends v on the named field. It reports an error of type *[TypeError]
// if v cannot be assigned to the field, or [baton.ErrClosed] if the field's
// channel is closed.
func (s *Senders) Set(name string, v any) error {
	cv, err := s.lay.check(name, v)
	if err != nil {
		return err
	}
	if err := s.chans[name].Send(cv); err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	return nil
}

// Get returns the current value of the named field.
func (s *Senders) Get(name string) (any, error) {
	if _, err := s.lay.fieldType(name); err != nil {
		return nil, err
	}
	return s.chans[name].Get(), nil
}

// Update sends each field of rec whose value differs from the current value
// of that field, and returns the names of the fields sent. The type of rec
// (or the type it points to) must be the type the bundle was split from.
// Receivers of unchanged fields are not woken.
func (s *Senders) Update(rec any) ([]string, error) {
	rv, err := structValue(rec)
	if err != nil {
		return nil, err
	} else if rv.Type() != s.lay.typ {
		return nil, fmt.Errorf("value of type %v does not match %v", rv.Type(), s.lay.typ)
	}
	var sent []string
	var errs []error
	for _, name := range s.lay.names {
		ok, err := s.chans[name].SendIfChangedFunc(rv.FieldByName(name).Interface(), isEqual)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", name, err))
		} else if ok {
			sent = append(sent, name)
		}
	}
	return sent, errors.Join(errs...)
}

func isEqual(a, b any) bool { return reflect.DeepEqual(a, b) }

// Clone returns a new set of senders for the same fields.
func (s *Senders) Clone() *Senders {
	c := &Senders{lay: s.lay, chans: make(map[string]*baton.Sender[any], len(s.chans))}
	for name, ch := range s.chans {
		c.chans[name] = ch.Clone()
	}
	return c
}

// Receivers returns a new set of receivers for the same fields.
func (s *Senders) Receivers() *Receivers {
	r := &Receivers{lay: s.lay, chans: make(map[string]*baton.Receiver[any], len(s.chans))}
	for name, ch := range s.chans {
		r.chans[name] = ch.Subscribe()
	}
	return r
}

// Close closes all the sending handles in s.
func (s *Senders) Close() error {
	var errs []error
	for _, name := range s.lay.names {
		if err := s.chans[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Receivers holds the receiving handles for the fields of a bundle.
type Receivers struct {
	lay   *layout
	chans map[string]*baton.Receiver[any]
}

// Names returns the names of the fields in r, in declaration order.
func (r *Receivers) Names() []string { return append([]string(nil), r.lay.names...) }

// Next waits for a value of the named field not yet seen by r, as
// [baton.Receiver.Next].
func (r *Receivers) Next(ctx context.Context, name string) (any, error) {
	if _, err := r.lay.fieldType(name); err != nil {
		return nil, err
	}
	return r.chans[name].Next(ctx)
}

// Get returns the current value of the named field without marking it seen.
func (r *Receivers) Get(name string) (any, error) {
	if _, err := r.lay.fieldType(name); err != nil {
		return nil, err
	}
	return r.chans[name].Get(), nil
}

// Load copies the current value of every field into dst, which must be a
// pointer to a struct of the type the bundle was split from. It does not mark
// any value seen.
func (r *Receivers) Load(dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Type() != r.lay.typ {
		return fmt.Errorf("destination of type %T is not a non-nil *%v", dst, r.lay.typ)
	}
	rv = rv.Elem()
	for _, name := range r.lay.names {
		v := r.chans[name].Get()
		f := rv.FieldByName(name)
		if v == nil {
			f.SetZero()
		} else {
			f.Set(reflect.ValueOf(v))
		}
	}
	return nil
}

// Watch calls fn with the name and value of each field as new values arrive,
// until every field's channel has ended or ctx ends. Calls to fn are not
// concurrent. Watch reports nil if all the fields ended, otherwise the error
// that ended the watch.
//
// Watch consumes values from the receivers of r, so concurrent calls to
// [Receivers.Next] on r share values with it.
func (r *Receivers) Watch(ctx context.Context, fn func(name string, v any)) error {
	var μ sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range r.lay.names {
		ch := r.chans[name]
		g.Go(func() error {
			for {
				v, err := ch.Next(gctx)
				if errors.Is(err, baton.ErrEnded) {
					return nil
				} else if err != nil {
					return err
				}
				μ.Lock()
				fn(name, v)
				μ.Unlock()
			}
		})
	}
	return g.Wait()
}

// Clone returns a new set of receivers for the same fields, each positioned
// where the corresponding receiver of r is.
func (r *Receivers) Clone() *Receivers {
	c := &Receivers{lay: r.lay, chans: make(map[string]*baton.Receiver[any], len(r.chans))}
	for name, ch := range r.chans {
		c.chans[name] = ch.Clone()
	}
	return c
}

// Close closes all the receiving handles in r.
func (r *Receivers) Close() error {
	var errs []error
	for _, name := range r.lay.names {
		if err := r.chans[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Send sends v on the named field of s. The type T must be assignable to the
// field type.
func Send[T any](s *Senders, name string, v T) error { return s.Set(name, v) }

// Next waits for a value of the named field of r not yet seen, and returns it
// as a T. It reports an error of type *[TypeError] if the field type is not
// T.
func Next[T any](ctx context.Context, r *Receivers, name string) (T, error) {
	var zero T
	if err := checkType[T](r.lay, name); err != nil {
		return zero, err
	}
	v, err := r.Next(ctx, name)
	if err != nil || v == nil {
		return zero, err
	}
	return v.(T), nil
}

// Get returns the current value of the named field of r as a T.
func Get[T any](r *Receivers, name string) (T, error) {
	var zero T
	if err := checkType[T](r.lay, name); err != nil {
		return zero, err
	}
	if v := r.chans[name].Get(); v != nil {
		return v.(T), nil
	}
	return zero, nil
}

func checkType[T any](l *layout, name string) error {
	ft, err := l.fieldType(name)
	if err != nil {
		return err
	}
	if want := reflect.TypeFor[T](); want != ft {
		return &TypeError{Field: name, Want: ft, Got: want}
	}
	return nil
}
