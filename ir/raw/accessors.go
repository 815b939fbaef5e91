package raw

// Type-checked accessors. Each returns the zero value and false when
// the object is absent or of a different type; callers never have to
// type-assert raw objects themselves.

func AsDict(o Object) (Dictionary, bool) {
	d, ok := o.(Dictionary)
	return d, ok
}

func AsArray(o Object) (Array, bool) {
	a, ok := o.(Array)
	return a, ok
}

func AsName(o Object) (string, bool) {
	n, ok := o.(Name)
	if !ok {
		return "", false
	}
	return n.Value(), true
}

func AsStream(o Object) (Stream, bool) {
	s, ok := o.(Stream)
	return s, ok
}

func AsNumber(o Object) (Number, bool) {
	n, ok := o.(Number)
	return n, ok
}

func AsString(o Object) ([]byte, bool) {
	s, ok := o.(String)
	if !ok {
		return nil, false
	}
	return s.Value(), true
}

func AsReference(o Object) (ObjectRef, bool) {
	r, ok := o.(Reference)
	if !ok {
		return ObjectRef{}, false
	}
	return r.Ref(), true
}

func AsBool(o Object) (bool, bool) {
	b, ok := o.(Boolean)
	if !ok {
		return false, false
	}
	return b.Value(), true
}

// Dictionary getters.

func DictInt(d Dictionary, key string) (int64, bool) {
	if d == nil {
		return 0, false
	}
	o, ok := d.Get(NameObj{Val: key})
	if !ok {
		return 0, false
	}
	n, ok := AsNumber(o)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}

func DictFloat(d Dictionary, key string) (float64, bool) {
	if d == nil {
		return 0, false
	}
	o, ok := d.Get(NameObj{Val: key})
	if !ok {
		return 0, false
	}
	n, ok := AsNumber(o)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

func DictName(d Dictionary, key string) (string, bool) {
	if d == nil {
		return "", false
	}
	o, ok := d.Get(NameObj{Val: key})
	if !ok {
		return "", false
	}
	return AsName(o)
}

func DictBool(d Dictionary, key string) (bool, bool) {
	if d == nil {
		return false, false
	}
	o, ok := d.Get(NameObj{Val: key})
	if !ok {
		return false, false
	}
	return AsBool(o)
}

func DictArray(d Dictionary, key string) (Array, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.Get(NameObj{Val: key})
	if !ok {
		return nil, false
	}
	return AsArray(o)
}

func DictDict(d Dictionary, key string) (Dictionary, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.Get(NameObj{Val: key})
	if !ok {
		return nil, false
	}
	return AsDict(o)
}

func DictString(d Dictionary, key string) ([]byte, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.Get(NameObj{Val: key})
	if !ok {
		return nil, false
	}
	return AsString(o)
}

func DictGet(d Dictionary, key string) (Object, bool) {
	if d == nil {
		return nil, false
	}
	return d.Get(NameObj{Val: key})
}

// IntArray converts an array of numbers to int64s; non-numbers are dropped.
func IntArray(a Array) []int64 {
	if a == nil {
		return nil
	}
	out := make([]int64, 0, a.Len())
	for i := 0; i < a.Len(); i++ {
		o, _ := a.Get(i)
		if n, ok := AsNumber(o); ok {
			out = append(out, n.Int())
		}
	}
	return out
}

// FloatArray converts an array of numbers to float64s; non-numbers are dropped.
func FloatArray(a Array) []float64 {
	if a == nil {
		return nil
	}
	out := make([]float64, 0, a.Len())
	for i := 0; i < a.Len(); i++ {
		o, _ := a.Get(i)
		if n, ok := AsNumber(o); ok {
			out = append(out, n.Float())
		}
	}
	return out
}
