package result

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Record gives name based access to one row.
type Record struct {
	columns []Column
	values  []any
}

func (r Record) index(name string) int {
	for i, c := range r.columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Get returns the decoded value of the named column.
func (r Record) Get(name string) (any, bool) {
	i := r.index(name)
	if i < 0 {
		return nil, false
	}
	return r.values[i], true
}

// IsNull reports whether the column exists and holds SQL NULL.
func (r Record) IsNull(name string) bool {
	v, ok := r.Get(name)
	return ok && v == nil
}

func (r Record) GetString(name string) (string, bool) {
	v, ok := r.Get(name)
	if !ok || v == nil {
		return "", false
	}
	return Stringify(v), true
}

func (r Record) GetInt64(name string) (int64, bool) {
	v, ok := r.Get(name)
	if !ok || v == nil {
		return 0, false
	}
	if d, isDec := v.(decimal.Decimal); isDec {
		return d.IntPart(), true
	}
	if b, isBytes := v.([]byte); isBytes {
		v = string(b)
	}
	n, err := cast.ToInt64E(v)
	return n, err == nil
}

func (r Record) GetFloat64(name string) (float64, bool) {
	v, ok := r.Get(name)
	if !ok || v == nil {
		return 0, false
	}
	if d, isDec := v.(decimal.Decimal); isDec {
		f, _ := d.Float64()
		return f, true
	}
	f, err := cast.ToFloat64E(v)
	return f, err == nil
}

func (r Record) GetBool(name string) (bool, bool) {
	v, ok := r.Get(name)
	if !ok || v == nil {
		return false, false
	}
	b, err := cast.ToBoolE(v)
	return b, err == nil
}

func (r Record) GetTime(name string) (time.Time, bool) {
	v, ok := r.Get(name)
	if !ok || v == nil {
		return time.Time{}, false
	}
	t, err := cast.ToTimeE(v)
	return t, err == nil
}

func (r Record) GetDecimal(name string) (decimal.Decimal, bool) {
	v, ok := r.Get(name)
	if !ok || v == nil {
		return decimal.Decimal{}, false
	}
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case int64:
		return decimal.NewFromInt(x), true
	case float64:
		return decimal.NewFromFloat(x), true
	}
	d, err := decimal.NewFromString(Stringify(v))
	return d, err == nil
}
