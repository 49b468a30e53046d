package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Unrated is the sentinel rating value for films without a score.
const Unrated = "unrated"

// NullInt is an integer field that may be missing. It decodes from numbers,
// numeric strings, the empty string and null; anything unparseable reads as
// missing. Missing values are written as null.
type NullInt struct {
	Int64 int64
	Valid bool
}

// NewNullInt returns a valid NullInt.
func NewNullInt(v int64) NullInt {
	return NullInt{Int64: v, Valid: true}
}

func (n NullInt) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if !n.Valid {
		return bson.TypeNull, nil, nil
	}
	return bson.MarshalValue(n.Int64)
}

func (n *NullInt) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	f, ok := numberFromBSON(bson.RawValue{Type: t, Value: data})
	n.setFloat(f, ok)
	return nil
}

func (n NullInt) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(n.Int64, 10)), nil
}

func (n *NullInt) UnmarshalJSON(data []byte) error {
	f, ok, err := numberFromJSON(data)
	if err != nil {
		return err
	}
	n.setFloat(f, ok)
	return nil
}

func (n *NullInt) setFloat(f float64, ok bool) {
	if !ok {
		*n = NullInt{}
		return
	}
	*n = NewNullInt(int64(math.Trunc(f)))
}

// NullFloat is the floating point counterpart of NullInt.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// NewNullFloat returns a valid NullFloat.
func NewNullFloat(v float64) NullFloat {
	return NullFloat{Float64: v, Valid: true}
}

func (n NullFloat) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if !n.Valid {
		return bson.TypeNull, nil, nil
	}
	return bson.MarshalValue(n.Float64)
}

func (n *NullFloat) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	f, ok := numberFromBSON(bson.RawValue{Type: t, Value: data})
	if !ok {
		*n = NullFloat{}
		return nil
	}
	*n = NewNullFloat(f)
	return nil
}

func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

func (n *NullFloat) UnmarshalJSON(data []byte) error {
	f, ok, err := numberFromJSON(data)
	if err != nil {
		return err
	}
	if !ok {
		*n = NullFloat{}
		return nil
	}
	*n = NewNullFloat(f)
	return nil
}

// Rating is a numeric score or the "unrated" sentinel. The zero value is a
// rating of 0.
type Rating struct {
	Value   float64
	Unrated bool
}

// NewRating returns a numeric rating.
func NewRating(v float64) Rating {
	return Rating{Value: v}
}

func (r Rating) String() string {
	if r.Unrated {
		return Unrated
	}
	return strconv.FormatFloat(r.Value, 'f', -1, 64)
}

func (r Rating) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if r.Unrated {
		return bson.MarshalValue(Unrated)
	}
	return bson.MarshalValue(r.Value)
}

func (r *Rating) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	if s, ok := rv.StringValueOK(); ok && isUnrated(s) {
		*r = Rating{Unrated: true}
		return nil
	}
	f, _ := numberFromBSON(rv)
	*r = NewRating(f)
	return nil
}

func (r Rating) MarshalJSON() ([]byte, error) {
	if r.Unrated {
		return json.Marshal(Unrated)
	}
	return json.Marshal(r.Value)
}

func (r *Rating) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil && isUnrated(s) {
		*r = Rating{Unrated: true}
		return nil
	}
	f, _, err := numberFromJSON(data)
	if err != nil {
		return err
	}
	*r = NewRating(f)
	return nil
}

func isUnrated(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), Unrated)
}

func numberFromBSON(rv bson.RawValue) (float64, bool) {
	switch rv.Type {
	case bson.TypeDouble:
		return finite(rv.DoubleOK())
	case bson.TypeInt32:
		v, ok := rv.Int32OK()
		return float64(v), ok
	case bson.TypeInt64:
		v, ok := rv.Int64OK()
		return float64(v), ok
	case bson.TypeDecimal128:
		d, ok := rv.Decimal128OK()
		if !ok {
			return 0, false
		}
		return parseNumber(d.String())
	case bson.TypeString:
		s, ok := rv.StringValueOK()
		if !ok {
			return 0, false
		}
		return parseNumber(s)
	}
	return 0, false
}

func numberFromJSON(data []byte) (float64, bool, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, false, nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, false, err
		}
		f, ok := parseNumber(s)
		return f, ok, nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid number %s: %w", data, err)
	}
	f, ok := finite(f, true)
	return f, ok, nil
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return finite(f, true)
}

func finite(f float64, ok bool) (float64, bool) {
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
