package snapshot

import (
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"ratelimitfilter/internal/limit"
	"ratelimitfilter/pkg/errors"
)

const (
	fieldVersion protowire.Number = 1
	fieldEntry   protowire.Number = 2

	fieldNamespace protowire.Number = 1
	fieldLimit     protowire.Number = 2
	fieldVariable  protowire.Number = 3
	fieldHits      protowire.Number = 4
	fieldExpiresAt protowire.Number = 5

	fieldVarName  protowire.Number = 1
	fieldVarValue protowire.Number = 2
)

// Encode serializes s. Output is deterministic for equal snapshots.
func Encode(s Snapshot) []byte {
	b := protowire.AppendTag(nil, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, FormatVersion)
	for _, e := range s.Entries() {
		b = protowire.AppendTag(b, fieldEntry, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeEntry(e))
	}
	return b
}

func encodeEntry(e Entry) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldNamespace, protowire.BytesType)
	b = protowire.AppendString(b, e.Counter.Namespace)
	b = protowire.AppendTag(b, fieldLimit, protowire.BytesType)
	b = protowire.AppendString(b, e.Counter.Limit)
	for _, v := range e.Counter.Variables {
		var vb []byte
		vb = protowire.AppendTag(vb, fieldVarName, protowire.BytesType)
		vb = protowire.AppendString(vb, v.Name)
		vb = protowire.AppendTag(vb, fieldVarValue, protowire.BytesType)
		vb = protowire.AppendString(vb, v.Value)

		b = protowire.AppendTag(b, fieldVariable, protowire.BytesType)
		b = protowire.AppendBytes(b, vb)
	}
	b = protowire.AppendTag(b, fieldHits, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Hits))
	b = protowire.AppendTag(b, fieldExpiresAt, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(e.ExpiresAt.UnixNano()))
	return b
}

// Decode parses a stored snapshot. Any malformed input, including an
// empty buffer, is a decode error; callers handle an absent slot
// themselves.
func Decode(data []byte) (Snapshot, error) {
	if len(data) == 0 {
		return nil, decodeError("snapshot is empty", nil)
	}

	s := New()
	var version uint64
	var sawVersion bool

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, decodeError("invalid field tag", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldVersion:
			if typ != protowire.VarintType {
				return nil, decodeError("version has wrong wire type", nil)
			}
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, decodeError("invalid version", protowire.ParseError(n))
			}
			version, sawVersion = v, true
			data = data[n:]

		case fieldEntry:
			if typ != protowire.BytesType {
				return nil, decodeError("entry has wrong wire type", nil)
			}
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, decodeError("invalid entry", protowire.ParseError(n))
			}
			e, err := decodeEntry(raw)
			if err != nil {
				return nil, err
			}
			key := e.Counter.Key()
			if _, dup := s[key]; dup {
				return nil, decodeError("duplicate counter", nil).WithDetail("counter", e.Counter.String())
			}
			s[key] = e
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, decodeError("invalid field value", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if !sawVersion {
		return nil, decodeError("snapshot has no format version", nil)
	}
	if version != FormatVersion {
		return nil, decodeError("unsupported snapshot format version", nil).WithDetail("version", version)
	}
	return s, nil
}

func decodeEntry(data []byte) (Entry, error) {
	var e Entry
	var sawExpiry bool
	vars := make(map[string]string)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Entry{}, decodeError("invalid entry tag", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldNamespace, fieldLimit:
			if typ != protowire.BytesType {
				return Entry{}, decodeError("entry string has wrong wire type", nil)
			}
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Entry{}, decodeError("invalid entry string", protowire.ParseError(n))
			}
			if num == fieldNamespace {
				e.Counter.Namespace = v
			} else {
				e.Counter.Limit = v
			}
			data = data[n:]

		case fieldVariable:
			if typ != protowire.BytesType {
				return Entry{}, decodeError("variable has wrong wire type", nil)
			}
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Entry{}, decodeError("invalid variable", protowire.ParseError(n))
			}
			name, value, err := decodeVariable(raw)
			if err != nil {
				return Entry{}, err
			}
			if _, dup := vars[name]; dup {
				return Entry{}, decodeError("duplicate counter variable", nil).WithDetail("variable", name)
			}
			vars[name] = value
			data = data[n:]

		case fieldHits:
			if typ != protowire.VarintType {
				return Entry{}, decodeError("hits has wrong wire type", nil)
			}
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Entry{}, decodeError("invalid hits", protowire.ParseError(n))
			}
			if v > math.MaxInt64 {
				return Entry{}, decodeError("hits out of range", nil)
			}
			e.Hits = int64(v)
			data = data[n:]

		case fieldExpiresAt:
			if typ != protowire.VarintType {
				return Entry{}, decodeError("expiry has wrong wire type", nil)
			}
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Entry{}, decodeError("invalid expiry", protowire.ParseError(n))
			}
			e.ExpiresAt = time.Unix(0, protowire.DecodeZigZag(v)).UTC()
			sawExpiry = true
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Entry{}, decodeError("invalid entry field", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if e.Counter.Namespace == "" || e.Counter.Limit == "" {
		return Entry{}, decodeError("entry is missing its counter identity", nil)
	}
	if !sawExpiry {
		return Entry{}, decodeError("entry is missing its expiry", nil).WithDetail("counter", e.Counter.String())
	}
	e.Counter = limit.NewCounter(e.Counter.Namespace, e.Counter.Limit, vars)
	return e, nil
}

func decodeVariable(data []byte) (string, string, error) {
	var name, value string
	var sawName bool

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", "", decodeError("invalid variable tag", protowire.ParseError(n))
		}
		data = data[n:]

		if (num == fieldVarName || num == fieldVarValue) && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return "", "", decodeError("invalid variable string", protowire.ParseError(n))
			}
			if num == fieldVarName {
				name, sawName = v, true
			} else {
				value = v
			}
			data = data[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return "", "", decodeError("invalid variable field", protowire.ParseError(n))
		}
		data = data[n:]
	}

	if !sawName || name == "" {
		return "", "", decodeError("variable has no name", nil)
	}
	return name, value, nil
}

func decodeError(msg string, cause error) *errors.Error {
	return errors.NewError(errors.ErrorTypeDecode, msg).WithCause(cause)
}
