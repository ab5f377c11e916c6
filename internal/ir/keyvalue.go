package ir

import "fmt"

// KeyValueOpKind identifies a KeyValueOperation variant. Values are wire tags.
type KeyValueOpKind uint32

const (
	KeyValueGet KeyValueOpKind = iota
	KeyValueSet
	KeyValueDelete
	KeyValueListKeys
	KeyValueExists
)

var keyValueOpNames = [...]string{"get", "set", "delete", "list_keys", "exists"}

func (k KeyValueOpKind) String() string {
	if int(k) < len(keyValueOpNames) {
		return keyValueOpNames[k]
	}
	return fmt.Sprintf("op(%d)", uint32(k))
}

// Known reports whether k is a recognized storage operation.
func (k KeyValueOpKind) Known() bool {
	return int(k) < len(keyValueOpNames)
}

// ParseKeyValueOpKind resolves a snake_case operation name.
func ParseKeyValueOpKind(name string) (KeyValueOpKind, error) {
	for i, n := range keyValueOpNames {
		if n == name {
			return KeyValueOpKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown key-value operation %q", name)
}

// KeyValueOperation is the payload of a KeyValue effect.
type KeyValueOperation struct {
	Op     KeyValueOpKind `json:"op"`
	Key    string         `json:"key,omitempty"`
	Value  []byte         `json:"value,omitempty"`  // Set
	Prefix string         `json:"prefix,omitempty"` // ListKeys; empty lists every key
}

// Describe renders "get token", "list_keys prefix*" etc.
func (op KeyValueOperation) Describe() string {
	switch op.Op {
	case KeyValueListKeys:
		if op.Prefix == "" {
			return op.Op.String()
		}
		return op.Op.String() + " " + op.Prefix + "*"
	default:
		return op.Op.String() + " " + op.Key
	}
}

// Get returns a Get operation.
func Get(key string) KeyValueOperation { return KeyValueOperation{Op: KeyValueGet, Key: key} }

// Set returns a Set operation.
func Set(key string, value []byte) KeyValueOperation {
	return KeyValueOperation{Op: KeyValueSet, Key: key, Value: value}
}

// Delete returns a Delete operation.
func Delete(key string) KeyValueOperation { return KeyValueOperation{Op: KeyValueDelete, Key: key} }

// ListKeys returns a ListKeys operation.
func ListKeys(prefix string) KeyValueOperation {
	return KeyValueOperation{Op: KeyValueListKeys, Prefix: prefix}
}

// Exists returns an Exists operation.
func Exists(key string) KeyValueOperation { return KeyValueOperation{Op: KeyValueExists, Key: key} }

// KeyValueResponse is the success result of a storage operation. Op matches
// the operation that produced it; only the fields for that op are set.
type KeyValueResponse struct {
	Op     KeyValueOpKind `json:"op"`
	Value  []byte         `json:"value,omitempty"` // Get
	Found  bool           `json:"found"`           // Get: false means "no value"
	Keys   []string       `json:"keys,omitempty"`  // ListKeys
	Exists bool           `json:"exists"`          // Exists
}

// KeyValueErrorKind classifies storage failures.
type KeyValueErrorKind uint32

const (
	KeyValueErrorIO KeyValueErrorKind = iota
	KeyValueErrorTimeout
	KeyValueErrorOther
)

var keyValueErrorNames = [...]string{"io", "timeout", "other"}

func (k KeyValueErrorKind) String() string {
	if int(k) < len(keyValueErrorNames) {
		return keyValueErrorNames[k]
	}
	return fmt.Sprintf("kv_error(%d)", uint32(k))
}

// KeyValueError is a storage failure reported to the core.
type KeyValueError struct {
	Kind    KeyValueErrorKind `json:"kind"`
	Message string            `json:"message"`
}

func (e *KeyValueError) Error() string {
	if e.Message == "" {
		return "key-value " + e.Kind.String()
	}
	return "key-value " + e.Kind.String() + ": " + e.Message
}

// KeyValueResult is Ok(Response) or Err(Err). Exactly one is non-nil.
type KeyValueResult struct {
	Response *KeyValueResponse `json:"response,omitempty"`
	Err      *KeyValueError    `json:"error,omitempty"`
}
