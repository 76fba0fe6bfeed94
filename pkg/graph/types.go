package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the shading-language type of a property.
type Type int

const (
	TypeFloat Type = iota
	TypeColor
	TypeString
	TypePoint
	TypeVector
	TypeNormal
	TypeMatrix
	TypeArray
)

var typeNames = [...]string{
	TypeFloat:  "float",
	TypeColor:  "color",
	TypeString: "string",
	TypePoint:  "point",
	TypeVector: "vector",
	TypeNormal: "normal",
	TypeMatrix: "matrix",
	TypeArray:  "array",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// Valid reports whether t belongs to the closed type enumeration.
func (t Type) Valid() bool {
	return t >= 0 && int(t) < len(typeNames)
}

// Components returns the number of float components of a tuple type,
// or 0 for types that are not built from a numeric tuple.
func (t Type) Components() int {
	switch t {
	case TypeColor, TypePoint, TypeVector, TypeNormal:
		return 3
	case TypeMatrix:
		return 16
	}
	return 0
}

// ParseType returns the type named by a single token.
func ParseType(token string) (Type, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	for i, name := range typeNames {
		if name == token {
			return Type(i), true
		}
	}
	return TypeFloat, false
}

// Storage is the storage class of a property.
type Storage int

const (
	StorageVarying Storage = iota
	StorageUniform
)

func (s Storage) String() string {
	switch s {
	case StorageVarying:
		return "varying"
	case StorageUniform:
		return "uniform"
	default:
		return fmt.Sprintf("Storage(%d)", int(s))
	}
}

// ParseStorage returns the storage class named by token.
func ParseStorage(token string) (Storage, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "varying":
		return StorageVarying, true
	case "uniform":
		return StorageUniform, true
	}
	return StorageVarying, false
}

// TypeFlow decides which side of a connection adopts the other's type.
type TypeFlow int

const (
	// FlowFromConsumer makes the upstream output adopt the input's type.
	FlowFromConsumer TypeFlow = iota
	// FlowFromSource makes the input adopt the upstream output's type.
	FlowFromSource
)

func (f TypeFlow) String() string {
	if f == FlowFromSource {
		return "source"
	}
	return "consumer"
}

// ParseTypeFlow parses "consumer" or "source".
func ParseTypeFlow(text string) (TypeFlow, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "consumer":
		return FlowFromConsumer, true
	case "source":
		return FlowFromSource, true
	}
	return FlowFromConsumer, false
}

// TypeExtension carries the element type and size of an array property.
type TypeExtension struct {
	Element Type
	Size    int
}

func (e TypeExtension) String() string {
	if e.Size == 0 {
		return e.Element.String()
	}
	return e.Element.String() + ":" + strconv.Itoa(e.Size)
}

// ParseTypeExtension parses "elementType[:size]". The size defaults to 0.
func ParseTypeExtension(text string) (TypeExtension, error) {
	text = strings.TrimSpace(text)
	elem, size, hasSize := strings.Cut(text, ":")
	t, ok := ParseType(elem)
	if !ok || t == TypeArray {
		return TypeExtension{}, fmt.Errorf("invalid array element type %q", elem)
	}
	ext := TypeExtension{Element: t}
	if hasSize {
		n, err := strconv.Atoi(strings.TrimSpace(size))
		if err != nil || n < 0 {
			return TypeExtension{}, fmt.Errorf("invalid array size %q", size)
		}
		ext.Size = n
	}
	return ext, nil
}
