package abm

import "fmt"

// Method is the closed set of operations the dispatcher accepts.
type Method uint8

const (
	MethodCreate Method = iota + 1
	MethodUpdate
	MethodDelete
	MethodList
	MethodFind
	MethodStructure
)

var methodNames = map[Method]string{
	MethodCreate:    "create",
	MethodUpdate:    "update",
	MethodDelete:    "delete",
	MethodList:      "list",
	MethodFind:      "find",
	MethodStructure: "structure",
}

// ParseMethod maps a wire name onto a Method.
func ParseMethod(name string) (Method, error) {
	for m, n := range methodNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
}

func (m Method) String() string {
	if n, ok := methodNames[m]; ok {
		return n
	}
	return fmt.Sprintf("Method(%d)", uint8(m))
}

// needsPredicate reports whether the method refuses to run unfiltered.
func (m Method) needsPredicate() bool {
	return m == MethodUpdate || m == MethodDelete || m == MethodFind
}

func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
