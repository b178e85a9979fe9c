package state

import (
	"fmt"
	"strings"
)

var paramPrefix = []byte("params/")

func paramKey(name string) []byte {
	buf := make([]byte, len(paramPrefix)+len(name))
	copy(buf, paramPrefix)
	copy(buf[len(paramPrefix):], name)
	return buf
}

// ParamStoreSet persists the raw encoded value of a named parameter.
func (m *Manager) ParamStoreSet(name string, value []byte) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("state: parameter name must not be empty")
	}
	return m.KVPut(paramKey(trimmed), value)
}

// ParamStoreGet returns the raw encoded value of a named parameter. The
// boolean reports whether the parameter has ever been set.
func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, false, fmt.Errorf("state: parameter name must not be empty")
	}
	var value []byte
	found, err := m.KVGet(paramKey(trimmed), &value)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return value, true, nil
}
