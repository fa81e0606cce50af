package gateway

import (
	"bytes"
	"encoding/json"
)

// NormalizeList extracts the instance array from a list response. The service
// answers either with a bare array or with an object wrapping the array in its
// only array-valued property ({"result": [...]}, {"data": [...]}). Anything else
// yields an empty slice and ok == false.
func NormalizeList(raw []byte) (items []json.RawMessage, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []json.RawMessage{}, false
	}
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &items); err != nil {
			return []json.RawMessage{}, false
		}
		return items, true
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return []json.RawMessage{}, false
		}
		var found []json.RawMessage
		arrays := 0
		for _, v := range obj {
			v = bytes.TrimSpace(v)
			if len(v) == 0 || v[0] != '[' {
				continue
			}
			var arr []json.RawMessage
			if err := json.Unmarshal(v, &arr); err != nil {
				continue
			}
			arrays++
			found = arr
		}
		if arrays != 1 {
			return []json.RawMessage{}, false
		}
		if found == nil {
			found = []json.RawMessage{}
		}
		return found, true
	}
	return []json.RawMessage{}, false
}
