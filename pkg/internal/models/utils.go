package models

import jsoniter "github.com/json-iterator/go"

// FitStruct re-maps a loosely typed payload onto a typed struct via JSON.
func FitStruct(src any, out any) {
	raw, _ := jsoniter.Marshal(src)
	_ = jsoniter.Unmarshal(raw, out)
}
