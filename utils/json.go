package utils

import (
	"github.com/bytedance/sonic"
)

// json sorts map keys so output is stable between runs.
var json = sonic.ConfigStd

func JsonString(obj any) string {
	jsonStr, _ := json.Marshal(obj)
	return string(jsonStr)
}

func JsonIndent(obj any) string {
	jsonStr, _ := json.MarshalIndent(obj, "", "  ")
	return string(jsonStr)
}

// exact decodes numbers as json.Number so re-encoding never rounds them.
var exact = sonic.Config{
	EscapeHTML:       true,
	SortMapKeys:      true,
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
	UseNumber:        true,
}.Froze()

// PrettyJSON re-indents a JSON document with sorted keys.
func PrettyJSON(data []byte) ([]byte, error) {
	var v any
	if err := exact.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
