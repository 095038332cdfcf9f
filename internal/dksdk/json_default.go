//go:build !sonic

package dksdk

import (
	"github.com/goccy/go-json"
)

// for imroc/req and the legacy decoder
var jsonMarshal = json.Marshal
var jsonUnmarshal = json.Unmarshal
var jsonIndent = json.Indent
