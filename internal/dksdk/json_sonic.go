//go:build sonic

package dksdk

import (
	"bytes"

	"github.com/bytedance/sonic"
)

// for imroc/req and the legacy decoder
var jsonMarshal = sonic.Marshal
var jsonUnmarshal = sonic.Unmarshal

func jsonIndent(dst *bytes.Buffer, src []byte, prefix, indent string) error {
	var v any
	if err := sonic.Unmarshal(src, &v); err != nil {
		return err
	}
	out, err := sonic.ConfigStd.MarshalIndent(v, prefix, indent)
	if err != nil {
		return err
	}
	dst.Write(out)
	return nil
}
