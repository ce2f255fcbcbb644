//go:build sonic

package main

import (
	"io"

	"github.com/bytedance/sonic"
)

func writeJSON(w io.Writer, v any) error {
	enc := sonic.ConfigStd.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
