package cmd

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// printOut writes v in the configured output format.
func printOut(w io.Writer, v any) error {
	if cfg.Output == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
