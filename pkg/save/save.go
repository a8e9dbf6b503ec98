// Package save writes resolved records to files or writers as JSON or YAML.
package save

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/corroborate/pkg/constants"
	"github.com/agentstation/corroborate/pkg/errors"
)

// Marshal encodes v in the given format. JSON is indented.
func Marshal(v any, f Format) ([]byte, error) {
	switch f {
	case FormatYAML:
		return yaml.Marshal(v)
	case FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	return nil, errors.NewValidationError("format", f.String(), "unsupported format")
}

// Unmarshal decodes data in the given format into v.
func Unmarshal(data []byte, f Format, v any) error {
	if f == FormatYAML {
		return yaml.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

// Write encodes v and sends it to the configured writer and path. At least
// one of WithWriter or WithPath is required.
func Write(v any, opts ...Option) error {
	o := Defaults().Apply(opts...)
	if o.writer == nil && o.path == "" {
		return errors.NewConfigError("save", "a path or writer is required", nil)
	}
	if !o.format.IsValid() {
		return errors.NewValidationError("format", o.format.String(), "unsupported format")
	}

	data, err := Marshal(v, o.format)
	if err != nil {
		return errors.WrapIO("marshal", o.path, err)
	}

	if o.writer != nil {
		if _, err := o.writer.Write(data); err != nil {
			return errors.WrapIO("write", "writer", err)
		}
	}
	if o.path != "" {
		if err := os.MkdirAll(filepath.Dir(o.path), constants.DirPermissions); err != nil {
			return errors.WrapIO("mkdir", filepath.Dir(o.path), err)
		}
		if err := os.WriteFile(o.path, data, constants.FilePermissions); err != nil {
			return errors.WrapIO("write", o.path, err)
		}
	}
	return nil
}
