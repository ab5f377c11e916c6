package core

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultScriptYAML []byte

// DefaultScript returns the built-in watch-history script.
func DefaultScript() *Script {
	s, err := ParseScriptYAML(defaultScriptYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default script is invalid: %v", err))
	}
	return s
}

// LoadScript reads a script from a .yaml, .yml or .cue file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return ParseScriptCUE(data, path)
	case ".yaml", ".yml":
		return ParseScriptYAML(data)
	default:
		return nil, fmt.Errorf("unsupported script format %q (want .yaml, .yml or .cue)", filepath.Ext(path))
	}
}

// ParseScriptYAML decodes and validates a YAML script. Unknown fields are
// rejected.
func ParseScriptYAML(data []byte) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse script YAML: %w", err)
	}
	return &s, validateScript(&s)
}

// ParseScriptCUE evaluates a CUE script. The top level of the CUE value has
// the same shape as the YAML form.
func ParseScriptCUE(data []byte, filename string) (*Script, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validating CUE value: %w", err)
	}
	var s Script
	if err := v.Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding CUE script: %w", err)
	}
	return &s, validateScript(&s)
}

func validateScript(s *Script) error {
	verrs := Validate(s)
	if len(verrs) == 0 {
		return nil
	}
	errs := make([]error, len(verrs))
	for i, e := range verrs {
		errs[i] = e
	}
	return fmt.Errorf("invalid script %q: %w", s.Name, errors.Join(errs...))
}
