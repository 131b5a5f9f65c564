package harvest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Descriptor is one harvesting job: a start path scanned once per filter.
type Descriptor struct {
	ID               string   `validate:"required,taskid"`
	StartPath        string   `validate:"required"`
	Files            []string `validate:"min=1,dive,regexp"`
	Recursive        bool
	RegularFilesOnly bool
}

type descriptorWire struct {
	StartPath        string   `json:"start_path" yaml:"start_path"`
	Files            []string `json:"files" yaml:"files"`
	Recursive        *bool    `json:"recursive,omitempty" yaml:"recursive,omitempty"`
	RegularFilesOnly *bool    `json:"regular_files_only,omitempty" yaml:"regular_files_only,omitempty"`
}

// Descriptors is the parsed form of the task mapping
// {"<id>": {"start_path": ..., "files": [...]}}, ordered by ID.
type Descriptors []Descriptor

// ParseDescriptors decodes a task mapping. Input starting with "{" is read
// as JSON, anything else as YAML. Unknown fields are rejected in both.
func ParseDescriptors(b []byte) (Descriptors, error) {
	var ds Descriptors
	var err error
	if trimmed := bytes.TrimSpace(b); len(trimmed) > 0 && trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, &ds)
	} else {
		err = yaml.Unmarshal(b, &ds)
	}
	if err != nil {
		return nil, fmt.Errorf("parse task descriptors: %w", err)
	}
	return ds, nil
}

func (ds *Descriptors) UnmarshalJSON(b []byte) error {
	var m map[string]descriptorWire
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*ds = fromWire(m)
	return nil
}

// UnmarshalYAML re-encodes the node so it can be decoded with KnownFields;
// yaml.Node.Decode has no strict mode.
func (ds *Descriptors) UnmarshalYAML(value *yaml.Node) error {
	b, err := yaml.Marshal(value)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var m map[string]descriptorWire
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*ds = fromWire(m)
	return nil
}

func (ds Descriptors) MarshalJSON() ([]byte, error) {
	m := make(map[string]descriptorWire, len(ds))
	for _, d := range ds {
		rec, reg := d.Recursive, d.RegularFilesOnly
		m[d.ID] = descriptorWire{
			StartPath:        d.StartPath,
			Files:            d.Files,
			Recursive:        &rec,
			RegularFilesOnly: &reg,
		}
	}
	return json.Marshal(m)
}

func fromWire(m map[string]descriptorWire) Descriptors {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make(Descriptors, 0, len(ids))
	for _, id := range ids {
		w := m[id]
		out = append(out, Descriptor{
			ID:               id,
			StartPath:        w.StartPath,
			Files:            append([]string(nil), w.Files...),
			Recursive:        boolOr(w.Recursive, true),
			RegularFilesOnly: boolOr(w.RegularFilesOnly, true),
		})
	}
	return out
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
