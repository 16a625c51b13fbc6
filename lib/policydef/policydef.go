// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package policydef

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/crucible-foundation/crucible/lib/protecc"
)

// Document is one parsed policy document. Field order within the
// network and mount lists is significant: it is the evaluation order
// of the compiled rule lists.
type Document struct {
	// CaseInsensitive folds ASCII case in every pattern and probe of
	// the compiled profiles.
	CaseInsensitive bool `yaml:"case_insensitive" json:"case_insensitive"`

	// Paths holds path patterns with their granted permissions.
	Paths []PathEntry `yaml:"paths" json:"paths"`

	// Network holds ordered network rules.
	Network []NetworkEntry `yaml:"network" json:"network"`

	// Mounts holds ordered mount rules.
	Mounts []MountEntry `yaml:"mounts" json:"mounts"`
}

// PathEntry grants permissions to paths matching a glob pattern.
type PathEntry struct {
	Pattern string `yaml:"pattern" json:"pattern"`

	// Permissions are lowercase names: read, write, exec, create,
	// delete.
	Permissions []string `yaml:"permissions" json:"permissions"`
}

// NetworkEntry is the textual form of one network rule. Empty strings
// and zero values mean "don't care".
type NetworkEntry struct {
	Action   string `yaml:"action" json:"action"`
	Protocol string `yaml:"protocol" json:"protocol"`
	Family   string `yaml:"family" json:"family"`
	IP       string `yaml:"ip" json:"ip"`
	PortLow  uint16 `yaml:"port_low" json:"port_low"`
	PortHigh uint16 `yaml:"port_high" json:"port_high"`
	UnixPath string `yaml:"unix_path" json:"unix_path"`
}

// MountEntry is the textual form of one mount rule. Empty strings and
// a zero flags mask mean "don't care".
type MountEntry struct {
	Action    string `yaml:"action" json:"action"`
	Source    string `yaml:"source" json:"source"`
	Target    string `yaml:"target" json:"target"`
	FSType    string `yaml:"fstype" json:"fstype"`
	Options   string `yaml:"options" json:"options"`
	FlagsMask uint32 `yaml:"flags_mask" json:"flags_mask"`
}

// Compiled holds the per-domain profiles of one document. Domains
// absent from the document are nil.
type Compiled struct {
	Path  *protecc.Profile
	Net   *protecc.Profile
	Mount *protecc.Profile
}

// Load reads and parses the policy document at path. Files ending in
// .json or .jsonc are parsed as commented JSON; everything else as
// YAML.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy %s: %w", path, err)
	}
	switch filepath.Ext(path) {
	case ".json", ".jsonc":
		return ParseJSONC(data)
	default:
		return Parse(data)
	}
}

// Parse parses a YAML policy document. Unknown fields are rejected so
// that a misspelled key fails loudly instead of silently dropping a
// rule.
func Parse(data []byte) (*Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing policy yaml: %w", err)
	}
	return &doc, nil
}

// ParseJSONC parses a JSON policy document, tolerating comments and
// trailing commas. Unknown fields are rejected, matching [Parse].
func ParseJSONC(data []byte) (*Document, error) {
	var doc Document
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing policy json: %w", err)
	}
	return &doc, nil
}

// Compile runs every entry through the protecc builders and returns
// the compiled profiles. Failures name the offending entry. The
// compile is all-or-nothing; on error no profiles are returned.
func (d *Document) Compile() (*Compiled, error) {
	var compiled Compiled

	if len(d.Paths) > 0 {
		builder := protecc.NewTrieBuilder(d.CaseInsensitive)
		for i, entry := range d.Paths {
			perms, err := parsePermissions(entry.Permissions)
			if err != nil {
				return nil, fmt.Errorf("paths[%d] %q: %w", i, entry.Pattern, err)
			}
			if err := builder.AddPattern(entry.Pattern, perms); err != nil {
				return nil, fmt.Errorf("paths[%d] %q: %w", i, entry.Pattern, err)
			}
		}
		profile, err := builder.Compile()
		if err != nil {
			return nil, fmt.Errorf("compiling path profile: %w", err)
		}
		compiled.Path = profile
	}

	if len(d.Network) > 0 {
		builder, err := protecc.NewRuleListBuilder(protecc.DomainNet, d.CaseInsensitive)
		if err != nil {
			return nil, err
		}
		for i, entry := range d.Network {
			rule, err := entry.rule()
			if err != nil {
				return nil, fmt.Errorf("network[%d]: %w", i, err)
			}
			if err := builder.AddNetRule(rule); err != nil {
				return nil, fmt.Errorf("network[%d]: %w", i, err)
			}
		}
		profile, err := builder.Compile()
		if err != nil {
			return nil, fmt.Errorf("compiling net profile: %w", err)
		}
		compiled.Net = profile
	}

	if len(d.Mounts) > 0 {
		builder, err := protecc.NewRuleListBuilder(protecc.DomainMount, d.CaseInsensitive)
		if err != nil {
			return nil, err
		}
		for i, entry := range d.Mounts {
			action, err := protecc.ParseAction(entry.Action)
			if err != nil {
				return nil, fmt.Errorf("mounts[%d]: %w", i, err)
			}
			rule := protecc.MountRule{
				Action:    action,
				Source:    entry.Source,
				Target:    entry.Target,
				FSType:    entry.FSType,
				Options:   entry.Options,
				FlagsMask: entry.FlagsMask,
			}
			if err := builder.AddMountRule(rule); err != nil {
				return nil, fmt.Errorf("mounts[%d]: %w", i, err)
			}
		}
		profile, err := builder.Compile()
		if err != nil {
			return nil, fmt.Errorf("compiling mount profile: %w", err)
		}
		compiled.Mount = profile
	}

	return &compiled, nil
}

func (e *NetworkEntry) rule() (protecc.NetRule, error) {
	action, err := protecc.ParseAction(e.Action)
	if err != nil {
		return protecc.NetRule{}, err
	}
	protocol, err := protecc.ParseProtocol(e.Protocol)
	if err != nil {
		return protecc.NetRule{}, err
	}
	family, err := protecc.ParseFamily(e.Family)
	if err != nil {
		return protecc.NetRule{}, err
	}
	return protecc.NetRule{
		Action:    action,
		Protocol:  protocol,
		Family:    family,
		PortLow:   e.PortLow,
		PortHigh:  e.PortHigh,
		IPPattern: e.IP,
		UnixPath:  e.UnixPath,
	}, nil
}

func parsePermissions(names []string) (protecc.Permission, error) {
	var perms protecc.Permission
	for _, name := range names {
		p, err := protecc.ParsePermission(name)
		if err != nil {
			return 0, err
		}
		perms |= p
	}
	return perms, nil
}
