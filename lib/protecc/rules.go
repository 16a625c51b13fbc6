// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package protecc

import "fmt"

// Action is the verdict a matched rule yields. Protocol constants.
type Action uint8

const (
	ActionAllow Action = 0
	ActionDeny  Action = 1
	ActionAudit Action = 2

	actionCount = 3
)

// String returns the lowercase action name.
func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionDeny:
		return "deny"
	case ActionAudit:
		return "audit"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ParseAction parses an action from its string representation.
func ParseAction(name string) (Action, error) {
	switch name {
	case "allow":
		return ActionAllow, nil
	case "deny":
		return ActionDeny, nil
	case "audit":
		return ActionAudit, nil
	default:
		return 0, fmt.Errorf("%w: unknown action %q", ErrInvalidArgument, name)
	}
}

// Protocol is the transport protocol of a network rule. ProtoAny is
// the "don't care" value. Protocol constants.
type Protocol uint8

const (
	ProtoAny  Protocol = 0
	ProtoTCP  Protocol = 1
	ProtoUDP  Protocol = 2
	ProtoUnix Protocol = 3

	protocolCount = 4
)

// String returns the lowercase protocol name.
func (p Protocol) String() string {
	switch p {
	case ProtoAny:
		return "any"
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	case ProtoUnix:
		return "unix"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// ParseProtocol parses a protocol from its string representation.
func ParseProtocol(name string) (Protocol, error) {
	switch name {
	case "", "any":
		return ProtoAny, nil
	case "tcp":
		return ProtoTCP, nil
	case "udp":
		return ProtoUDP, nil
	case "unix":
		return ProtoUnix, nil
	default:
		return 0, fmt.Errorf("%w: unknown protocol %q", ErrInvalidArgument, name)
	}
}

// Family is the address family of a network rule. FamilyAny is the
// "don't care" value. Protocol constants.
type Family uint8

const (
	FamilyAny  Family = 0
	FamilyIPv4 Family = 1
	FamilyIPv6 Family = 2

	familyCount = 3
)

// String returns the lowercase family name.
func (f Family) String() string {
	switch f {
	case FamilyAny:
		return "any"
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(f))
	}
}

// ParseFamily parses a family from its string representation.
func ParseFamily(name string) (Family, error) {
	switch name {
	case "", "any":
		return FamilyAny, nil
	case "ipv4", "inet":
		return FamilyIPv4, nil
	case "ipv6", "inet6":
		return FamilyIPv6, nil
	default:
		return 0, fmt.Errorf("%w: unknown family %q", ErrInvalidArgument, name)
	}
}

// NetRule is one ordered network rule. Zero values of Protocol,
// Family, and the port range mean "don't care", as do empty pattern
// strings. IPPattern and UnixPath use the same glob grammar as path
// patterns.
type NetRule struct {
	Action   Action
	Protocol Protocol
	Family   Family

	// PortLow/PortHigh bound the destination port inclusively. Both
	// zero means any port.
	PortLow  uint16
	PortHigh uint16

	// IPPattern is a glob over the textual address, e.g. "10.0.*" or
	// "fe80:*". Empty means any address.
	IPPattern string

	// UnixPath is a glob over the UNIX socket path. Only meaningful
	// with ProtoUnix; empty means any path.
	UnixPath string
}

// MountRule is one ordered mount rule. Empty pattern strings and a
// zero FlagsMask mean "don't care".
type MountRule struct {
	Action Action

	// Source, Target, and FSType are globs over the mount source
	// device/path, the target directory, and the filesystem type.
	Source string
	Target string
	FSType string

	// Options is a glob over the raw mount option string.
	Options string

	// FlagsMask selects mount flag bits that must all be set in the
	// request for the rule to match. Zero matches any flags.
	FlagsMask uint32
}

// netRecord and mountRecord are the builder-side encoded forms: the
// fixed fields plus resolved string-table offsets.
type netRecord struct {
	rule           NetRule
	ipOff, unixOff uint32
}

type mountRecord struct {
	rule                                 MountRule
	sourceOff, targetOff, fsOff, optsOff uint32
}

// RuleListBuilder accumulates order-significant net or mount rules.
// Insertion order is preserved verbatim through compilation — it is
// the evaluation order, and an earlier fully-wildcarded rule will
// shadow any later, more specific rule. That is intentional
// first-match-wins behavior, not a defect.
//
// RuleListBuilder is single-writer: it is not safe for concurrent use.
type RuleListBuilder struct {
	domain   Domain
	caseFold bool

	net   []netRecord
	mount []mountRecord

	// strings interns sub-pattern text for the trailing string table.
	// Offsets are assigned at first use, so identical call sequences
	// produce identical tables.
	strings map[string]uint32
	strSize uint32
}

// NewRuleListBuilder creates an empty builder for DomainNet or
// DomainMount. DomainPath is rejected; path patterns go through
// TrieBuilder.
func NewRuleListBuilder(domain Domain, caseInsensitive bool) (*RuleListBuilder, error) {
	if domain != DomainNet && domain != DomainMount {
		return nil, fmt.Errorf("%w: rule lists hold net or mount rules, not %s",
			ErrInvalidArgument, domain)
	}
	return &RuleListBuilder{
		domain:   domain,
		caseFold: caseInsensitive,
		strings:  make(map[string]uint32),
	}, nil
}

// AddNetRule appends rule to the list. Every glob sub-field is
// syntax-checked eagerly, and cross-field constraints are enforced
// here rather than at match time: a UNIX-protocol rule must not carry
// an IP pattern, a port range, or an address family, and a non-zero
// port range must have PortLow <= PortHigh. On any rejection the list
// is left unmodified.
func (b *RuleListBuilder) AddNetRule(rule NetRule) error {
	if b.domain != DomainNet {
		return fmt.Errorf("%w: net rule added to %s builder", ErrInvalidArgument, b.domain)
	}
	if rule.Action >= actionCount {
		return fmt.Errorf("%w: action %d out of range", ErrInvalidArgument, rule.Action)
	}
	if rule.Protocol >= protocolCount {
		return fmt.Errorf("%w: protocol %d out of range", ErrInvalidArgument, rule.Protocol)
	}
	if rule.Family >= familyCount {
		return fmt.Errorf("%w: family %d out of range", ErrInvalidArgument, rule.Family)
	}
	if rule.Protocol == ProtoUnix {
		if rule.IPPattern != "" {
			return fmt.Errorf("%w: unix rule carries an IP pattern", ErrInvalidArgument)
		}
		if rule.PortLow != 0 || rule.PortHigh != 0 {
			return fmt.Errorf("%w: unix rule carries a port range", ErrInvalidArgument)
		}
		if rule.Family != FamilyAny {
			return fmt.Errorf("%w: unix rule carries an address family", ErrInvalidArgument)
		}
	}
	if rule.UnixPath != "" && rule.Protocol != ProtoUnix {
		return fmt.Errorf("%w: unix path pattern on %s rule", ErrInvalidArgument, rule.Protocol)
	}
	if (rule.PortLow != 0 || rule.PortHigh != 0) && rule.PortLow > rule.PortHigh {
		return fmt.Errorf("%w: port range %d-%d is reversed",
			ErrInvalidArgument, rule.PortLow, rule.PortHigh)
	}
	if rule.IPPattern != "" {
		if err := checkPatternSyntax(rule.IPPattern); err != nil {
			return fmt.Errorf("ip pattern: %w", err)
		}
	}
	if rule.UnixPath != "" {
		if err := checkPatternSyntax(rule.UnixPath); err != nil {
			return fmt.Errorf("unix path pattern: %w", err)
		}
	}

	// All checks passed; interning and appending cannot fail.
	b.net = append(b.net, netRecord{
		rule:    rule,
		ipOff:   b.intern(rule.IPPattern),
		unixOff: b.intern(rule.UnixPath),
	})
	return nil
}

// AddMountRule appends rule to the list, syntax-checking every glob
// sub-field eagerly. On any rejection the list is left unmodified.
func (b *RuleListBuilder) AddMountRule(rule MountRule) error {
	if b.domain != DomainMount {
		return fmt.Errorf("%w: mount rule added to %s builder", ErrInvalidArgument, b.domain)
	}
	if rule.Action >= actionCount {
		return fmt.Errorf("%w: action %d out of range", ErrInvalidArgument, rule.Action)
	}
	for _, field := range []struct {
		name    string
		pattern string
	}{
		{"source", rule.Source},
		{"target", rule.Target},
		{"fstype", rule.FSType},
		{"options", rule.Options},
	} {
		if field.pattern == "" {
			continue
		}
		if err := checkPatternSyntax(field.pattern); err != nil {
			return fmt.Errorf("%s pattern: %w", field.name, err)
		}
	}

	b.mount = append(b.mount, mountRecord{
		rule:      rule,
		sourceOff: b.intern(rule.Source),
		targetOff: b.intern(rule.Target),
		fsOff:     b.intern(rule.FSType),
		optsOff:   b.intern(rule.Options),
	})
	return nil
}

// Reset atomically clears all appended rules.
func (b *RuleListBuilder) Reset() {
	b.net = nil
	b.mount = nil
	b.strings = make(map[string]uint32)
	b.strSize = 0
}

// Len returns the number of appended rules.
func (b *RuleListBuilder) Len() int {
	if b.domain == DomainNet {
		return len(b.net)
	}
	return len(b.mount)
}

// intern returns the string-table offset for pattern, assigning the
// next free offset on first use. The empty pattern is the "don't
// care" sentinel.
func (b *RuleListBuilder) intern(pattern string) uint32 {
	if pattern == "" {
		return offsetNone
	}
	if off, ok := b.strings[pattern]; ok {
		return off
	}
	off := b.strSize
	b.strings[pattern] = off
	b.strSize += uint32(len(pattern)) + 1 // NUL terminator
	return off
}

// Compile flattens the rule list into an immutable Profile: fixed
// records in insertion order followed by the string table. Compiling
// identical builder state twice produces byte-identical profiles.
func (b *RuleListBuilder) Compile() (*Profile, error) {
	count := b.Len()
	if count > maxCount {
		return nil, fmt.Errorf("%w: rule list exceeds %d entries", ErrInvalidArgument, maxCount)
	}

	recSize := netRecordSize
	flags := uint32(flagNet)
	if b.domain == DomainMount {
		recSize = mountRecordSize
		flags = flagMount
	}
	if b.caseFold {
		flags |= flagCaseInsensitive
	}

	size := headerSize + ruleHeaderSize + count*recSize + int(b.strSize)
	raw := make([]byte, size)
	putHeader(raw, flags)
	putU32(raw, offRuleCount, uint32(count))
	putU32(raw, offStrTableLen, b.strSize)

	// Offsets were assigned at intern time, so writing strings by
	// their recorded offset is deterministic regardless of map
	// iteration order. NUL terminators are already zero.
	tableBase := headerSize + ruleHeaderSize + count*recSize
	for pattern, off := range b.strings {
		copy(raw[tableBase+int(off):], pattern)
	}

	switch b.domain {
	case DomainNet:
		for i, rec := range b.net {
			base := headerSize + ruleHeaderSize + i*netRecordSize
			raw[base+netRecAction] = byte(rec.rule.Action)
			raw[base+netRecProtocol] = byte(rec.rule.Protocol)
			raw[base+netRecFamily] = byte(rec.rule.Family)
			putU16(raw, base+netRecPortLow, rec.rule.PortLow)
			putU16(raw, base+netRecPortHigh, rec.rule.PortHigh)
			putU32(raw, base+netRecIPOff, rec.ipOff)
			putU32(raw, base+netRecUnixOff, rec.unixOff)
		}
	case DomainMount:
		for i, rec := range b.mount {
			base := headerSize + ruleHeaderSize + i*mountRecordSize
			raw[base+mountRecAction] = byte(rec.rule.Action)
			putU32(raw, base+mountRecFlags, rec.rule.FlagsMask)
			putU32(raw, base+mountRecSource, rec.sourceOff)
			putU32(raw, base+mountRecTarget, rec.targetOff)
			putU32(raw, base+mountRecFSType, rec.fsOff)
			putU32(raw, base+mountRecOptions, rec.optsOff)
		}
	}

	return newProfile(raw)
}
