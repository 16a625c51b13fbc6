// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/crucible-foundation/crucible/lib/protecc"
)

// runMatch evaluates one probe against a compiled blob. The probe
// kind follows the blob's domain: path profiles take a path argument
// with --perms, net profiles take the --proto/--ip/--port/--unix
// flags, mount profiles the --source/--target/--fstype flags.
//
// Exit status is zero on a match (for rule domains: on any verdict),
// and the verdict is printed on stdout.
func runMatch(args []string) error {
	flagSet := pflag.NewFlagSet("crucible-policy match", pflag.ContinueOnError)
	permsFlag := flagSet.String("perms", "read", "comma-separated permissions to request (path domain)")
	protoFlag := flagSet.String("proto", "", "protocol: tcp, udp, unix, any (net domain)")
	familyFlag := flagSet.String("family", "", "address family: ipv4, ipv6, any (net domain)")
	ipFlag := flagSet.String("ip", "", "destination address (net domain)")
	portFlag := flagSet.Uint16("port", 0, "destination port (net domain)")
	unixFlag := flagSet.String("unix", "", "unix socket path (net domain)")
	sourceFlag := flagSet.String("source", "", "mount source (mount domain)")
	targetFlag := flagSet.String("target", "", "mount target (mount domain)")
	fstypeFlag := flagSet.String("fstype", "", "filesystem type (mount domain)")
	optionsFlag := flagSet.String("options", "", "mount options string (mount domain)")
	flagsFlag := flagSet.Uint32("flags", 0, "mount flags value (mount domain)")
	bounded := flagSet.Bool("bounded", false, "use the resource-bounded matcher with default limits")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if flagSet.NArg() < 1 {
		return fmt.Errorf("blob file is required")
	}

	blob, err := os.ReadFile(flagSet.Arg(0))
	if err != nil {
		return err
	}
	profile, err := protecc.ImportProfile(blob)
	if err != nil {
		return fmt.Errorf("%s: %w", flagSet.Arg(0), err)
	}
	limits := protecc.DefaultLimits()

	switch profile.Domain() {
	case protecc.DomainPath:
		if flagSet.NArg() != 2 {
			return fmt.Errorf("path profiles take a blob file and one path argument")
		}
		perms, err := parsePermList(*permsFlag)
		if err != nil {
			return err
		}
		path := flagSet.Arg(1)
		var matched bool
		if *bounded {
			matched = profile.MatchPathBounded(path, perms, limits)
		} else {
			matched = profile.MatchPath(path, perms)
		}
		if !matched {
			return fmt.Errorf("path %q does not satisfy %s", path, perms)
		}
		fmt.Println("match")
		return nil

	case protecc.DomainNet:
		protocol, err := protecc.ParseProtocol(*protoFlag)
		if err != nil {
			return err
		}
		family, err := protecc.ParseFamily(*familyFlag)
		if err != nil {
			return err
		}
		request := protecc.NetRequest{
			Protocol: protocol,
			Family:   family,
			IP:       *ipFlag,
			Port:     *portFlag,
			UnixPath: *unixFlag,
		}
		var action protecc.Action
		var ok bool
		if *bounded {
			action, ok = profile.MatchNetBounded(request, limits)
		} else {
			action, ok = profile.MatchNet(request)
		}
		if !ok {
			fmt.Println("no rule matched")
			return nil
		}
		fmt.Println(action)
		return nil

	case protecc.DomainMount:
		action, err := matchMount(profile, protecc.MountRequest{
			Source:  *sourceFlag,
			Target:  *targetFlag,
			FSType:  *fstypeFlag,
			Options: *optionsFlag,
			Flags:   *flagsFlag,
		}, *bounded, limits)
		if err != nil {
			return err
		}
		fmt.Println(action)
		return nil

	default:
		return fmt.Errorf("unsupported profile domain %s", profile.Domain())
	}
}

func matchMount(profile *protecc.Profile, request protecc.MountRequest, bounded bool, limits protecc.Limits) (string, error) {
	var action protecc.Action
	var ok bool
	if bounded {
		action, ok = profile.MatchMountBounded(request, limits)
	} else {
		action, ok = profile.MatchMount(request)
	}
	if !ok {
		return "no rule matched", nil
	}
	return action.String(), nil
}

func parsePermList(list string) (protecc.Permission, error) {
	var perms protecc.Permission
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		p, err := protecc.ParsePermission(name)
		if err != nil {
			return 0, err
		}
		perms |= p
	}
	return perms, nil
}
