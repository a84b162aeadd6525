// Command ipv6ctl is the CLI surface for the IPv6 bring-up core (spec
// §6 "CLI surface"): `ipv6 <iface>...|any` runs SLAAC/DHCPv6
// autoconfiguration on one or more interfaces, `dhcp6` is reserved for a
// standalone DHCPv6-only entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdguardTeam/golibs/timeutil"
	"golang.org/x/sync/errgroup"

	"github.com/6bringup/stack6/internal/dhcp6client"
	"github.com/6bringup/stack6/internal/ip6stack"
	"github.com/6bringup/stack6/internal/netdev"
	"github.com/6bringup/stack6/internal/settings"
	"github.com/6bringup/stack6/internal/stack6log"
)

// autoconfTimeout bounds how long one interface's autoconfiguration
// attempt may run before it's treated as a failure, per spec §4.9's
// LINK_WAIT_MS plus the retransmission schedules §4.6/§4.8 allow for.
const autoconfTimeout = 60 * time.Second

// settingsPath is where the external settings store (internal/settings)
// persists the ip6/gateway6/prefix/dns6 keys spec §6 names.
const settingsPath = "/var/lib/ipv6ctl/settings.json"

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(64)
	}

	var err error
	switch os.Args[1] {
	case "-h", "--help":
		usage(os.Stdout)

		return
	case "ipv6":
		err = runIPv6(os.Args[2:])
	case "dhcp6":
		err = runDHCP6(os.Args[2:])
	default:
		usage(os.Stderr)
		os.Exit(64)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage(w *os.File) {
	fmt.Fprintln(w, "usage: ipv6ctl ipv6 <iface>... | any")
	fmt.Fprintln(w, "       ipv6ctl dhcp6 <iface>")
	fmt.Fprintln(w, "       ipv6ctl -h | --help")
}

// runIPv6 implements the `ipv6` subcommand: invoke Autoconf on each named
// interface (or every known interface for "any") concurrently, waiting
// for all of them and returning nil if at least one succeeded and an
// error if none did.
func runIPv6(args []string) (err error) {
	fs := flag.NewFlagSet("ipv6", flag.ExitOnError)
	verbose := fs.Bool("v", false, "enable debug logging")
	if err = fs.Parse(args); err != nil {
		return err
	}

	ifaceNames := fs.Args()
	if len(ifaceNames) == 0 {
		return fmt.Errorf("ipv6ctl: usage: ipv6ctl ipv6 <iface>...|any")
	}

	if len(ifaceNames) == 1 && ifaceNames[0] == "any" {
		ifaceNames, err = allInterfaceNames()
		if err != nil {
			return err
		}
	}

	log := stack6log.New(*verbose)

	store, err := settings.Open(settingsPath)
	if err != nil {
		return fmt.Errorf("ipv6ctl: %w", err)
	}

	stack := ip6stack.NewStack(netdev.NewManager(), timeutil.SystemClock{}, log)
	dhcp := dhcp6client.NewClient(stack.Routes(), store, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Each interface's autoconfiguration is independent (its own routing
	// entries, its own DHCPv6 session), so they fan out concurrently
	// rather than one-at-a-time blocking the rest behind a slow link.
	results := make([]error, len(ifaceNames))

	var g errgroup.Group
	for i, ifaceName := range ifaceNames {
		g.Go(func() (_ error) {
			attemptCtx, attemptCancel := context.WithTimeout(ctx, autoconfTimeout)
			defer attemptCancel()

			_, results[i] = stack.Autoconf(attemptCtx, ifaceName, ip6stack.AutoconfOptions{DHCP: dhcp})

			return nil
		})
	}
	_ = g.Wait()

	succeeded := false
	for i, autoconfErr := range results {
		if autoconfErr != nil {
			fmt.Fprintf(os.Stderr, "Could not configure %s: %s\n", ifaceNames[i], autoconfErr)

			continue
		}

		succeeded = true
	}

	if !succeeded {
		return fmt.Errorf("ipv6ctl: no interface configured successfully")
	}

	return nil
}

// runDHCP6 implements the `dhcp6` subcommand, reserved for a future
// standalone DHCPv6-only entry point (spec §6: "reserved and currently
// prints a not-implemented message; wired to invoke start_dhcp6 once
// enabled").
func runDHCP6(args []string) (err error) {
	fs := flag.NewFlagSet("dhcp6", flag.ExitOnError)
	if err = fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, "dhcp6: not implemented")

	return nil
}

// allInterfaceNames lists every interface name on the host, excluding
// loopback, for the `any` target.
func allInterfaceNames() (names []string, err error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("ipv6ctl: listing interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		names = append(names, iface.Name)
	}

	return names, nil
}
