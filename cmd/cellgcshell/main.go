// Command cellgcshell is a small interactive harness over the collector, for
// poking at allocation and collection behavior from a terminal instead of a
// test file.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/flier/cellgc"
	"github.com/flier/cellgc/arena"
)

// noRefs is the TypeInfo used by the shell: objects allocated here never
// reference anything else, since the shell has no notion of object layout.
type noRefs struct{}

func (noRefs) References(uintptr) []uintptr { return nil }

func main() {
	var quiet = flag.Bool("quiet", false, "suppress the startup banner")
	flag.Parse()

	c := cellgc.New(noRefs{})
	defer c.Close()

	if !*quiet {
		fmt.Fprintln(os.Stdout, "cellgcshell: alloc <bytes> | root <addr> | unroot <addr> | valid <addr> | collect | stats | quit")
	}

	live := make(map[uintptr]bool)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "alloc":
			runAlloc(c, fields, live)
		case "root":
			runRoot(c, fields, true)
		case "unroot":
			runRoot(c, fields, false)
		case "valid":
			runValid(c, fields)
		case "collect":
			c.Collect()
			fmt.Fprintln(os.Stdout, "ok")
		case "stats":
			runStats(c, live)
		case "quit", "exit":
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", fields[0])
		}
	}
}

func runAlloc(c *cellgc.Collector, fields []string, live map[uintptr]bool) {
	if len(fields) != 2 {
		fmt.Fprintln(os.Stderr, "usage: alloc <bytes>")

		return
	}

	size, err := strconv.Atoi(fields[1])
	if err != nil || size <= 0 {
		fmt.Fprintf(os.Stderr, "bad size %q: %v\n", fields[1], err)

		return
	}

	a := c.Allocate(size)
	if a.IsNone() {
		fmt.Fprintln(os.Stderr, "out of memory")

		return
	}

	addr := a.Unwrap()
	live[addr] = true

	fmt.Fprintf(os.Stdout, "%#x\n", addr)
}

func runRoot(c *cellgc.Collector, fields []string, add bool) {
	if len(fields) != 2 {
		fmt.Fprintln(os.Stderr, "usage: root|unroot <addr>")

		return
	}

	addr, err := parseAddr(fields[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad address %q: %v\n", fields[1], err)

		return
	}

	var changed bool
	if add {
		changed = c.AddRoot(addr)
	} else {
		changed = c.RemoveRoot(addr)
	}

	fmt.Fprintf(os.Stdout, "%t\n", changed)
}

func runValid(c *cellgc.Collector, fields []string) {
	if len(fields) != 2 {
		fmt.Fprintln(os.Stderr, "usage: valid <addr>")

		return
	}

	addr, err := parseAddr(fields[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad address %q: %v\n", fields[1], err)

		return
	}

	fmt.Fprintf(os.Stdout, "%t\n", c.IsAddressValid(addr))
}

func parseAddr(s string) (uintptr, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, err
	}

	return uintptr(v), nil
}

// runStats reports, for every address the shell has ever allocated, whether
// it is still valid, followed by how many distinct arenas those addresses
// fall in.
func runStats(c *cellgc.Collector, live map[uintptr]bool) {
	bases := make(map[uintptr]bool)

	for addr := range live {
		bases[arena.ArenaBaseOf(addr)] = true
		fmt.Fprintf(os.Stdout, "%#x valid=%t\n", addr, c.IsAddressValid(addr))
	}

	fmt.Fprintf(os.Stdout, "%d arena(s), %d tracked address(es)\n", len(bases), len(live))
}
