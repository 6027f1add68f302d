// Command bitcaskcli is a minimal, non-networked driver over a single
// core.Database: a REPL-style loop over stdin for manual exercising of
// get/put/delete/keys/merge/stats. There is no listener and no protocol;
// it is meant for local smoke-testing, not for embedding.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/kvlabs/bitcask/core"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: bitcaskcli -dir <path> [-limit <bytes>]\n")
	fmt.Fprintf(os.Stderr, "commands (one per line on stdin):\n")
	fmt.Fprintf(os.Stderr, "  get <key>\n")
	fmt.Fprintf(os.Stderr, "  put <key> <value>\n")
	fmt.Fprintf(os.Stderr, "  delete <key>\n")
	fmt.Fprintf(os.Stderr, "  keys\n")
	fmt.Fprintf(os.Stderr, "  merge\n")
	fmt.Fprintf(os.Stderr, "  stats\n")
}

func main() {
	dir := flag.String("dir", "", "base directory for the database")
	limit := flag.Int64("limit", 0, "rollover threshold in bytes (0 = engine default)")
	flag.Parse()

	if *dir == "" {
		usage()
		os.Exit(1)
	}

	var opts []core.Option
	if *limit > 0 {
		opts = append(opts, core.WithDataFileLimit(*limit))
	}

	d, err := core.Open(*dir, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer d.Close()

	run(d, os.Stdin, os.Stdout)
}

func run(d *core.Database, in *os.File, out *os.File) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if err := dispatch(d, out, fields); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
}

func dispatch(d *core.Database, out *os.File, fields []string) error {
	switch fields[0] {
	case "get":
		if len(fields) != 2 {
			return errors.New("usage: get <key>")
		}
		val, err := d.Read([]byte(fields[1]))
		if err != nil {
			return fmt.Errorf("get %q: %w", fields[1], err)
		}
		fmt.Fprintln(out, string(val))

	case "put":
		if len(fields) != 3 {
			return errors.New("usage: put <key> <value>")
		}
		if err := d.Write([]byte(fields[1]), []byte(fields[2])); err != nil {
			return fmt.Errorf("put %q: %w", fields[1], err)
		}

	case "delete":
		if len(fields) != 2 {
			return errors.New("usage: delete <key>")
		}
		if err := d.Remove([]byte(fields[1])); err != nil {
			return fmt.Errorf("delete %q: %w", fields[1], err)
		}

	case "keys":
		for _, k := range d.Keys() {
			fmt.Fprintln(out, string(k))
		}

	case "merge":
		if err := d.Merge(); err != nil {
			return fmt.Errorf("merge: %w", err)
		}

	case "stats":
		s := d.Stats()
		fmt.Fprintf(out, "immutable_segments=%d keys=%d\n", s.ImmutableSegmentCount, s.KeyCount)

	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}

	return nil
}
