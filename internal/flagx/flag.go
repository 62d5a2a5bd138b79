// Package flagx holds small helpers for parsing a subset of command-line
// flags without clashing with flags owned by other packages (or by "go test").
package flagx

import (
	"flag"
	"os"
	"strings"
)

// ConfigEnv is consulted by ConfigPath when no -c/-config flag is given.
const ConfigEnv = "CLOAKVAULT_CONFIG"

// FilterArgs returns the subset of args that belongs to the named flags,
// together with their values.
//
// Names are given without dashes; both "-name" and "--name" spellings match.
// Supported forms:
//
//	-name value
//	-name=value
//	--name value
//	--name=value
//
// A value is taken from the next argument only when that argument does not
// itself start with "-". The result is never nil.
func FilterArgs(args []string, names []string) []string {
	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowed[strings.TrimLeft(n, "-")] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}

		name, _, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if _, ok := allowed[name]; !ok {
			continue
		}

		filtered = append(filtered, arg)
		if hasValue {
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// ConfigPath returns the JSON config file path given via -c / -config, or the
// value of CLOAKVAULT_CONFIG when neither flag is present. Empty means no
// config file.
func ConfigPath() string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "Path to config file")
	fs.StringVar(&path, "c", "", "Path to config file (short)")
	_ = fs.Parse(FilterArgs(os.Args[1:], []string{"c", "config"}))

	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	return path
}
