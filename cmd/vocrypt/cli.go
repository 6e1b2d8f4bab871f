package main

import (
	"fmt"
	"io"
	"strings"
)

const defaultServerURL = "http://localhost:8080"

// version is set at build time via -ldflags.
var version = "dev"

// Deps holds injectable dependencies for testing.
type Deps struct {
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
	HTTPClient  HTTPDoer
	IsStdoutTTY func() bool // stdout is a terminal (controls color)
	Getenv      func(string) string
}

// parsedArgs holds parsed global and command-specific flags.
type parsedArgs struct {
	args []string // positional args after flags

	// Global
	server         string
	serverFromFlag bool // true if --server was explicitly set
	json           bool

	// Encrypt
	text string
}

// run is the main entry point. Returns exit code.
func run(args []string, deps Deps) int {
	if len(args) < 2 {
		printUsage(deps)
		return 2
	}

	// Check for top-level flags
	switch args[1] {
	case "--version", "-v":
		fmt.Fprintf(deps.Stdout, "vocrypt %s\n", version)
		return 0
	case "--help", "-h":
		printHelp(deps)
		return 0
	}

	command := args[1]
	remaining := args[2:]

	switch command {
	case "version":
		fmt.Fprintf(deps.Stdout, "vocrypt %s\n", version)
		return 0
	case "help":
		return runHelp(remaining, deps)
	case "encrypt":
		return runEncrypt(remaining, deps)
	case "decrypt":
		return runDecrypt(remaining, deps)
	case "stats":
		return runStats(remaining, deps)
	case "identity":
		return runIdentity(remaining, deps)
	default:
		fmt.Fprintf(deps.Stderr, "error: unknown command %q\n", command)
		printUsage(deps)
		return 2
	}
}

func runHelp(args []string, deps Deps) int {
	if len(args) == 0 {
		printHelp(deps)
		return 0
	}
	switch args[0] {
	case "encrypt":
		printEncryptHelp(deps)
	case "decrypt":
		printDecryptHelp(deps)
	case "stats", "identity":
		printHelp(deps)
	default:
		fmt.Fprintf(deps.Stderr, "error: unknown command %q\n", args[0])
		return 2
	}
	return 0
}

// parseFlags parses command-specific flags from args.
func parseFlags(args []string) (parsedArgs, error) {
	var pa parsedArgs
	var positional []string

	i := 0
	for i < len(args) {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
			i++
			continue
		}

		switch arg {
		case "--help", "-h":
			pa.args = nil
			return pa, errShowHelp
		case "--json":
			pa.json = true
		case "--server":
			if i+1 >= len(args) {
				return pa, fmt.Errorf("--server requires a value")
			}
			i++
			pa.server = args[i]
			pa.serverFromFlag = true
		case "--text":
			if i+1 >= len(args) {
				return pa, fmt.Errorf("--text requires a value")
			}
			i++
			pa.text = args[i]
		default:
			return pa, fmt.Errorf("unknown flag: %s", arg)
		}
		i++
	}

	pa.args = positional
	return pa, nil
}

var errShowHelp = fmt.Errorf("show help")

// resolveGlobals fills in defaults from env vars.
func resolveGlobals(pa *parsedArgs, deps Deps) {
	if pa.server == "" {
		if env := deps.Getenv("VOCRYPT_SERVER"); env != "" {
			pa.server = env
		} else {
			pa.server = defaultServerURL
		}
	}
	pa.server = strings.TrimRight(pa.server, "/")
}

func writeError(w io.Writer, jsonMode bool, msg string) {
	if jsonMode {
		fmt.Fprintf(w, `{"error":%q}`+"\n", msg)
	} else {
		fmt.Fprintf(w, "error: %s\n", msg)
	}
}

// --- Help text ---

func printUsage(deps Deps) {
	c := colorFunc(deps.IsStdoutTTY())
	fmt.Fprintf(deps.Stderr, "%s — vowel-substitution text locker\n\nRun '%s' for usage.\n",
		c("36", "vocrypt"), c("36", "vocrypt help"))
}

func printHelp(deps Deps) {
	c := colorFunc(deps.IsStdoutTTY())
	fmt.Fprintf(deps.Stderr, `%s — vowel-substitution text locker

%s
  %s %s %s

%s
  %s   Encrypt a text and store it on the server
  %s   Retrieve and decrypt a stored text by key
  %s     Show usage counters for your address
  %s  Show your public IP address
  %s   Show version
  %s      Show this help

%s
  %s %s    Server URL (default: %s)
  %s            Output as JSON
  %s        Show help
  %s     Show version

%s
  %s %s %s "casa roja"
  %s %s 4fd5…
`,
		c("36", "vocrypt"),
		c("1", "USAGE"),
		c("36", "vocrypt"), c("36", "<command>"), c("2", "[options]"),
		c("1", "COMMANDS"),
		c("36", "encrypt"),
		c("36", "decrypt"),
		c("36", "stats"),
		c("36", "identity"),
		c("36", "version"),
		c("36", "help"),
		c("1", "GLOBAL OPTIONS"),
		c("33", "--server"), c("2", "<url>"), defaultServerURL,
		c("33", "--json"),
		c("33", "-h, --help"),
		c("33", "-v, --version"),
		c("1", "EXAMPLES"),
		c("36", "vocrypt"), c("36", "encrypt"), c("33", "--text"),
		c("36", "vocrypt"), c("36", "decrypt"),
	)
}

func printEncryptHelp(deps Deps) {
	c := colorFunc(deps.IsStdoutTTY())
	fmt.Fprintf(deps.Stderr, `%s %s — Encrypt a text and store it on the server

%s
  %s %s %s

%s
  %s %s   Text to encrypt (visible in shell history)
  %s %s  Server URL
  %s          Output as JSON
  %s      Show help

%s
  Reads from stdin when %s is not given. The text must be lowercase
  unaccented words separated by single spaces.

%s
  echo "casa roja" | %s %s
  %s %s %s "casa roja"
`,
		c("36", "vocrypt"), c("36", "encrypt"),
		c("1", "USAGE"),
		c("36", "vocrypt"), c("36", "encrypt"), c("2", "[options]"),
		c("1", "OPTIONS"),
		c("33", "--text"), c("2", "<value>"),
		c("33", "--server"), c("2", "<url>"),
		c("33", "--json"),
		c("33", "-h, --help"),
		c("1", "INPUT"),
		c("33", "--text"),
		c("1", "EXAMPLES"),
		c("36", "vocrypt"), c("36", "encrypt"),
		c("36", "vocrypt"), c("36", "encrypt"), c("33", "--text"),
	)
}

func printDecryptHelp(deps Deps) {
	c := colorFunc(deps.IsStdoutTTY())
	fmt.Fprintf(deps.Stderr, `%s %s — Retrieve and decrypt a stored text by key

%s
  %s %s %s %s

%s
  %s %s  Server URL
  %s          Output as JSON
  %s      Show help

%s
  %s %s 4fd5a0b9…
`,
		c("36", "vocrypt"), c("36", "decrypt"),
		c("1", "USAGE"),
		c("36", "vocrypt"), c("36", "decrypt"), c("2", "<key>"), c("2", "[options]"),
		c("1", "OPTIONS"),
		c("33", "--server"), c("2", "<url>"),
		c("33", "--json"),
		c("33", "-h, --help"),
		c("1", "EXAMPLES"),
		c("36", "vocrypt"), c("36", "decrypt"),
	)
}
