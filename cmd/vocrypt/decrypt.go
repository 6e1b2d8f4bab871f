package main

import (
	"encoding/json"
	"fmt"
)

func runDecrypt(args []string, deps Deps) int {
	pa, err := parseFlags(args)
	if err == errShowHelp {
		printDecryptHelp(deps)
		return 0
	}
	if err != nil {
		writeError(deps.Stderr, pa.json, err.Error())
		return 2
	}
	resolveGlobals(&pa, deps)

	if len(pa.args) != 1 {
		writeError(deps.Stderr, pa.json, "specify exactly one key")
		return 2
	}

	client := &APIClient{BaseURL: pa.server, HTTPClient: deps.HTTPClient}
	resp, err := client.Decrypt(pa.args[0])
	if err != nil {
		writeError(deps.Stderr, pa.json, err.Error())
		return 1
	}

	if pa.json {
		_ = json.NewEncoder(deps.Stdout).Encode(resp)
		return 0
	}

	fmt.Fprintf(deps.Stdout, "%s\n", resp.Text)
	return 0
}
