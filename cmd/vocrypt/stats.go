package main

import (
	"encoding/json"
	"fmt"
)

func runStats(args []string, deps Deps) int {
	pa, err := parseFlags(args)
	if err == errShowHelp {
		printHelp(deps)
		return 0
	}
	if err != nil {
		writeError(deps.Stderr, pa.json, err.Error())
		return 2
	}
	resolveGlobals(&pa, deps)

	client := &APIClient{BaseURL: pa.server, HTTPClient: deps.HTTPClient}
	resp, err := client.Stats()
	if err != nil {
		writeError(deps.Stderr, pa.json, err.Error())
		return 1
	}

	if pa.json {
		_ = json.NewEncoder(deps.Stdout).Encode(resp)
		return 0
	}

	c := colorFunc(deps.IsStdoutTTY())
	fmt.Fprintf(deps.Stdout, "%s   %d\n", c("1", "visits:"), resp.VisitCount)
	fmt.Fprintf(deps.Stdout, "%s    %d/%d (%d remaining)\n", c("1", "texts:"), resp.TextCount, resp.TextLimit, resp.Remaining)
	return 0
}
