package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/identity"
)

func runIdentity(args []string, deps Deps) int {
	pa, err := parseFlags(args)
	if err == errShowHelp {
		printHelp(deps)
		return 0
	}
	if err != nil {
		writeError(deps.Stderr, pa.json, err.Error())
		return 2
	}

	// This asks the external lookup service, not the vocrypt server, so the
	// answer is the address the server will see the caller as.
	resolver := identity.NewResolver(deps.Getenv("VOCRYPT_IP_LOOKUP_URL"), deps.HTTPClient)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ip, err := resolver.Resolve(ctx)
	if err != nil {
		writeError(deps.Stderr, pa.json, err.Error())
		return 1
	}

	if pa.json {
		_ = json.NewEncoder(deps.Stdout).Encode(map[string]string{"ip": ip})
		return 0
	}

	fmt.Fprintf(deps.Stdout, "%s\n", ip)
	return 0
}
