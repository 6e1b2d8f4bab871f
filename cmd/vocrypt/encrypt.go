package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

func runEncrypt(args []string, deps Deps) int {
	pa, err := parseFlags(args)
	if err == errShowHelp {
		printEncryptHelp(deps)
		return 0
	}
	if err != nil {
		writeError(deps.Stderr, pa.json, err.Error())
		return 2
	}
	resolveGlobals(&pa, deps)

	text, err := readText(pa, deps)
	if err != nil {
		writeError(deps.Stderr, pa.json, err.Error())
		return 2
	}

	client := &APIClient{BaseURL: pa.server, HTTPClient: deps.HTTPClient}
	resp, err := client.Encrypt(text)
	if err != nil {
		writeError(deps.Stderr, pa.json, err.Error())
		return 1
	}

	if pa.json {
		_ = json.NewEncoder(deps.Stdout).Encode(resp)
		return 0
	}

	c := colorFunc(deps.IsStdoutTTY())
	fmt.Fprintf(deps.Stdout, "%s %s\n", c("1", "encrypted:"), resp.EncryptedText)
	fmt.Fprintf(deps.Stdout, "%s       %s\n", c("1", "key:"), resp.Key)
	if resp.Message != "" {
		fmt.Fprintf(deps.Stderr, "%s\n", c("2", resp.Message))
	}
	return 0
}

// readText takes the plain text from --text, or stdin when the flag is absent.
func readText(pa parsedArgs, deps Deps) (string, error) {
	if pa.text != "" {
		return pa.text, nil
	}

	b, err := io.ReadAll(io.LimitReader(deps.Stdin, 64*1024))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimRight(string(b), "\n")
	if text == "" {
		return "", fmt.Errorf("no text: pass --text or pipe it on stdin")
	}
	return text, nil
}
