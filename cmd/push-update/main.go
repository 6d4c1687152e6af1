// Command push-update posts one JSON update payload to an engagement server
// using a project API token.
//
//	push-update --url https://dash.example.com --token-file token.txt --data-file update.json [--always-create]
//
// Failures are reported on stderr; the exit status stays zero so callers in
// pipelines are not interrupted.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"engagement/internal/client"
)

var exitFunc = os.Exit

const requestTimeout = 60 * time.Second

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	url          string
	tokenFile    string
	dataFile     string
	alwaysCreate bool
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("push-update", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.url, "url", "", "base URL of the engagement server")
	fs.StringVar(&opts.tokenFile, "token-file", "", "file containing the project API token")
	fs.StringVar(&opts.dataFile, "data-file", "", "JSON file containing the update payload")
	fs.BoolVar(&opts.alwaysCreate, "always-create", false, "always add a new update instead of editing a matching one")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	res, err := run(ctx, opts)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, client.FormatError(err))
		return 0
	}
	out, _ := json.Marshal(map[string]string{"operation": res.Operation})
	_, _ = fmt.Fprintln(stdout, string(out))
	return 0
}

func run(ctx context.Context, opts options) (client.PushResult, error) {
	var missing []string
	if opts.url == "" {
		missing = append(missing, "--url")
	}
	if opts.tokenFile == "" {
		missing = append(missing, "--token-file")
	}
	if opts.dataFile == "" {
		missing = append(missing, "--data-file")
	}
	if len(missing) > 0 {
		return client.PushResult{}, fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}

	// #nosec G304: paths are supplied by the operator.
	rawToken, err := os.ReadFile(opts.tokenFile)
	if err != nil {
		return client.PushResult{}, fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(rawToken))
	if token == "" {
		return client.PushResult{}, errors.New("token file is empty")
	}

	// #nosec G304: paths are supplied by the operator.
	rawData, err := os.ReadFile(opts.dataFile)
	if err != nil {
		return client.PushResult{}, fmt.Errorf("read data: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(rawData, &payload); err != nil {
		return client.PushResult{}, fmt.Errorf("parse data file %s: %w", opts.dataFile, err)
	}

	return client.NewClient(opts.url).PostUpdate(ctx, token, payload, opts.alwaysCreate)
}
