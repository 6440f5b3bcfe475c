package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/harun/knife/pkg/client"
	"github.com/spf13/cobra"
)

const dialTimeout = 10 * time.Second

// printValue writes v to stdout as one JSON document
func printValue(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	if prettyFlag {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// withClient connects to the configured endpoint and runs fn under the
// client timeout. On timeout the active server request is interrupted.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) (interface{}, error)) error {
	endpoint := appConfig.ClientEndpoint()

	dialCtx, cancel := context.WithTimeout(cmd.Context(), dialTimeout)
	c, err := client.Dial(dialCtx, endpoint)
	cancel()
	if err != nil {
		return err
	}
	defer c.Close()

	var out interface{}
	co := client.NewCoordinator(endpoint, appConfig.ClientTimeout())
	err = co.Do(cmd.Context(), func(ctx context.Context) error {
		var err error
		out, err = fn(ctx, c)
		return err
	})
	if err != nil {
		return err
	}
	return printValue(cmd, out)
}

// withSession is withClient with the configured session opened first
func withSession(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client, sess string) (interface{}, error)) error {
	sess := appConfig.Client.Session
	return withClient(cmd, func(ctx context.Context, c *client.Client) (interface{}, error) {
		if _, err := c.OpenSession(ctx, sess); err != nil {
			return nil, err
		}
		return fn(ctx, c, sess)
	})
}

// parseKV parses KEY=VALUE arguments. Values are decoded as JSON when
// possible and kept as strings otherwise.
func parseKV(items []string) (map[string]any, error) {
	out := make(map[string]any, len(items))
	for _, item := range items {
		key, raw, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", item)
		}
		raw = strings.TrimSpace(raw)

		var v any
		if raw == "" || json.Unmarshal([]byte(raw), &v) != nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

// readSource returns arg, or stdin when arg is "-"
func readSource(cmd *cobra.Command, arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}
