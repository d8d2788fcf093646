package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"ratelimitfilter/internal/attributes"
	"ratelimitfilter/internal/limit"
	"ratelimitfilter/internal/middleware/ratelimit"
	"ratelimitfilter/internal/pipeline"
)

var (
	decideMethod    string
	decidePath      string
	decideAuthority string
	decideHeaders   []string
)

func init() {
	decideCmd.Flags().StringVarP(&decideMethod, "method", "X", http.MethodGet, "request method")
	decideCmd.Flags().StringVar(&decidePath, "path", "/", "request path")
	decideCmd.Flags().StringVar(&decideAuthority, "authority", "", "request authority")
	decideCmd.Flags().StringArrayVarP(&decideHeaders, "header", "H", nil, "request header as name:value or name=value, repeatable")
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Run one admission decision",
	Long: `Decide one request against the configured limits and store, exactly as
the server would. Allowed requests are charged.`,
	Example: "  ratelimitfilter decide -c filter.yaml -H 'x-user-id: alice'",
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, err := requestPairs(decideMethod, decidePath, decideAuthority, decideHeaders)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		p, store, err := openPipeline(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		d, err := p.Decide(ctx, pairs)
		if err != nil {
			return fmt.Errorf("decision failed: %w", err)
		}

		out := cmd.OutOrStdout()
		switch d.Outcome {
		case pipeline.Denied:
			fmt.Fprintln(out, describeDenial(p.Registry(), p.Namespace(), d.Limit))
			fmt.Fprintf(out, "%d %s", http.StatusTooManyRequests, ratelimit.DeniedBody)
		default:
			fmt.Fprintf(out, "allowed (matched %s)\n", strings.Join(d.Matched, ", "))
		}
		return nil
	},
}

func describeDenial(reg *limit.Registry, namespace, name string) string {
	l, ok := reg.Lookup(namespace, name)
	if !ok {
		return "denied by " + name
	}
	return fmt.Sprintf("denied by %s (max %d per %s)", name, l.MaxValue, l.Window)
}

// requestPairs builds the request the decision is made for.
func requestPairs(method, path, authority string, rawHeaders []string) ([]attributes.Pair, error) {
	headers, err := parseHeaders(rawHeaders)
	if err != nil {
		return nil, err
	}
	return attributes.FromPairs(method, path, authority, "http", headers), nil
}

// parseHeaders keeps the flags in command-line order so a repeated header
// resolves to its last value.
func parseHeaders(raw []string) ([]attributes.Pair, error) {
	headers := make([]attributes.Pair, 0, len(raw))
	for _, h := range raw {
		i := strings.IndexAny(h, ":=")
		if i < 0 || strings.TrimSpace(h[:i]) == "" {
			return nil, fmt.Errorf("invalid header %q, want name:value or name=value", h)
		}
		headers = append(headers, attributes.Pair{
			Name:  strings.TrimSpace(h[:i]),
			Value: strings.TrimSpace(h[i+1:]),
		})
	}
	return headers, nil
}
