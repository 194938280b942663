package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"finance-datalayer/internal/config"
	"finance-datalayer/internal/datalayer"
	"finance-datalayer/internal/logger"
	"finance-datalayer/internal/resource"
	"finance-datalayer/internal/store"
)

const commandTimeout = 30 * time.Second

// withDataLayer builds the data layer from the config file, runs fn and tears
// everything down again. Pending operations survive in the state store.
func withDataLayer(fn func(ctx context.Context, dl *datalayer.DataLayer) error) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	if err := logger.InitLogger(level, "console"); err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	st, err := store.Open(ctx, cfg.StateStorage)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer st.Close()

	dl, err := datalayer.FromConfig(ctx, cfg, st)
	if err != nil {
		return fmt.Errorf("failed to init data layer: %w", err)
	}
	defer dl.Destroy()

	return fn(ctx, dl)
}

func parseKind(s string) (resource.Kind, error) {
	kind := resource.Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, err := resource.Lookup(kind); err != nil {
		return "", fmt.Errorf("%w: %q (known: %s)", err, s, joinKinds(resource.Kinds()))
	}
	return kind, nil
}

func joinKinds(kinds []resource.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// parseData decodes the --data flag, a JSON object.
func parseData(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("--data is required")
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("--data must be a JSON object: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("--data must be a JSON object")
	}
	return data, nil
}

// parseParams turns key=value pairs into query parameters.
func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid param %q, expected key=value", p)
		}
		params[k] = v
	}
	return params, nil
}

func printJSON(w io.Writer, v any) error {
	if raw, ok := v.(json.RawMessage); ok {
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
		v = out
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
