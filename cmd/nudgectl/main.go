// Command nudgectl is a thin HTTP client for nudged's JSON API: it
// submits a context for inference, applies feedback, manages rules, and
// checks daemon health from the command line. One boolean flag selects
// a subcommand, each routed to its own method on apiClient; --format
// switches between compact and pretty-printed JSON output.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var (
	serverURL = flag.String("server", "http://localhost:8090", "nudged API base URL")
	authKey   = flag.String("auth", "", "API key, if the server requires one")
	timeout   = flag.Duration("timeout", 10*time.Second, "request timeout")
	format    = flag.String("format", "json", "output format: json|pretty")
	version   = flag.Bool("version", false, "show version information")

	// infer
	doInfer      = flag.Bool("infer", false, "run inference against a context")
	activity     = flag.String("activity", "STILL", "activity label for --infer")
	speedKMH     = flag.Float64("speed", 0, "speed in km/h for --infer")
	wifiSSID     = flag.String("wifi-ssid", "", "wifi SSID for --infer")
	enableSearch = flag.Bool("enable-search", false, "use A* joint scheduling for --infer")

	// feedback
	doFeedback = flag.Bool("feedback", false, "submit feedback for a rule")
	ruleID     = flag.Int64("rule-id", 0, "rule id for --feedback / --deactivate-rule")
	outcome    = flag.String("outcome", "ACCEPT", "ACCEPT or REJECT for --feedback")
	leadTime   = flag.Int("lead-time", 0, "chosen lead time in minutes for --feedback")

	// rules
	listRules      = flag.Bool("list-rules", false, "list rules")
	deactivateRule = flag.Bool("deactivate-rule", false, "deactivate a rule by --rule-id")

	// health
	doHealth = flag.Bool("health", false, "check daemon health")
)

const (
	appName    = "nudgectl"
	appVersion = "0.1.0"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := &apiClient{baseURL: *serverURL, authKey: *authKey, http: &http.Client{Timeout: *timeout}}

	var (
		result any
		err    error
	)
	switch {
	case *doInfer:
		result, err = client.infer(ctx)
	case *doFeedback:
		result, err = client.feedback(ctx)
	case *listRules:
		result, err = client.listRules(ctx)
	case *deactivateRule:
		result, err = client.deactivateRule(ctx)
	case *doHealth:
		result, err = client.health(ctx)
	default:
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printResult(result)
}

func printResult(result any) {
	if *format == "pretty" {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}
	data, _ := json.Marshal(result)
	fmt.Println(string(data))
}

type apiClient struct {
	baseURL string
	authKey string
	http    *http.Client
}

// do sends a request and decodes the JSON body into an untyped value,
// which may be an object or an array depending on the endpoint.
func (c *apiClient) do(ctx context.Context, method, path string, body any) (any, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.authKey != "" {
		req.Header.Set("X-API-Key", c.authKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return map[string]any{"status": resp.Status}, nil
	}
	var out any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response (status %s): %w", resp.Status, err)
	}
	if resp.StatusCode >= 300 {
		return out, fmt.Errorf("server returned %s", resp.Status)
	}
	return out, nil
}

func (c *apiClient) infer(ctx context.Context) (any, error) {
	var wifi *string
	if *wifiSSID != "" {
		wifi = wifiSSID
	}
	body := map[string]any{
		"context": map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
			"activity":  *activity,
			"speed_kmh": *speedKMH,
			"wifi_ssid": wifi,
		},
		"enable_search": *enableSearch,
	}
	return c.do(ctx, http.MethodPost, "/v1/infer", body)
}

func (c *apiClient) feedback(ctx context.Context) (any, error) {
	body := map[string]any{
		"rule_id": *ruleID,
		"outcome": *outcome,
		"context": map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
			"activity":  *activity,
			"speed_kmh": *speedKMH,
		},
		"chosen_lead_time": *leadTime,
	}
	return c.do(ctx, http.MethodPost, "/v1/feedback", body)
}

func (c *apiClient) listRules(ctx context.Context) (any, error) {
	return c.do(ctx, http.MethodGet, "/v1/rules", nil)
}

func (c *apiClient) deactivateRule(ctx context.Context) (any, error) {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/rules/%d", *ruleID), nil)
}

func (c *apiClient) health(ctx context.Context) (any, error) {
	return c.do(ctx, http.MethodGet, "/healthz", nil)
}
