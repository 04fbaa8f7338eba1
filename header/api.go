package header

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultAPIURL is the MMTO telemetry values API.
const DefaultAPIURL = "https://api.mmto.arizona.edu/APIv1"

// APISource resolves keys through the observatory HTTP values API, which
// answers a form POST of comma separated keys with a JSON object.
type APISource struct {
	baseURL string
	client  *http.Client
}

var _ Source = (*APISource)(nil)

// NewAPISource creates a source for the API rooted at baseURL. A nil client
// selects http.DefaultClient.
func NewAPISource(baseURL string, client *http.Client) (*APISource, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("header: invalid api url %q: %w", baseURL, err)
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &APISource{baseURL: strings.TrimRight(baseURL, "/"), client: client}, nil
}

// Lookup implements Source.
func (s *APISource) Lookup(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}

	form := url.Values{"keys": {strings.Join(keys, ",")}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/vals", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("header: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s answered %s", ErrSourceUnavailable, req.URL, resp.Status)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("header: decode api response: %w", err)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if str, ok := stringify(v); ok {
			out[k] = str
		}
	}

	return out, nil
}

func stringify(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

