package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"nanocld/internal/models"
)

// DaemonClient is the Proxy Rule Translator's only way of learning about
// Resources and runtime Processes: it has no direct store access, so it
// calls back into the daemon's own HTTP/WS Surface, the same one any
// other client of nanocld uses.
type DaemonClient struct {
	baseURL string
	http    *http.Client
}

func NewDaemonClient(baseURL string) *DaemonClient {
	return &DaemonClient{baseURL: baseURL, http: &http.Client{}}
}

// Events subscribes to GET /{v}/events and decodes the line-delimited
// JSON stream onto ch until ctx is cancelled or the connection drops.
// No request timeout is set: this is a long-lived streaming read, not a
// single bounded call.
func (c *DaemonClient) Events(ctx context.Context, version string, ch chan<- models.Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+version+"/events", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("events stream: unexpected status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue // heartbeat
		}
		var e models.Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		select {
		case ch <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

// InspectResource fetches a Resource by name, including its current Spec.
func (c *DaemonClient) InspectResource(ctx context.Context, version, name string) (models.Resource, error) {
	var out models.Resource
	err := c.getJSON(ctx, "/"+version+"/resources/"+url.PathEscape(name)+"/inspect", &out)
	return out, err
}

// ListResources returns every Resource, including its current Spec.
func (c *DaemonClient) ListResources(ctx context.Context, version string) ([]models.Resource, error) {
	var out []models.Resource
	err := c.getJSON(ctx, "/"+version+"/resources", &out)
	return out, err
}

// ProcessesByOwner lists the runtime Processes owned by kindKey, used
// to resolve an Upstream target's server IPs.
func (c *DaemonClient) ProcessesByOwner(ctx context.Context, version, kindKey string) ([]models.Process, error) {
	var out []models.Process
	q := url.Values{"kind_key": {kindKey}}
	err := c.getJSON(ctx, "/"+version+"/processes?"+q.Encode(), &out)
	return out, err
}

func (c *DaemonClient) getJSON(ctx context.Context, path string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
