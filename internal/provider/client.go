package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Machine is one compute-provider VM as reported by the REST API.
type Machine struct {
	ID     string        `json:"id"`
	Name   string        `json:"name,omitempty"`
	State  string        `json:"state,omitempty"`
	Region string        `json:"region,omitempty"`
	Config MachineConfig `json:"config"`
}

type MachineConfig struct {
	Env   map[string]string `json:"env,omitempty"`
	Image string            `json:"image,omitempty"`
}

// API is the narrow provider surface the lifecycle manager depends on.
type API interface {
	CreateMachine(ctx context.Context, override map[string]any) (string, error)
	StartMachine(ctx context.Context, id string) error
	StopMachine(ctx context.Context, id string) error
	ListMachines(ctx context.Context) ([]Machine, error)
	GetMachine(ctx context.Context, id string) (Machine, error)
}

type Config struct {
	APIURL  string
	APIKey  string
	AppName string
	Image   string
}

// Client is a stateless HTTP client over the compute provider's machines API.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// defaultMachineConfig is the baseline create payload. Per-call overrides are
// deep-merged on top and must at minimum set env.USERNAME and env.REPO_NAME.
func (c *Client) defaultMachineConfig() map[string]any {
	return map[string]any{
		"region": "iad",
		"config": map[string]any{
			"image":        c.cfg.Image,
			"auto_destroy": true,
			"guest": map[string]any{
				"cpu_kind":  "shared",
				"cpus":      1,
				"memory_mb": 512,
			},
			"restart": map[string]any{
				"policy": "no",
			},
			"services": []any{
				map[string]any{
					"protocol":      "tcp",
					"internal_port": 8080,
					"ports": []any{
						map[string]any{
							"port":     80,
							"handlers": []any{"http"},
						},
					},
				},
			},
		},
	}
}

func (c *Client) machinesPath(rest string) string {
	return fmt.Sprintf("%s/apps/%s/machines%s", strings.TrimRight(c.cfg.APIURL, "/"), c.cfg.AppName, rest)
}

func (c *Client) CreateMachine(ctx context.Context, override map[string]any) (string, error) {
	payload := deepMerge(c.defaultMachineConfig(), override)
	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.machinesPath(""), payload, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", &Error{Kind: KindServerError, Detail: "create response missing machine id"}
	}
	c.log.Info("machine created", zap.String("machine_id", created.ID))
	return created.ID, nil
}

func (c *Client) StartMachine(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, c.machinesPath("/"+id+"/start"), nil, nil)
}

func (c *Client) StopMachine(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, c.machinesPath("/"+id+"/stop"), nil, nil)
}

func (c *Client) ListMachines(ctx context.Context) ([]Machine, error) {
	var machines []Machine
	if err := c.do(ctx, http.MethodGet, c.machinesPath(""), nil, &machines); err != nil {
		return nil, err
	}
	return machines, nil
}

func (c *Client) GetMachine(ctx context.Context, id string) (Machine, error) {
	var m Machine
	err := c.doClassify(ctx, http.MethodGet, c.machinesPath("/"+id), nil, &m, true)
	return m, err
}

func (c *Client) do(ctx context.Context, method, url string, body any, out any) error {
	return c.doClassify(ctx, method, url, body, out, false)
}

// doClassify performs one request and maps the outcome onto the error
// taxonomy: 2xx ok, 404 NotFound (only where the caller asked for a specific
// machine), other 4xx ClientError, 5xx ServerError, transport failures
// TransientNetwork or Timeout.
func (c *Client) doClassify(ctx context.Context, method, url string, body any, out any, notFoundIs404 bool) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Kind: KindServerError, StatusCode: resp.StatusCode, Detail: "undecodable response body", Cause: err}
		}
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch {
	case resp.StatusCode == http.StatusNotFound && notFoundIs404:
		return &Error{Kind: KindNotFound, StatusCode: resp.StatusCode, Detail: string(detail)}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &Error{Kind: KindClientError, StatusCode: resp.StatusCode, Detail: string(detail)}
	default:
		return &Error{Kind: KindServerError, StatusCode: resp.StatusCode, Detail: string(detail)}
	}
}
