// Package unifi speaks to a UniFi-style network controller: session login,
// traffic rule create/delete/list, and network/client enumeration for the UI.
package unifi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/appfence/appfence/internal/rules"
)

const csrfHeader = "x-csrf-token"

// Network is one controller network (LAN/VLAN) entry.
type Network struct {
	Name   string `json:"name"`
	VLANID *int   `json:"vlan_id,omitempty"`
}

// Client is one device known to the controller.
type Client struct {
	MAC      string `json:"mac"`
	Hostname string `json:"hostname,omitempty"`
}

// Controller calls the remote controller's HTTP API. It implements
// rules.RemoteClient; every failure maps onto the rules error taxonomy.
type Controller struct {
	http    *http.Client
	session *Session
}

// NewController builds a controller client. Self-signed controller
// certificates are common, so insecure skips TLS verification when set. Every
// call is bounded by timeout.
func NewController(session *Session, insecure bool, timeout time.Duration) *Controller {
	transport := &http.Transport{}
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Controller{
		http:    &http.Client{Transport: transport, Timeout: timeout},
		session: session,
	}
}

// Login authenticates against the controller and stores the returned CSRF
// token as the session credential.
func (c *Controller) Login(ctx context.Context, username, password string) error {
	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.session.BaseURL()+"/api/auth/login", bytes.NewReader(payload))
	if err != nil {
		return &rules.RemoteError{Kind: rules.RemoteTransport, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	token := resp.Header.Get(csrfHeader)
	if token == "" {
		return &rules.RemoteError{
			Kind:    rules.RemoteServerError,
			Status:  resp.StatusCode,
			Message: "login response carried no csrf token",
		}
	}
	c.session.SetCredential(token)
	return nil
}

// trafficRulePayload mirrors the controller's v2 traffic rule schema.
type trafficRulePayload struct {
	Action      string          `json:"action"`
	Description string          `json:"description"`
	Enabled     bool            `json:"enabled"`
	Logging     bool            `json:"logging"`
	Match       trafficMatch    `json:"match"`
	Source      *trafficSource  `json:"source,omitempty"`
	Target      string          `json:"target"`
}

type trafficMatch struct {
	App trafficAppMatch `json:"app"`
}

type trafficAppMatch struct {
	IDs []string `json:"ids"`
}

type trafficSource struct {
	MACs []string `json:"macs"`
}

// CreatePolicy creates a block rule on the controller and returns its id.
// The "all" device sentinel blocks every client by omitting the source match.
func (c *Controller) CreatePolicy(ctx context.Context, name string, appIDs, devices []string, enabled bool) (string, error) {
	payload := trafficRulePayload{
		Action:      "block",
		Description: name,
		Enabled:     enabled,
		Match:       trafficMatch{App: trafficAppMatch{IDs: appIDs}},
		Target:      "INTERNET",
	}
	if len(devices) > 0 && !(len(devices) == 1 && devices[0] == rules.DeviceAll) {
		payload.Source = &trafficSource{MACs: devices}
	}

	var created struct {
		ID string `json:"_id"`
	}
	if err := c.do(ctx, http.MethodPost, c.trafficRulesPath(), payload, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// DeletePolicy removes a traffic rule by its controller id.
func (c *Controller) DeletePolicy(ctx context.Context, remoteID string) error {
	return c.do(ctx, http.MethodDelete, c.trafficRulesPath()+"/"+remoteID, nil, nil)
}

// ListPolicies enumerates all traffic rules on the controller. Entries missing
// an id are skipped rather than failing the enumeration.
func (c *Controller) ListPolicies(ctx context.Context) ([]rules.RemotePolicy, error) {
	var raw []struct {
		ID          string `json:"_id"`
		Description string `json:"description"`
	}
	if err := c.do(ctx, http.MethodGet, c.trafficRulesPath(), nil, &raw); err != nil {
		return nil, err
	}

	policies := make([]rules.RemotePolicy, 0, len(raw))
	for _, entry := range raw {
		if entry.ID == "" {
			continue
		}
		policies = append(policies, rules.RemotePolicy{ID: entry.ID, Name: entry.Description})
	}
	return policies, nil
}

// ListNetworks enumerates the controller's configured networks.
func (c *Controller) ListNetworks(ctx context.Context) ([]Network, error) {
	path := fmt.Sprintf("/proxy/network/api/s/%s/rest/networkconf", c.session.Site())

	var envelope struct {
		Data []struct {
			Name string `json:"name"`
			VLAN *int   `json:"vlan"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}

	networks := make([]Network, 0, len(envelope.Data))
	for _, entry := range envelope.Data {
		networks = append(networks, Network{Name: entry.Name, VLANID: entry.VLAN})
	}
	return networks, nil
}

// ListClients enumerates devices currently known to the controller.
func (c *Controller) ListClients(ctx context.Context) ([]Client, error) {
	path := fmt.Sprintf("/proxy/network/api/s/%s/stat/sta", c.session.Site())

	var envelope struct {
		Data []struct {
			MAC      string `json:"mac"`
			Hostname string `json:"hostname"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}

	clients := make([]Client, 0, len(envelope.Data))
	for _, entry := range envelope.Data {
		if entry.MAC == "" {
			continue
		}
		clients = append(clients, Client{MAC: entry.MAC, Hostname: entry.Hostname})
	}
	return clients, nil
}

func (c *Controller) trafficRulesPath() string {
	return fmt.Sprintf("/proxy/network/v2/api/site/%s/trafficrules", c.session.Site())
}

// do issues one authenticated call and decodes the response into out.
func (c *Controller) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, ok := c.session.Credential()
	if !ok {
		return rules.ErrNotAuthenticated
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &rules.RemoteError{Kind: rules.RemoteTransport, Message: err.Error()}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.session.BaseURL()+path, reader)
	if err != nil {
		return &rules.RemoteError{Kind: rules.RemoteTransport, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(csrfHeader, token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &rules.RemoteError{
			Kind:    rules.RemoteServerError,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("decode response: %v", err),
		}
	}
	return nil
}

func transportError(err error) error {
	kind := rules.RemoteTransport
	if errors.Is(err, context.DeadlineExceeded) {
		kind = rules.RemoteTimeout
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = rules.RemoteTimeout
	}
	return &rules.RemoteError{Kind: kind, Message: err.Error()}
}

func statusError(resp *http.Response) error {
	kind := rules.RemoteServerError
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		kind = rules.RemoteClientError
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &rules.RemoteError{
		Kind:    kind,
		Status:  resp.StatusCode,
		Message: string(msg),
	}
}
