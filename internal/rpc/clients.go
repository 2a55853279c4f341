package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/heliannuuthus-iam/authn-api/internal/domain"
)

const maxResponseBytes = 1 << 20

// Client performs outbound calls to the downstream IAM services. The
// authorization core holds no persistent storage of its own; users,
// credentials, and tenant configuration all live behind these calls.
type Client struct {
	httpClient *http.Client
	resolver   Resolver
}

// NewClient constructs a client over the resolver.
func NewClient(httpClient *http.Client, resolver Resolver) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{httpClient: httpClient, resolver: resolver}
}

func (c *Client) endpoint(service, path string) (string, error) {
	base, err := c.resolver.Resolve(service)
	if err != nil {
		return "", err
	}
	return base + path, nil
}

// get issues a GET and decodes the JSON body into dest. A 404 reports
// found=false instead of an error so callers can treat absence as data.
func (c *Client) get(ctx context.Context, service, path string, dest any) (bool, error) {
	target, err := c.endpoint(service, path)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("call %s: %w", service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return false, fmt.Errorf("read %s response: %w", service, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("call %s: status=%d", service, resp.StatusCode)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return false, fmt.Errorf("decode %s response: %w", service, err)
	}
	return true, nil
}

func (c *Client) post(ctx context.Context, service, path string, payload any) error {
	target, err := c.endpoint(service, path)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", service, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("call %s: status=%d", service, resp.StatusCode)
	}
	return nil
}

// FetchSrpCredential loads the verifier record for an identifier.
// Absent identifiers return nil without error.
func (c *Client) FetchSrpCredential(ctx context.Context, identifier string) (*domain.SrpCredential, error) {
	var credential domain.SrpCredential
	found, err := c.get(ctx, ServiceUser, "/api/users/"+url.PathEscape(identifier)+"/srp", &credential)
	if err != nil {
		return nil, fmt.Errorf("fetch srp credential: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &credential, nil
}

// SaveSrpCredential registers a fresh verifier record.
func (c *Client) SaveSrpCredential(ctx context.Context, credential domain.SrpCredential) error {
	if err := c.post(ctx, ServiceUser, "/api/users/srp", credential); err != nil {
		return fmt.Errorf("save srp credential: %w", err)
	}
	return nil
}

// FetchSubject loads the subject profile for an identifier, including
// its upstream identity associations.
func (c *Client) FetchSubject(ctx context.Context, identifier string) (*domain.SubjectProfile, error) {
	var subject domain.SubjectProfile
	found, err := c.get(ctx, ServiceUser, "/api/users/"+url.PathEscape(identifier), &subject)
	if err != nil {
		return nil, fmt.Errorf("fetch subject: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &subject, nil
}

// ResolveSubjectByIdp finds the local subject linked to an upstream
// identity, used after a connector callback.
func (c *Client) ResolveSubjectByIdp(ctx context.Context, kind domain.ConnectorKind, idpOpenID string) (*domain.SubjectProfile, error) {
	var subject domain.SubjectProfile
	path := "/api/users/associations/" + url.PathEscape(string(kind)) + "/" + url.PathEscape(idpOpenID)
	found, err := c.get(ctx, ServiceUser, path, &subject)
	if err != nil {
		return nil, fmt.Errorf("resolve subject by idp: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &subject, nil
}

// FetchClientConfig loads the relying party registration.
func (c *Client) FetchClientConfig(ctx context.Context, clientID string) (*domain.ClientConfig, error) {
	var config domain.ClientConfig
	found, err := c.get(ctx, ServiceConfig, "/api/clients/"+url.PathEscape(clientID), &config)
	if err != nil {
		return nil, fmt.Errorf("fetch client config: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &config, nil
}

// FetchClientIdpConfig loads the connector registration for a client.
func (c *Client) FetchClientIdpConfig(ctx context.Context, clientID string, kind domain.ConnectorKind) (*domain.ClientIdpConfig, error) {
	var config domain.ClientIdpConfig
	path := "/api/clients/" + url.PathEscape(clientID) + "/idps/" + url.PathEscape(string(kind))
	found, err := c.get(ctx, ServiceConfig, path, &config)
	if err != nil {
		return nil, fmt.Errorf("fetch idp config: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &config, nil
}

// FetchChallengeConfig loads the challenge delivery settings for a client.
func (c *Client) FetchChallengeConfig(ctx context.Context, clientID string) (*domain.ChallengeConfig, error) {
	var config domain.ChallengeConfig
	found, err := c.get(ctx, ServiceConfig, "/api/clients/"+url.PathEscape(clientID)+"/challenge", &config)
	if err != nil {
		return nil, fmt.Errorf("fetch challenge config: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &config, nil
}

// DispatchChallenge asks the challenge service to deliver a one-time
// link or code to the identifier.
func (c *Client) DispatchChallenge(ctx context.Context, clientID, identifier string, challengeType domain.ChallengeType) error {
	payload := map[string]string{
		"client_id":  clientID,
		"identifier": identifier,
		"type":       string(challengeType),
	}
	if err := c.post(ctx, ServiceChallenge, "/api/challenges", payload); err != nil {
		return fmt.Errorf("dispatch challenge: %w", err)
	}
	return nil
}
