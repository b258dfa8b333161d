package idverify

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"

	"github.com/jeremyhahn/go-idverify/pkg/logging"
	"github.com/jeremyhahn/go-idverify/pkg/oauth"
	"go.uber.org/zap"
)

// Policy is a verification policy offered to the organization. Its Handle
// is usable as a scope.
type Policy struct {
	Name   string        `json:"name"`
	Handle string        `json:"handle"`
	Active bool          `json:"active"`
	Groups []PolicyGroup `json:"groups"`
}

// PolicyGroup is a group inside a policy.
type PolicyGroup struct {
	Name   string `json:"name"`
	Handle string `json:"handle"`
}

// Policies lists the organization's verification policies, authenticating
// with the client id and secret.
func (c *Client) Policies(ctx context.Context) ([]Policy, error) {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("client_secret", c.cfg.ClientSecret)

	resp, err := c.transport.Get(ctx, c.provider.PoliciesURL()+"?"+q.Encode(), nil)
	if err != nil {
		// keep the client secret out of error messages
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = c.provider.PoliciesURL()
		}
		return nil, oauth.Wrap(oauth.ErrNetwork, err)
	}
	if !resp.OK() {
		logging.From(ctx, c.logger).Debug("policies request rejected", logging.Status(resp.StatusCode))
		return nil, &oauth.StatusError{Kind: oauth.ErrUnexpectedResponse, StatusCode: resp.StatusCode}
	}

	var policies []Policy
	if err := json.Unmarshal(resp.Body, &policies); err != nil {
		return nil, oauth.Wrap(oauth.ErrDecodingFailed, err)
	}
	return policies, nil
}

// AvailablePolicies returns the active policies. Failures are logged and
// yield an empty list so scope selection can fall back to manual entry.
func (c *Client) AvailablePolicies(ctx context.Context) []Policy {
	policies, err := c.Policies(ctx)
	if err != nil {
		logging.From(ctx, c.logger).Warn("policy listing unavailable", zap.Error(err))
		return []Policy{}
	}
	active := make([]Policy, 0, len(policies))
	for _, p := range policies {
		if p.Active {
			active = append(active, p)
		}
	}
	return active
}
