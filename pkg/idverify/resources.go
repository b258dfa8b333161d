package idverify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/jeremyhahn/go-idverify/pkg/idtoken"
	"github.com/jeremyhahn/go-idverify/pkg/logging"
	"github.com/jeremyhahn/go-idverify/pkg/oauth"
	"github.com/jeremyhahn/go-idverify/pkg/token"
)

// UserInfo is the identity profile of the signed-in user.
type UserInfo struct {
	Subject       string `json:"sub,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
}

// UnmarshalJSON accepts email_verified as a boolean or as "true"/"false".
func (u *UserInfo) UnmarshalJSON(data []byte) error {
	type plain UserInfo
	aux := struct {
		*plain
		EmailVerified json.RawMessage `json:"email_verified"`
	}{plain: (*plain)(u)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	u.EmailVerified = flexibleBool(aux.EmailVerified)
	return nil
}

func flexibleBool(raw json.RawMessage) *bool {
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return nil
	}
	switch t := v.(type) {
	case bool:
		return &t
	case string:
		switch strings.ToLower(t) {
		case "true":
			b := true
			return &b
		case "false":
			b := false
			return &b
		}
	}
	return nil
}

// Attribute is one verified attribute, such as a first name or zip code.
type Attribute struct {
	Handle string `json:"handle"`
	Name   string `json:"name"`
	Value  string `json:"value,omitempty"`
}

// VerificationStatus reports the user's standing in one verification group.
type VerificationStatus struct {
	Group     string   `json:"group"`
	Subgroups []string `json:"subgroups,omitempty"`
	Verified  bool     `json:"verified"`
}

// Attributes is the attribute and status listing returned in the oauth and
// oauth_pkce modes.
type Attributes struct {
	Attributes []Attribute          `json:"attributes"`
	Status     []VerificationStatus `json:"status"`
}

// Claim is one entry of RawPayload.
type Claim struct {
	Key   string
	Value string
}

// UserInfo fetches the user's profile.
func (c *Client) UserInfo(ctx context.Context) (*UserInfo, error) {
	claims, err := c.fetchClaims(ctx)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(claims)
	if err != nil {
		return nil, oauth.Wrap(oauth.ErrDecodingFailed, err)
	}
	var info UserInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, oauth.Wrap(oauth.ErrDecodingFailed, err)
	}
	return &info, nil
}

// Attributes fetches the user's verified attributes and group statuses. A
// body without an attributes member is read as flat claims, each scalar
// claim becoming an attribute named by its key.
func (c *Client) Attributes(ctx context.Context) (*Attributes, error) {
	claims, err := c.fetchClaims(ctx)
	if err != nil {
		return nil, err
	}
	return parseAttributes(claims), nil
}

// RawPayload returns every claim of the user's profile as strings, sorted
// by key. Arrays are joined with ", " and objects are rendered as JSON.
func (c *Client) RawPayload(ctx context.Context) ([]Claim, error) {
	claims, err := c.fetchClaims(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(claims))
	for k := range claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Claim, 0, len(keys))
	for _, k := range keys {
		out = append(out, Claim{Key: k, Value: stringValue(claims[k])})
	}
	return out, nil
}

// fetchClaims performs the bearer GET of the userinfo endpoint.
func (c *Client) fetchClaims(ctx context.Context) (map[string]any, error) {
	creds, err := c.manager.ValidCredentials(ctx, token.DefaultMinTTL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+creds.AccessToken)
	resp, err := c.transport.Get(ctx, c.provider.UserInfoURL(), header)
	if err != nil {
		return nil, oauth.Wrap(oauth.ErrNetwork, err)
	}
	if !resp.OK() {
		logging.From(ctx, c.logger).Debug("userinfo request rejected", logging.Status(resp.StatusCode))
		return nil, &oauth.StatusError{Kind: oauth.ErrUnexpectedResponse, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	return decodeBody(resp.Body)
}

// decodeBody reads a resource body that is either a JSON object or a
// compact JWT whose payload is the object.
func decodeBody(body []byte) (map[string]any, error) {
	trimmed := strings.Trim(strings.TrimSpace(string(body)), `"`)
	if strings.HasPrefix(trimmed, "eyJ") {
		return idtoken.DecodePayload(trimmed)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var claims map[string]any
	if err := dec.Decode(&claims); err != nil {
		return nil, oauth.Wrap(oauth.ErrDecodingFailed, err)
	}
	if claims == nil {
		return nil, oauth.Wrap(oauth.ErrDecodingFailed, errors.New("body is not a JSON object"))
	}
	return claims, nil
}

func parseAttributes(claims map[string]any) *Attributes {
	out := &Attributes{Attributes: []Attribute{}, Status: []VerificationStatus{}}

	raw, ok := claims["attributes"]
	if !ok {
		keys := make([]string, 0, len(claims))
		for k := range claims {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := scalarString(claims[k]); ok {
				out.Attributes = append(out.Attributes, Attribute{Handle: k, Name: k, Value: s})
			}
		}
		return out
	}

	for _, item := range asObjects(raw) {
		out.Attributes = append(out.Attributes, Attribute{
			Handle: str(item["handle"]),
			Name:   str(item["name"]),
			Value:  str(item["value"]),
		})
	}
	for _, item := range asObjects(claims["status"]) {
		st := VerificationStatus{
			Group:    str(item["group"]),
			Verified: str(item["verified"]) == "true",
		}
		if subs, ok := item["subgroups"].([]any); ok {
			for _, s := range subs {
				st.Subgroups = append(st.Subgroups, str(s))
			}
		}
		out.Status = append(out.Status, st)
	}
	return out
}

func asObjects(v any) []map[string]any {
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// scalarString renders strings, numbers and booleans. Null, arrays and
// objects report false.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func str(v any) string {
	s, _ := scalarString(v)
	return s
}

func stringValue(v any) string {
	if s, ok := scalarString(v); ok {
		return s
	}
	switch t := v.(type) {
	case nil:
		return "null"
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, stringValue(item))
		}
		return strings.Join(parts, ", ")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
