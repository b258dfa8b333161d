package idverify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/jeremyhahn/go-idverify/pkg/oauth"
	"github.com/stretchr/testify/require"
)

func unsignedJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return oauth.EncodeBase64URL(header) + "." + oauth.EncodeBase64URL(payload) + ".c2ln"
}

func newResourceClient(t *testing.T, body string) (*Client, *fakeIdP) {
	t.Helper()
	idp := newFakeIdP(t)
	idp.userinfoBody = body
	bridge, _ := autoBridge(idp, approve)
	return newTestClient(t, idp, oauth.Config{}, bridge, WithStore(seedSession(t, time.Hour))), idp
}

func TestUserInfo(t *testing.T) {
	tests := []struct {
		name     string
		body     func(t *testing.T) string
		verified *bool
	}{
		{
			name: "json with boolean",
			body: func(*testing.T) string {
				return `{"sub":"user-1","email":"a@example.com","email_verified":true,"given_name":"Ada","family_name":"Lovelace"}`
			},
			verified: boolPtr(true),
		},
		{
			name: "json with string flag",
			body: func(*testing.T) string {
				return `{"sub":"user-1","email":"a@example.com","email_verified":"FALSE","given_name":"Ada","family_name":"Lovelace"}`
			},
			verified: boolPtr(false),
		},
		{
			name: "quoted jwt",
			body: func(t *testing.T) string {
				return `"` + unsignedJWT(t, map[string]any{
					"sub": "user-1", "email": "a@example.com", "email_verified": "true",
					"given_name": "Ada", "family_name": "Lovelace",
				}) + `"` + "\n"
			},
			verified: boolPtr(true),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, idp := newResourceClient(t, tt.body(t))

			info, err := c.UserInfo(context.Background())
			require.NoError(t, err)
			require.Equal(t, "user-1", info.Subject)
			require.Equal(t, "a@example.com", info.Email)
			require.Equal(t, "Ada", info.GivenName)
			require.Equal(t, "Lovelace", info.FamilyName)
			require.Equal(t, tt.verified, info.EmailVerified)

			idp.mu.Lock()
			defer idp.mu.Unlock()
			require.Equal(t, "Bearer seed-access-token", idp.authHeader)
		})
	}
}

func TestUserInfo_UnrecognizedFlag(t *testing.T) {
	c, _ := newResourceClient(t, `{"sub":"user-1","email_verified":"maybe"}`)

	info, err := c.UserInfo(context.Background())
	require.NoError(t, err)
	require.Nil(t, info.EmailVerified)
}

func TestAttributes_Structured(t *testing.T) {
	c, _ := newResourceClient(t, `{
		"attributes": [
			{"handle":"fname","name":"First Name","value":"Ada"},
			{"handle":"zip","name":"Zip Code","value":null}
		],
		"status": [
			{"group":"military","subgroups":["Veteran","Service Member"],"verified":true},
			{"group":"student","verified":"false"}
		]
	}`)

	got, err := c.Attributes(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Attribute{
		{Handle: "fname", Name: "First Name", Value: "Ada"},
		{Handle: "zip", Name: "Zip Code"},
	}, got.Attributes)
	require.Equal(t, []VerificationStatus{
		{Group: "military", Subgroups: []string{"Veteran", "Service Member"}, Verified: true},
		{Group: "student"},
	}, got.Status)
}

func TestAttributes_FlatClaimsFallback(t *testing.T) {
	c, _ := newResourceClient(t, unsignedJWT(t, map[string]any{
		"uuid":   "u-1",
		"fname":  "Ada",
		"age":    36,
		"groups": []string{"military"},
	}))

	got, err := c.Attributes(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Attribute{
		{Handle: "age", Name: "age", Value: "36"},
		{Handle: "fname", Name: "fname", Value: "Ada"},
		{Handle: "uuid", Name: "uuid", Value: "u-1"},
	}, got.Attributes)
	require.Empty(t, got.Status)
}

func TestRawPayload(t *testing.T) {
	c, _ := newResourceClient(t, `{
		"sub": "user-1",
		"amr": ["pwd", "otp"],
		"address": {"zip": "12345"},
		"verified": true,
		"age": 36,
		"middle": null
	}`)

	got, err := c.RawPayload(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Claim{
		{Key: "address", Value: `{"zip":"12345"}`},
		{Key: "age", Value: "36"},
		{Key: "amr", Value: "pwd, otp"},
		{Key: "middle", Value: "null"},
		{Key: "sub", Value: "user-1"},
		{Key: "verified", Value: "true"},
	}, got)
}

func TestResource_Failures(t *testing.T) {
	t.Run("unexpected status", func(t *testing.T) {
		c, idp := newResourceClient(t, "")
		idp.userinfoCode = http.StatusForbidden

		_, err := c.UserInfo(context.Background())
		var serr *oauth.StatusError
		require.ErrorAs(t, err, &serr)
		require.ErrorIs(t, err, oauth.ErrUnexpectedResponse)
		require.Equal(t, http.StatusForbidden, serr.StatusCode)
	})

	t.Run("not json", func(t *testing.T) {
		c, _ := newResourceClient(t, "<html>")
		_, err := c.RawPayload(context.Background())
		require.ErrorIs(t, err, oauth.ErrDecodingFailed)
	})

	t.Run("json array", func(t *testing.T) {
		c, _ := newResourceClient(t, `[1,2]`)
		_, err := c.Attributes(context.Background())
		require.ErrorIs(t, err, oauth.ErrDecodingFailed)
	})

	t.Run("malformed jwt", func(t *testing.T) {
		c, _ := newResourceClient(t, "eyJhbGciOi.only-two")
		_, err := c.UserInfo(context.Background())
		require.ErrorIs(t, err, oauth.ErrInvalidJWT)
	})

	t.Run("not signed in", func(t *testing.T) {
		idp := newFakeIdP(t)
		bridge, _ := autoBridge(idp, approve)
		c := newTestClient(t, idp, oauth.Config{}, bridge)

		_, err := c.UserInfo(context.Background())
		require.ErrorIs(t, err, oauth.ErrNotAuthenticated)
	})
}

func TestPolicies(t *testing.T) {
	idp := newFakeIdP(t)
	idp.policiesBody = `[
		{"name":"Military","handle":"military","active":true,"groups":[{"name":"Veteran","handle":"veteran"}]},
		{"name":"Nurse","handle":"nurse","active":false,"groups":[]}
	]`
	bridge, _ := autoBridge(idp, approve)
	c := newTestClient(t, idp, oauth.Config{ClientSecret: "s3cret"}, bridge)

	all, err := c.Policies(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, []PolicyGroup{{Name: "Veteran", Handle: "veteran"}}, all[0].Groups)

	idp.mu.Lock()
	require.Equal(t, testClientID, idp.policiesQuery.Get("client_id"))
	require.Equal(t, "s3cret", idp.policiesQuery.Get("client_secret"))
	idp.mu.Unlock()

	active := c.AvailablePolicies(context.Background())
	require.Len(t, active, 1)
	require.Equal(t, "military", active[0].Handle)
}

func TestPolicies_Failures(t *testing.T) {
	idp := newFakeIdP(t)
	idp.policiesCode = http.StatusUnauthorized
	bridge, _ := autoBridge(idp, approve)
	c := newTestClient(t, idp, oauth.Config{}, bridge)

	_, err := c.Policies(context.Background())
	require.ErrorIs(t, err, oauth.ErrUnexpectedResponse)

	active := c.AvailablePolicies(context.Background())
	require.NotNil(t, active)
	require.Empty(t, active)
}

type brokenTransport struct{}

func (brokenTransport) Get(ctx context.Context, rawURL string, header http.Header) (*oauth.Response, error) {
	return nil, errors.New("connection refused")
}

func (brokenTransport) PostForm(ctx context.Context, rawURL string, form url.Values) (*oauth.Response, error) {
	return nil, errors.New("connection refused")
}

func TestPolicies_NetworkError(t *testing.T) {
	idp := newFakeIdP(t)
	bridge, _ := autoBridge(idp, approve)
	c := newTestClient(t, idp, oauth.Config{}, bridge, WithTransport(brokenTransport{}))

	_, err := c.Policies(context.Background())
	require.ErrorIs(t, err, oauth.ErrNetwork)
	require.Empty(t, c.AvailablePolicies(context.Background()))
}

func boolPtr(b bool) *bool { return &b }
