package apple_notification

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRequest_RejectsMalformedBodies(t *testing.T) {
	_, err := ParseRequest([]byte(`not json`))
	require.Error(t, err)

	_, err = ParseRequest([]byte(`{}`))
	require.Error(t, err)

	_, err = ParseRequest([]byte(`{"signedPayload":"only.two"}`))
	require.Error(t, err)
}

func TestParse_RequiresCertificateChain(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"ES256","x5c":[]}`))
	_, err := Parse(header + ".e30.sig")
	require.ErrorContains(t, err, "x5c")

	header = base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"ES256","x5c":["bm90LWEtY2VydA==","bm90LWEtY2VydA=="]}`))
	_, err = Parse(header + ".e30.sig")
	require.Error(t, err)
}
