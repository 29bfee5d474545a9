package metadata

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"verigate/pkg/requestcontext"
)

// MetadataSuite covers client metadata capture used to enrich audit events.
// Justification: proxy header precedence and user-agent labelling are pure
// functions whose edge cases are awkward to reach through the full router.
type MetadataSuite struct {
	suite.Suite
}

func TestMetadataSuite(t *testing.T) {
	suite.Run(t, new(MetadataSuite))
}

func (s *MetadataSuite) TestClientIPFromRequest() {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"first forwarded-for entry wins", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.7"},
		{"single forwarded-for entry", map[string]string{"X-Forwarded-For": " 203.0.113.8 "}, "10.0.0.2:1234", "203.0.113.8"},
		{"real ip when no forwarded-for", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.2:1234", "198.51.100.4"},
		{"remote addr strips port", nil, "192.0.2.10:5555", "192.0.2.10"},
		{"ipv6 remote addr strips brackets", nil, "[::1]:5555", "::1"},
		{"empty remote addr", nil, "", "unknown"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			s.Equal(tt.want, ClientIPFromRequest(req))
		})
	}
}

func (s *MetadataSuite) TestClientMetadataMiddleware() {
	var gotIP, gotUA string
	h := ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotIP = requestcontext.ClientIP(r.Context())
		gotUA = requestcontext.UserAgent(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	req.Header.Set("User-Agent", "curl/8.4.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	s.Equal("192.0.2.1", gotIP)
	s.Equal("curl/8.4.0", gotUA)
}

func (s *MetadataSuite) TestDeviceLabel() {
	s.Run("empty user agent returns unknown device", func() {
		s.Equal(UnknownDevice, DeviceLabel(""))
		s.Equal(UnknownDevice, DeviceLabel("   "))
	})

	s.Run("chrome on desktop includes browser and OS", func() {
		label := DeviceLabel("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		s.Contains(label, "Chrome")
		s.Contains(label, " on ")
	})

	s.Run("firefox on linux includes browser and OS", func() {
		label := DeviceLabel("Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
		s.Contains(label, "Firefox")
		s.Contains(label, "Linux")
	})

	s.Run("unrecognised agent is still labelled", func() {
		label := DeviceLabel("Unknown/1.0")
		s.NotEmpty(label)
		s.Contains(label, " on ")
		s.Equal(label, strings.TrimSpace(label))
	})
}

func TestRequestContextDefaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, requestcontext.ClientIP(req.Context()))
	assert.Empty(t, requestcontext.UserAgent(req.Context()))
}
