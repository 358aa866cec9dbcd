package shipping

import (
	"encoding/base64"

	"github.com/rs/zerolog"
)

// NewQuoter returns the live client, or MockQuoter when mock is set or
// credentials are missing.
func NewQuoter(cfg CarrierConfig, mock bool, log zerolog.Logger, opts ...CarrierOption) Quoter {
	if mock || !cfg.HasCredentials() {
		log.Info().Bool("mock_flag", mock).Bool("has_credentials", cfg.HasCredentials()).Msg("carrier quoting in mock mode")
		return MockQuoter{}
	}
	opts = append([]CarrierOption{WithLogger(log)}, opts...)
	return NewCarrierClient(cfg, opts...)
}

func basicAuth(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}
