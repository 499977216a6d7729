// keysource.go - Fetching the Groth16 proving key.
//
// The key is served as a JSON-encoded 0x-hex string and decoded here; it is
// large (hundreds of MB for deep trees), so callers fetch it once per
// operation and hand the raw bytes to the engine.
package prover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"shroud/internal/common"
)

// ErrProvingKeyUnavailable classifies any failure to obtain the key.
var ErrProvingKeyUnavailable = errors.New("proving key unavailable")

// KeySource fetches proving key bytes.
type KeySource interface {
	FetchProvingKey(ctx context.Context) ([]byte, error)
}

// HTTPKeySource fetches the key from an HTTP endpoint returning a JSON hex
// string.
type HTTPKeySource struct {
	endpoint string
	http     *http.Client
}

// NewHTTPKeySource creates a key source for one endpoint.
func NewHTTPKeySource(endpoint string) *HTTPKeySource {
	return &HTTPKeySource{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 5 * time.Minute},
	}
}

// FetchProvingKey downloads and hex-decodes the key.
func (s *HTTPKeySource) FetchProvingKey(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvingKeyUnavailable, err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvingKeyUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %s", ErrProvingKeyUnavailable, resp.Status)
	}
	var hexKey string
	if err := json.NewDecoder(resp.Body).Decode(&hexKey); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProvingKeyUnavailable, err)
	}
	key, err := common.FromHex(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex payload: %v", ErrProvingKeyUnavailable, err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrProvingKeyUnavailable)
	}
	return key, nil
}
