// relay.go - Private-swap submission through the relay.
//
// Swaps never go to the ledger from the user's own identity: the relay
// submits the router call on the user's behalf so the external address is
// not linkable to the shielded trade. Only proof artifacts and the swap
// bounds appear in the payload.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"shroud/internal/common"
)

// SwapRequest is the payload the relay forwards to the pool router.
// AmountOut is the sold asset's signed balance change, so it is negative.
type SwapRequest struct {
	CoinIn          string      `json:"coinIn"`
	CoinOut         string      `json:"coinOut"`
	AmountOut       string      `json:"amountOut"`
	MinimumReceived string      `json:"minimumReceived"`
	CurrentRoot     common.Hash `json:"currentRoot"`
	Nullifier       common.Hash `json:"nullifier"`
	NewLeaf         common.Hash `json:"newLeaf"`
	Proof           string      `json:"proof"`
}

// Relay submits private swaps on behalf of the user.
type Relay struct {
	endpoint string
	http     *http.Client
	log      zerolog.Logger
}

// NewRelay creates a relay client for one endpoint.
func NewRelay(endpoint string, log zerolog.Logger) *Relay {
	return &Relay{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 60 * time.Second},
		log:      log,
	}
}

// SubmitSwap posts the swap to the relay and returns the digest of the
// transaction the relay executed.
func (r *Relay) SubmitSwap(ctx context.Context, req *SwapRequest) (TxRef, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return TxRef{}, fmt.Errorf("%w: marshal swap payload: %v", ErrSubmissionFailed, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return TxRef{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := r.http.Do(httpReq)
	if err != nil {
		return TxRef{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return TxRef{}, fmt.Errorf("%w: relay returned status %s", ErrSubmissionFailed, resp.Status)
	}
	var ref TxRef
	if err := json.NewDecoder(resp.Body).Decode(&ref); err != nil {
		return TxRef{}, fmt.Errorf("%w: decode relay response: %v", ErrSubmissionFailed, err)
	}
	if ref.Digest == "" {
		return TxRef{}, fmt.Errorf("%w: relay returned empty digest", ErrSubmissionFailed)
	}
	r.log.Debug().Str("digest", ref.Digest).Msg("swap relayed")
	return ref, nil
}
