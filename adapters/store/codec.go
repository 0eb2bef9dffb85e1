package store

import (
	"encoding/json"
	"fmt"

	"github.com/layer-3/credex/core"
)

func decodeRequests(raw []byte) ([]core.CredentialRequest, error) {
	if len(raw) == 0 {
		return []core.CredentialRequest{}, nil
	}

	var requests []core.CredentialRequest
	if err := json.Unmarshal(raw, &requests); err != nil {
		return nil, fmt.Errorf("failed to decode ledger: %w", core.ErrStore)
	}
	if requests == nil {
		requests = []core.CredentialRequest{}
	}
	return requests, nil
}

func encodeRequests(requests []core.CredentialRequest) ([]byte, error) {
	if requests == nil {
		requests = []core.CredentialRequest{}
	}
	raw, err := json.Marshal(requests)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ledger: %w", core.ErrStore)
	}
	return raw, nil
}
