package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-hail-core/internal/models"
)

// Notifier delivers penalty notices to end users. Delivery is best-effort;
// the ledger never rolls back on a failed notice.
type Notifier interface {
	PenaltyApplied(userID string, n models.PenaltyNotice) error
}

// HTTPNotifier posts the notice payload to a backend notification endpoint.
type HTTPNotifier struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPNotifier(endpoint string) *HTTPNotifier {
	return &HTTPNotifier{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (h *HTTPNotifier) PenaltyApplied(userID string, n models.PenaltyNotice) error {
	body := map[string]interface{}{"user_id": userID, "notice": n}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := h.Client.Post(h.Endpoint, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify endpoint returned %d", resp.StatusCode)
	}
	return nil
}
