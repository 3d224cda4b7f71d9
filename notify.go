package walletgo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Notifier receives committed transactions for downstream delivery
// (real-time notification of payer and payee). Emission happens strictly
// after commit and is best effort; implementations must not influence
// the transfer outcome.
type Notifier interface {
	TransactionCompleted(txn Transaction)
}

type NopNotifier struct{}

func (NopNotifier) TransactionCompleted(Transaction) {}

// WebhookNotifier POSTs committed transactions to a configured URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    *zerolog.Logger
}

var (
	_ Notifier = (*WebhookNotifier)(nil)
)

func NewWebhookNotifier(url string, log *zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		log: log,
	}
}

func (n *WebhookNotifier) TransactionCompleted(txn Transaction) {
	if err := n.post(txn); err != nil {
		n.log.Warn().
			Err(err).
			Int64("txn", txn.ID).
			Msg("transaction webhook delivery failed")
	}
}

func (n *WebhookNotifier) post(txn Transaction) error {
	payload, err := json.Marshal(txn)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, n.url, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}
