package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jeenglish/speaking-backend/internal/usage"
)

// JSONBin persists the usage ledger as a single remote JSON document on
// jsonbin.io (or any compatible bin service). Reads fetch the whole
// document, writes replace it wholesale; the service offers no transactions
// or conditional updates.
type JSONBin struct {
	url        string
	masterKey  string
	httpClient *http.Client
}

func NewJSONBin(url, masterKey string) *JSONBin {
	return &JSONBin{
		url:       url,
		masterKey: masterKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Load fetches the whole ledger document. The bin API wraps the stored
// document in a {"record": ...} envelope.
func (j *JSONBin) Load(ctx context.Context) (usage.Ledger, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", j.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create load request: %w", err)
	}
	req.Header.Set("X-Master-Key", j.masterKey)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ledger response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("load ledger failed (status %d): %s", resp.StatusCode, string(body))
	}

	var envelope struct {
		Record usage.Ledger `json:"record"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parse ledger document: %w", err)
	}
	if envelope.Record == nil {
		return make(usage.Ledger), nil
	}
	return envelope.Record, nil
}

// Save overwrites the remote document with the given ledger. Last writer
// wins.
func (j *JSONBin) Save(ctx context.Context, l usage.Ledger) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", j.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Master-Key", j.masterKey)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("save ledger failed (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}
