package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/riftsync/riftsync/protocol"
)

// Client drives an InitiatorSession's outgoing messages (Round 1, then
// Round 2 and any retried Round 2) against a remote Server over plain HTTP
// POSTs of the raw protocol frames.
type Client struct {
	baseURL    string
	sessionID  string
	httpClient *http.Client
}

// NewClient targets baseURL (e.g. "http://peer:8090") for the sync
// identified by sessionID.
func NewClient(baseURL, sessionID string) *Client {
	return &Client{
		baseURL:    baseURL,
		sessionID:  sessionID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	url := fmt.Sprintf("%s%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", protocol.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", protocol.ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: peer returned %s: %s", protocol.ErrTransport, resp.Status, respBody)
	}
	return respBody, nil
}

// SendRound1 posts the Strata exchange and returns the reply bytes.
func (c *Client) SendRound1(ctx context.Context, payload []byte) ([]byte, error) {
	return c.post(ctx, "/v1/sync/"+c.sessionID+"/round1", payload)
}

// SendRound2 posts a sized IBLT and returns the reply bytes.
func (c *Client) SendRound2(ctx context.Context, payload []byte) ([]byte, error) {
	return c.post(ctx, "/v1/sync/"+c.sessionID+"/round2", payload)
}

// RunSync drives init through a full two-round exchange (including any
// DecodeFailed retries) against the remote peer, then reconstructs the
// peer's file into out.
func RunSync(ctx context.Context, client *Client, init *protocol.InitiatorSession, out io.Writer) error {
	round1, err := init.Round1()
	if err != nil {
		return err
	}
	round1Reply, err := client.SendRound1(ctx, round1)
	if err != nil {
		return err
	}
	round2, err := init.ConsumeRound1Reply(round1Reply)
	if err != nil {
		return err
	}

	for {
		round2Reply, err := client.SendRound2(ctx, round2)
		if err != nil {
			return err
		}
		outcome, err := init.ConsumeRound2Reply(round2Reply)
		if err != nil {
			return err
		}
		if outcome.Done {
			return init.Reconstruct(out, outcome)
		}
		round2 = outcome.RetryPayload
	}
}
