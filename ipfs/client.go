// Package ipfs talks to an IPFS node's HTTP RPC API for the off-chain project
// metadata and images.
package ipfs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Scheme prefixes content identifiers stored on chain.
const Scheme = "ipfs://"

const DefaultAPIURL = "http://127.0.0.1:5001"

type Client struct {
	apiURL string
	client *http.Client
}

// NewClient returns a client for the node at apiURL. Empty values fall back to
// the local node and a 30s timeout.
func NewClient(apiURL string, timeout time.Duration) *Client {
	if strings.TrimSpace(apiURL) == "" {
		apiURL = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// AddBytes pins data under name and returns its CIDv1.
func (c *Client) AddBytes(ctx context.Context, name string, data []byte) (string, error) {
	return c.addStream(ctx, name, bytes.NewReader(data))
}

func (c *Client) addStream(ctx context.Context, name string, reader io.Reader) (string, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		defer pw.Close()
		part, err := writer.CreateFormFile("file", name)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, reader); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = writer.Close()
	}()

	reqURL := fmt.Sprintf("%s/api/v0/add?pin=true&cid-version=1", c.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return "", err
	}
	defer resp.Body.Close()
	if err := statusError("add", resp); err != nil {
		return "", err
	}

	// The add endpoint streams one JSON object per added entry; the last one
	// is the root.
	var lastHash string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var entry struct {
			Hash string `json:"Hash"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err == nil && entry.Hash != "" {
			lastHash = entry.Hash
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if lastHash == "" {
		return "", fmt.Errorf("ipfs add returned empty hash")
	}
	return lastHash, nil
}

// Cat reads content by CID. An ipfs:// prefix is accepted.
func (c *Client) Cat(ctx context.Context, cid string) ([]byte, error) {
	cid = strings.TrimPrefix(strings.TrimSpace(cid), Scheme)
	if cid == "" {
		return nil, fmt.Errorf("ipfs cat missing cid")
	}
	reqURL := fmt.Sprintf("%s/api/v0/cat?arg=%s", c.apiURL, url.QueryEscape(cid))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusError("cat", resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// URI formats a CID the way project metadata references it.
func URI(cid string) string {
	return Scheme + cid
}

func statusError(op string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) == 0 {
		return fmt.Errorf("ipfs %s failed: %s", op, resp.Status)
	}
	return fmt.Errorf("ipfs %s failed: %s: %s", op, resp.Status, strings.TrimSpace(string(body)))
}
