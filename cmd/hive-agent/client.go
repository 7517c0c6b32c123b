// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
)

// rpcClient is a minimal JSON-RPC 2.0 client matching the wire shape
// github.com/gorilla/rpc/json2 expects on the server side: a single
// object in "params", a numeric "id", and a "result"/"error" reply. The
// gorilla/rpc codec ships no client counterpart, so this thin shim plays
// that role; it carries no retry or connection-pooling concerns of its
// own, which is why it stays on net/http rather than reaching for
// hashicorp/go-retryablehttp the way the oracle client does for an
// unreliable upstream.
type rpcClient struct {
	endpoint string
	http     *http.Client
}

func newRPCClient(endpoint string) *rpcClient {
	return &rpcClient{endpoint: endpoint, http: &http.Client{}}
}

type rpcRequest struct {
	Method string `json:"method"`
	Params [1]any `json:"params"`
	ID     uint64 `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return e.Message }

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	ID     uint64          `json:"id"`
}

// call invokes method (e.g. "hive.Status") with args and decodes the
// reply into out.
func (c *rpcClient) call(ctx context.Context, method string, args, out any) error {
	req := rpcRequest{Method: method, Params: [1]any{args}, ID: 1}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "hive-agent: rpc call failed")
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return errors.Wrap(err, "hive-agent: decoding rpc response")
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}
