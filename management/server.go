// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package management

import (
	"net/http"

	"github.com/gorilla/rpc"
	"github.com/gorilla/rpc/json2"
)

// NewHandler registers svc as a JSON-RPC 2.0 service and returns the
// http.Handler the process's management listener serves. One handler
// exposes every command in spec §6.5; the transport itself carries no
// authorization, since Service.authorize checks every call's Auth
// against the permission matrix before doing anything.
func NewHandler(svc *Service) (http.Handler, error) {
	s := rpc.NewServer()
	s.RegisterCodec(json2.NewCodec(), "application/json")
	if err := s.RegisterService(svc, "hive"); err != nil {
		return nil, err
	}
	return s, nil
}
