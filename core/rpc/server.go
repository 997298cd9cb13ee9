// RPC dispatch: a single POST / route decoding a JSON-RPC 2.0 envelope and
// dispatching by method name to a Node method. One router, one route — the
// method namespace (eth_, zks_, debug_, anvil_, hardhat_, evm_, config_)
// lives entirely in the dispatch table below, not in the route tree, since
// every one of these methods shares the same request/response shape.
package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"anvilzksync/core"
)

// handlerFunc handles one decoded JSON-RPC call's params and returns a
// result value to be marshaled, or an error.
type handlerFunc func(n *Node, params []interface{}) (interface{}, error)

// Server is the HTTP front-end for a Node.
type Server struct {
	router *chi.Mux
	node   *Node
	log    *logrus.Logger
}

func NewServer(node *Node) *Server {
	s := &Server{node: node, log: node.log}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/", s.handleRPC)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, errResponse(nil, core.KindValidation, "invalid JSON-RPC request: "+err.Error()))
		return
	}

	h, ok := methodTable[req.Method]
	if !ok {
		writeJSON(w, errResponse(req.ID, core.KindValidation, "method not found: "+req.Method))
		return
	}

	if s.node.showCalls {
		s.log.WithFields(logrus.Fields{"instance": s.node.instanceID, "method": req.Method, "params": req.Params}).Info("rpc call")
	}

	result, err := h(s.node, req.Params)
	if err != nil {
		writeJSON(w, errResponse(req.ID, core.KindOf(err), err.Error()))
		return
	}
	writeJSON(w, okResponse(req.ID, result))
}

func writeJSON(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
