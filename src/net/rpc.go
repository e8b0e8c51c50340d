package net

// RPCResponse captures both a response and a potential error.
type RPCResponse struct {
	Response interface{}
	Error    error
}

// RPC is an event raised by a Peer for the owner of the peer set. Command is
// typically a wire message or a lifecycle notice. RespChan is nil for
// fire-and-forget events.
type RPC struct {
	Peer     *Peer
	Command  interface{}
	RespChan chan<- RPCResponse
}

// NewRPC returns an RPC with a buffered response channel, so the responder
// never blocks on a requester that gave up.
func NewRPC(p *Peer, cmd interface{}) (RPC, <-chan RPCResponse) {
	respCh := make(chan RPCResponse, 1)
	return RPC{Peer: p, Command: cmd, RespChan: respCh}, respCh
}

// Respond is used to respond with a response, error or both.
func (r *RPC) Respond(resp interface{}, err error) {
	if r.RespChan == nil {
		return
	}
	r.RespChan <- RPCResponse{resp, err}
}
