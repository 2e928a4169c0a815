package wire

import (
	"encoding/json"
	"fmt"

	zmq "github.com/pebbe/zmq4"

	"github.com/three-db/threedb/internal/tensor"
)

const doneFrame = "done"

// Conn wraps a single ZeroMQ REQ (worker) or REP (scheduler) socket,
// following the teacher's pattern (networking/zmq4.Transport) of a thin
// struct embedding the socket behind domain-specific methods rather than
// exposing raw zmq calls to callers.
type Conn struct {
	sock *zmq.Socket
	rep  bool
}

// Listen binds a REP socket on the given TCP port; used by the scheduler.
func Listen(port int) (*Conn, error) {
	sock, err := zmq.NewSocket(zmq.REP)
	if err != nil {
		return nil, fmt.Errorf("wire: new REP socket: %w", err)
	}
	if err := sock.Bind(fmt.Sprintf("tcp://*:%d", port)); err != nil {
		sock.Close()
		return nil, fmt.Errorf("wire: bind port %d: %w", port, err)
	}
	return &Conn{sock: sock, rep: true}, nil
}

// Dial connects a REQ socket to the scheduler's address; used by workers.
func Dial(addr string) (*Conn, error) {
	sock, err := zmq.NewSocket(zmq.REQ)
	if err != nil {
		return nil, fmt.Errorf("wire: new REQ socket: %w", err)
	}
	if err := sock.Connect("tcp://" + addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("wire: connect %s: %w", addr, err)
	}
	return &Conn{sock: sock, rep: false}, nil
}

// Close releases the underlying socket.
func (c *Conn) Close() error {
	return c.sock.Close()
}

// Recv reads one full request (scheduler side): the JSON envelope and,
// when it is a `push` carrying tensors, the trailing (header, data) frame
// pairs described in the package doc comment.
func (c *Conn) Recv() (*Envelope, error) {
	frames, err := c.sock.RecvMessageBytes(0)
	if err != nil {
		return nil, fmt.Errorf("wire: recv: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("wire: recv: empty message")
	}
	var env Envelope
	if err := json.Unmarshal(frames[0], &env); err != nil {
		return nil, fmt.Errorf("wire: decode envelope: %w", err)
	}
	if len(env.ResultKeys) == 0 {
		return &env, nil
	}
	env.Data = make(map[string]tensor.Tensor, len(env.ResultKeys))
	idx := 1
	for _, key := range env.ResultKeys {
		if idx+1 >= len(frames) {
			return nil, fmt.Errorf("wire: truncated frame set for channel %q", key)
		}
		var schema tensor.Schema
		if err := json.Unmarshal(frames[idx], &schema); err != nil {
			return nil, fmt.Errorf("wire: decode header for %q: %w", key, err)
		}
		data := frames[idx+1]
		env.Data[key] = tensor.Tensor{Shape: schema.Shape, DType: schema.DType, Data: data}
		idx += 2
	}
	if idx >= len(frames) || string(frames[idx]) != doneFrame {
		return nil, fmt.Errorf("wire: did not get %q terminator frame", doneFrame)
	}
	return &env, nil
}

// Reply sends a single-frame JSON reply (scheduler side). Every request
// receives exactly one reply (spec.md §4.5).
func (c *Conn) Reply(env *Envelope) error {
	buf, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("wire: encode reply: %w", err)
	}
	if _, err := c.sock.SendBytes(buf, 0); err != nil {
		return fmt.Errorf("wire: send reply: %w", err)
	}
	return nil
}

// Request sends one request (worker side) and blocks for the reply. When
// data is non-nil, env.ResultKeys is populated and the tensors are
// appended as (header, data) frame pairs terminated by "done", matching
// original_source/threedb/client.py's query()/send_array().
func (c *Conn) Request(env *Envelope, data map[string]tensor.Tensor) (*Envelope, error) {
	var keys []string
	if data != nil {
		keys = make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		env.ResultKeys = keys
	}

	head, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("wire: encode request: %w", err)
	}

	if len(keys) == 0 {
		if _, err := c.sock.SendBytes(head, 0); err != nil {
			return nil, fmt.Errorf("wire: send request: %w", err)
		}
	} else {
		if _, err := c.sock.SendBytes(head, zmq.SNDMORE); err != nil {
			return nil, fmt.Errorf("wire: send request head: %w", err)
		}
		for _, key := range keys {
			t := data[key]
			header, err := json.Marshal(t.Schema())
			if err != nil {
				return nil, fmt.Errorf("wire: encode header for %q: %w", key, err)
			}
			if _, err := c.sock.SendBytes(header, zmq.SNDMORE); err != nil {
				return nil, fmt.Errorf("wire: send header for %q: %w", key, err)
			}
			if _, err := c.sock.SendBytes(t.Data, zmq.SNDMORE); err != nil {
				return nil, fmt.Errorf("wire: send data for %q: %w", key, err)
			}
		}
		if _, err := c.sock.SendBytes([]byte(doneFrame), 0); err != nil {
			return nil, fmt.Errorf("wire: send done frame: %w", err)
		}
	}

	replyBuf, err := c.sock.RecvBytes(0)
	if err != nil {
		return nil, fmt.Errorf("wire: recv reply: %w", err)
	}
	var reply Envelope
	if err := json.Unmarshal(replyBuf, &reply); err != nil {
		return nil, fmt.Errorf("wire: decode reply: %w", err)
	}
	return &reply, nil
}
