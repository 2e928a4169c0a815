// Package wire implements the 3DB request/reply protocol: a single JSON
// envelope per message, optionally followed by one (header, data) frame
// pair per result channel when a `push` carries tensors, terminated by the
// literal string frame "done" — mirroring
// original_source/threedb/scheduling/utils.py's recv_into_buffer and
// original_source/threedb/client.py's query()/send_array().
package wire

import (
	"github.com/three-db/threedb/internal/tensor"
)

// Kind discriminates the envelope's message type, carried in the `kind`
// JSON field on every request and reply (spec.md §4.5, §6).
type Kind string

const (
	KindInfo     Kind = "info"
	KindDecl     Kind = "decl"
	KindPull     Kind = "pull"
	KindPush     Kind = "push"
	KindAck      Kind = "ack"
	KindWork     Kind = "work"
	KindDie      Kind = "die"
	KindBadQuery Kind = "bad_query"
	// KindError is sent in reply to a single misbehaving request (a decl
	// whose schema conflicts with the one already committed, a push whose
	// tensors don't match the declared schema, a request sent out of
	// order). It is fatal to that worker's request, not to the scheduler.
	KindError Kind = "error"
)

// Job is the wire representation of a scheduled render task; field names
// and semantics follow spec.md §3's Job record and the Python original's
// JobDescriptor namedtuple.
type Job struct {
	Order       int                    `json:"order"`
	ID          string                 `json:"id"`
	Environment string                 `json:"environment"`
	Model       string                 `json:"model"`
	RenderArgs  map[string]interface{} `json:"render_args"`
	ControlArgs map[string]interface{} `json:"control_args,omitempty"`
	// ControlOrder is the ordered list of qualified control identifiers
	// ("module", "type") to be re-instantiated worker-side.
	ControlOrder [][2]string `json:"control_order"`
}

// Envelope is the single struct used for every request and reply kind,
// mirroring the teacher's ZMQMessage pattern (cmd/consensus/zmq.go) of one
// struct with per-kind optional fields rather than a sum type, which is
// the idiomatic encoding for a JSON protocol with a `kind` discriminator.
type Envelope struct {
	Kind     Kind   `json:"kind"`
	WorkerID string `json:"worker_id,omitempty"`

	// Error carries a human-readable reason on a KindError reply.
	Error string `json:"error,omitempty"`

	// info reply
	Environments   []string                          `json:"environments,omitempty"`
	Models         []string                          `json:"models,omitempty"`
	RenderArgs     map[string]interface{}            `json:"render_args,omitempty"`
	InferenceArgs  map[string]interface{}            `json:"inference,omitempty"`
	ControlsArgs   map[string]map[string]interface{} `json:"controls_args,omitempty"`
	EvaluationArgs map[string]interface{}            `json:"evaluation_args,omitempty"`

	// decl request
	DeclaredOutputs map[string]tensor.Schema `json:"declared_outputs,omitempty"`

	// pull request / work reply
	BatchSize       int    `json:"batch_size,omitempty"`
	LastEnvironment string `json:"last_environment,omitempty"`
	LastModel       string `json:"last_model,omitempty"`
	ParamsToRender  []Job  `json:"params_to_render,omitempty"`

	// push request: JobID names the job this result answers (the worker
	// sends only the id, not the full Job, matching client.py's
	// `query(socket, 'push', ..., job=job.id)`). Result is not set or read
	// by either side: the scheduler's handlePush allocates the buffer slot
	// for the carried tensors itself and hands that index to PushResult.
	JobID      string   `json:"job,omitempty"`
	Result     int      `json:"result"`
	ResultKeys []string `json:"result_keys,omitempty"`

	// Data carries the decoded (server-side) or to-be-encoded
	// (client-side) tensors for a push request; never itself
	// marshaled to JSON — it travels as the raw frame pairs described
	// in the package doc comment.
	Data map[string]tensor.Tensor `json:"-"`
}
