package rpc

import (
	"context"
	"encoding/json"
)

// Topic names the wire-level strings a Dispatcher routes on (spec
// section 6's table, minus the service-name prefix a real transport
// would add).
type Topic string

const (
	TopicMatch          Topic = "resource.match"
	TopicMatchMulti     Topic = "resource.match_multi"
	TopicUpdate         Topic = "resource.update"
	TopicCancel         Topic = "resource.cancel"
	TopicPartialCancel  Topic = "resource.partial-cancel"
	TopicInfo           Topic = "resource.info"
	TopicStatsGet       Topic = "resource.stats-get"
	TopicStatsClear     Topic = "resource.stats-clear"
	TopicStatus         Topic = "resource.status"
	TopicFind           Topic = "resource.find"
	TopicSetProperty    Topic = "resource.set_property"
	TopicGetProperty    Topic = "resource.get_property"
	TopicRemoveProperty Topic = "resource.remove_property"
	TopicSetStatus      Topic = "resource.set_status"
	TopicNotify         Topic = "resource.notify"
	TopicFeasibility    Topic = "feasibility.check"
)

// MatchCmd is the cmd field of a MatchRequest, naming which of the
// traverser's five operations to run (spec section 4.6.2).
type MatchCmd string

const (
	CmdAllocate                   MatchCmd = "allocate"
	CmdAllocateOrElseReserve      MatchCmd = "allocate_orelse_reserve"
	CmdAllocateWithSatisfiability MatchCmd = "allocate_with_satisfiability"
	CmdSatisfiability             MatchCmd = "satisfiability"
	CmdWithoutAllocating          MatchCmd = "without_allocating"
)

// MatchRequest is the resource.match request body.
type MatchRequest struct {
	Cmd     MatchCmd        `json:"cmd"`
	JobID   int64           `json:"jobid"`
	Jobspec json.RawMessage `json:"jobspec"`
}

// MatchResponse is the resource.match / resource.update response body.
type MatchResponse struct {
	JobID    int64   `json:"jobid"`
	Status   string  `json:"status"`
	Overhead float64 `json:"overhead"`
	R        string  `json:"R"`
	At       int64   `json:"at"`
}

// MatchMultiJob is one entry of a resource.match_multi request's jobs
// array.
type MatchMultiJob struct {
	JobID   int64           `json:"jobid"`
	Jobspec json.RawMessage `json:"jobspec"`
}

// MatchMultiRequest is the resource.match_multi streaming request.
type MatchMultiRequest struct {
	Cmd  MatchCmd        `json:"cmd"`
	Jobs []MatchMultiJob `json:"jobs"`
}

// MatchMultiResponse is the resource.match_multi response: one
// MatchResponse per submitted job, in request order. The wire RPC this
// is modeled on streams one message per job terminated by ENODATA;
// Dispatcher has no streaming transport of its own, so Dispatch
// collects the whole batch and returns it as a single array instead
// (see pkg/engine's dispatch.go).
type MatchMultiResponse struct {
	Results []MatchResponse `json:"results"`
}

// UpdateRequest is the resource.update request body.
type UpdateRequest struct {
	JobID int64  `json:"jobid"`
	R     string `json:"R"`
}

// CancelRequest is the resource.cancel request body.
type CancelRequest struct {
	JobID int64 `json:"jobid"`
}

// PartialCancelRequest is the resource.partial-cancel request body.
type PartialCancelRequest struct {
	JobID int64  `json:"jobid"`
	R     string `json:"R"`
}

// PartialCancelResponse reports whether the partial cancel removed
// the job's entire allocation (1) or left a remainder reserved (0).
type PartialCancelResponse struct {
	FullRemoval int `json:"full-removal"`
}

// InfoRequest is the resource.info request body.
type InfoRequest struct {
	JobID int64 `json:"jobid"`
}

// InfoResponse is the resource.info response body.
type InfoResponse struct {
	JobID    int64   `json:"jobid"`
	Status   string  `json:"status"`
	At       int64   `json:"at"`
	Overhead float64 `json:"overhead"`
}

// StatsSummary is a perf_stats series's min/max/avg/variance block.
type StatsSummary struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Avg      float64 `json:"avg"`
	Variance float64 `json:"variance"`
}

// SeriesBlock is one perf_stats series (succeeded or failed).
type SeriesBlock struct {
	NJobs         uint64       `json:"njobs"`
	NJobsReset    uint64       `json:"njobs-reset"`
	MaxMatchJobID int64        `json:"max-match-jobid"`
	MaxMatchIters int64        `json:"max-match-iters"`
	Stats         StatsSummary `json:"stats"`
}

// MatchStatsBlock groups the succeeded/failed series.
type MatchStatsBlock struct {
	Succeeded SeriesBlock `json:"succeeded"`
	Failed    SeriesBlock `json:"failed"`
}

// StatsGetResponse is the resource.stats-get response body.
type StatsGetResponse struct {
	V              int             `json:"V"`
	E              int             `json:"E"`
	ByRank         map[string]int  `json:"by_rank"`
	LoadTime       float64         `json:"load-time"`
	GraphUptime    float64         `json:"graph-uptime"`
	TimeSinceReset float64         `json:"time-since-reset"`
	Match          MatchStatsBlock `json:"match"`
}

// StatusResponse is the resource.status response body: three R-set
// documents in whatever format the engine was configured to emit.
type StatusResponse struct {
	All       string `json:"all"`
	Down      string `json:"down"`
	Allocated string `json:"allocated"`
}

// FindRequest is the resource.find request body.
type FindRequest struct {
	Criteria string `json:"criteria"`
	Format   string `json:"format,omitempty"`
}

// FindResponse is the resource.find response body.
type FindResponse struct {
	R string `json:"R"`
}

// PropertyRequest is the resource.{set,get,remove}_property request
// body; Key carries "key[=value]" split into its two halves, Value
// empty for get/remove.
type PropertyRequest struct {
	Path  string `json:"path"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// PropertyResponse is the resource.get_property response body.
type PropertyResponse struct {
	Values []string `json:"values,omitempty"`
}

// SetStatusRequest is the resource.set_status request body.
type SetStatusRequest struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

// NotifyInitial is the first message a resource.notify subscription
// receives: the graph's current resource set.
type NotifyInitial struct {
	Resources json.RawMessage `json:"resources"`
}

// NotifyUpdate is every subsequent resource.notify message (spec
// section 6): the vertex ids that changed status and the horizon
// that status is valid over.
type NotifyUpdate struct {
	Up         []int64 `json:"up"`
	Down       []int64 `json:"down"`
	Shrink     []int64 `json:"shrink"`
	Expiration float64 `json:"expiration"`
}

// FeasibilityCheckRequest is the feasibility.check request body.
type FeasibilityCheckRequest struct {
	Jobspec json.RawMessage `json:"jobspec"`
}

// ResourceAcquireUpdate is one message on the controlling runtime's
// resource-acquire input stream (spec section 6). Resources arrives
// once initially and rebuilds the graph; thereafter only Up/Down/
// Shrink deltas are sent and Resources is nil.
type ResourceAcquireUpdate struct {
	Resources  json.RawMessage `json:"resources,omitempty"`
	Up         []int64         `json:"up,omitempty"`
	Down       []int64         `json:"down,omitempty"`
	Shrink     []int64         `json:"shrink,omitempty"`
	Expiration float64         `json:"expiration"`
}

// ResourceAcquireStream models the controlling runtime's streaming
// resource-acquire input. A Fatal-kind error from Next tears down the
// reactor (spec section 5).
type ResourceAcquireStream interface {
	Next(ctx context.Context) (*ResourceAcquireUpdate, error)
}

// Dispatcher routes one decoded request payload to its topic handler
// and returns the encoded response, or an error whose rpcerr.Kind maps
// to the errno spec section 6's table documents for that topic.
type Dispatcher interface {
	Dispatch(ctx context.Context, topic Topic, payload []byte) ([]byte, error)
}
