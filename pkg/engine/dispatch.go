package engine

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/cuemby/fluxion/internal/rpcerr"
	"github.com/cuemby/fluxion/pkg/graph"
	"github.com/cuemby/fluxion/pkg/jobspec"
	"github.com/cuemby/fluxion/pkg/perfstats"
	"github.com/cuemby/fluxion/pkg/rpc"
	"github.com/cuemby/fluxion/pkg/rset"
	"github.com/cuemby/fluxion/pkg/traverser"
)

// Dispatch implements rpc.Dispatcher, decoding payload per topic and
// routing it to the matching Engine operation. The caller is
// responsible for invoking Dispatch from a single goroutine at a
// time (spec section 5).
func (e *Engine) Dispatch(ctx context.Context, topic rpc.Topic, payload []byte) ([]byte, error) {
	switch topic {
	case rpc.TopicMatch:
		return e.dispatchMatch(payload)
	case rpc.TopicMatchMulti:
		return e.dispatchMatchMulti(payload)
	case rpc.TopicUpdate:
		return e.dispatchUpdate(payload)
	case rpc.TopicCancel:
		return e.dispatchCancel(payload)
	case rpc.TopicPartialCancel:
		return e.dispatchPartialCancel(payload)
	case rpc.TopicInfo:
		return e.dispatchInfo(payload)
	case rpc.TopicStatsGet:
		return e.dispatchStatsGet()
	case rpc.TopicStatsClear:
		e.StatsClear()
		return []byte("{}"), nil
	case rpc.TopicStatus:
		return e.dispatchStatus()
	case rpc.TopicFind:
		return e.dispatchFind(payload)
	case rpc.TopicSetProperty:
		return e.dispatchSetProperty(payload)
	case rpc.TopicGetProperty:
		return e.dispatchGetProperty(payload)
	case rpc.TopicRemoveProperty:
		return e.dispatchRemoveProperty(payload)
	case rpc.TopicSetStatus:
		return e.dispatchSetStatus(payload)
	case rpc.TopicFeasibility:
		return e.dispatchFeasibility(payload)
	case rpc.TopicNotify:
		// resource.notify is a long-lived subscription, not a
		// request/response call: the transport holding the
		// connection open should call Subscribe/Unsubscribe
		// directly and forward the broker's notifications itself,
		// rather than go through Dispatch.
		return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "resource.notify is not dispatched; call Engine.Subscribe directly")
	default:
		return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "unknown topic: "+string(topic))
	}
}

func unmarshalRequest(payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "malformed request: "+err.Error())
	}
	return nil
}

func marshalResponse(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, rpcerr.New(rpcerr.KindFatal, rpcerr.EINVAL, "encoding response: "+err.Error())
	}
	return b, nil
}

func matchOp(cmd rpc.MatchCmd) (traverser.Op, error) {
	switch cmd {
	case rpc.CmdAllocate:
		return traverser.OpAllocate, nil
	case rpc.CmdAllocateOrElseReserve:
		return traverser.OpAllocateOrElseReserve, nil
	case rpc.CmdAllocateWithSatisfiability:
		return traverser.OpAllocateWithSatisfiability, nil
	case rpc.CmdSatisfiability:
		return traverser.OpSatisfiability, nil
	case rpc.CmdWithoutAllocating:
		return traverser.OpMatchWithoutAllocating, nil
	default:
		return "", rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "unknown match cmd: "+string(cmd))
	}
}

func (e *Engine) dispatchMatch(payload []byte) ([]byte, error) {
	var req rpc.MatchRequest
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	op, err := matchOp(req.Cmd)
	if err != nil {
		return nil, err
	}
	var js jobspec.Jobspec
	if err := unmarshalRequest(req.Jobspec, &js); err != nil {
		return nil, err
	}
	result, err := e.Match(req.JobID, &js, op, e.graph.GraphDuration.Start)
	if err != nil {
		return nil, err
	}
	return marshalResponse(rpc.MatchResponse{
		JobID:    result.JobID,
		Status:   string(result.Status),
		Overhead: 0,
		R:        result.R,
		At:       result.At,
	})
}

// dispatchMatchMulti runs every job in the batch against the same cmd
// in request order, so later jobs see the allocations earlier ones in
// the same batch made. A job that fails to match does not abort the
// batch: its entry carries an empty R and a status of "FAILED" so the
// caller can tell which jobs in the batch need retrying.
func (e *Engine) dispatchMatchMulti(payload []byte) ([]byte, error) {
	var req rpc.MatchMultiRequest
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	op, err := matchOp(req.Cmd)
	if err != nil {
		return nil, err
	}
	results := make([]rpc.MatchResponse, len(req.Jobs))
	for i, j := range req.Jobs {
		var js jobspec.Jobspec
		if err := unmarshalRequest(j.Jobspec, &js); err != nil {
			return nil, err
		}
		result, err := e.Match(j.JobID, &js, op, e.graph.GraphDuration.Start)
		if err != nil {
			results[i] = rpc.MatchResponse{JobID: j.JobID, Status: "FAILED"}
			continue
		}
		results[i] = rpc.MatchResponse{
			JobID:  result.JobID,
			Status: string(result.Status),
			R:      result.R,
			At:     result.At,
		}
	}
	return marshalResponse(rpc.MatchMultiResponse{Results: results})
}

func (e *Engine) dispatchUpdate(payload []byte) ([]byte, error) {
	var req rpc.UpdateRequest
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	job, err := e.Info(req.JobID)
	if err != nil {
		return nil, err
	}
	if err := e.Update(req.JobID, req.R, job.ScheduledAt, job.Duration); err != nil {
		return nil, err
	}
	updated, err := e.Info(req.JobID)
	if err != nil {
		return nil, err
	}
	return marshalResponse(rpc.MatchResponse{
		JobID:  req.JobID,
		Status: string(updated.State),
		R:      updated.R,
		At:     updated.ScheduledAt,
	})
}

func (e *Engine) dispatchCancel(payload []byte) ([]byte, error) {
	var req rpc.CancelRequest
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	if err := e.Cancel(req.JobID); err != nil {
		return nil, err
	}
	return []byte("{}"), nil
}

func (e *Engine) dispatchPartialCancel(payload []byte) ([]byte, error) {
	var req rpc.PartialCancelRequest
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	full, err := e.PartialCancel(req.JobID, req.R)
	if err != nil {
		return nil, err
	}
	removal := 0
	if full {
		removal = 1
	}
	return marshalResponse(rpc.PartialCancelResponse{FullRemoval: removal})
}

func (e *Engine) dispatchInfo(payload []byte) ([]byte, error) {
	var req rpc.InfoRequest
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	job, err := e.Info(req.JobID)
	if err != nil {
		return nil, err
	}
	return marshalResponse(rpc.InfoResponse{
		JobID:    job.JobID,
		Status:   string(job.State),
		At:       job.ScheduledAt,
		Overhead: job.Overhead.Seconds(),
	})
}

func (e *Engine) dispatchStatsGet() ([]byte, error) {
	v, edges, byRank, stats := e.StatsGet()
	byRankStr := make(map[string]int, len(byRank))
	for rank, n := range byRank {
		byRankStr[strconv.FormatInt(rank, 10)] = n
	}
	return marshalResponse(rpc.StatsGetResponse{
		V:        v,
		E:        edges,
		ByRank:   byRankStr,
		LoadTime: stats.LoadTime,
		Match: rpc.MatchStatsBlock{
			Succeeded: seriesBlock(stats.Succeeded),
			Failed:    seriesBlock(stats.Failed),
		},
	})
}

func seriesBlock(s perfstats.Series) rpc.SeriesBlock {
	return rpc.SeriesBlock{
		NJobs:         s.NJobs,
		NJobsReset:    s.NJobsReset,
		MaxMatchJobID: s.MaxMatchJobID,
		MaxMatchIters: s.MatchIterCt,
		Stats: rpc.StatsSummary{
			Min:      s.Min,
			Max:      s.Max,
			Avg:      s.Avg,
			Variance: s.Variance(),
		},
	}
}

func (e *Engine) dispatchStatus() ([]byte, error) {
	all, down, allocated, err := e.Status()
	if err != nil {
		return nil, err
	}
	return marshalResponse(rpc.StatusResponse{All: all, Down: down, Allocated: allocated})
}

func (e *Engine) dispatchFind(payload []byte) ([]byte, error) {
	var req rpc.FindRequest
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	r, err := e.Find(req.Criteria, rset.Format(req.Format), e.graph.GraphDuration.Start, 1)
	if err != nil {
		return nil, err
	}
	return marshalResponse(rpc.FindResponse{R: r})
}

func (e *Engine) dispatchSetProperty(payload []byte) ([]byte, error) {
	var req rpc.PropertyRequest
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	subsystem := e.traverser.Policy().Subsystems()[0]
	if err := e.SetProperty(subsystem, req.Path, req.Key, req.Value); err != nil {
		return nil, err
	}
	return []byte("{}"), nil
}

func (e *Engine) dispatchGetProperty(payload []byte) ([]byte, error) {
	var req rpc.PropertyRequest
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	subsystem := e.traverser.Policy().Subsystems()[0]
	v, err := e.GetProperty(subsystem, req.Path, req.Key)
	if err != nil {
		return nil, err
	}
	return marshalResponse(rpc.PropertyResponse{Values: []string{v}})
}

func (e *Engine) dispatchRemoveProperty(payload []byte) ([]byte, error) {
	var req rpc.PropertyRequest
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	subsystem := e.traverser.Policy().Subsystems()[0]
	if err := e.RemoveProperty(subsystem, req.Path, req.Key); err != nil {
		return nil, err
	}
	return []byte("{}"), nil
}

func (e *Engine) dispatchSetStatus(payload []byte) ([]byte, error) {
	var req rpc.SetStatusRequest
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	subsystem := e.traverser.Policy().Subsystems()[0]
	status := graph.Up
	if req.Status == "down" {
		status = graph.Down
	}
	if _, err := e.SetStatus(subsystem, req.Path, status); err != nil {
		return nil, err
	}
	return []byte("{}"), nil
}

func (e *Engine) dispatchFeasibility(payload []byte) ([]byte, error) {
	var req rpc.FeasibilityCheckRequest
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	var js jobspec.Jobspec
	if err := unmarshalRequest(req.Jobspec, &js); err != nil {
		return nil, err
	}
	if err := e.FeasibilityCheck(&js, e.graph.GraphDuration.Start); err != nil {
		return nil, err
	}
	return []byte("{}"), nil
}
