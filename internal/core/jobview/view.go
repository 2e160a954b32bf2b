package jobview

import (
	"fedwatch.dashboard/internal/core/domain"
)

const (
	MsgMetricsParseError = "Error parsing metrics."
	MsgConfigParseError  = "Error parsing server configuration."
)

type RoundView struct {
	Number      int     `json:"number"`
	Completed   bool    `json:"completed"`
	FitElapsed  string  `json:"fit_elapsed,omitempty"`
	EvalElapsed string  `json:"eval_elapsed,omitempty"`
	Properties  []Entry `json:"properties,omitempty"`
}

// HostView is everything the dashboard shows for one server or client.
type HostView struct {
	HostType   HostType    `json:"host_type,omitempty"`
	Progress   *Progress   `json:"progress,omitempty"`
	Elapsed    string      `json:"elapsed,omitempty"`
	Running    bool        `json:"running"`
	Properties []Entry     `json:"properties,omitempty"`
	Rounds     []RoundView `json:"rounds,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// BuildHostView renders a host's raw metrics. It returns nil when the host
// has not reported anything yet; malformed metrics produce a view carrying
// only an error message. Hosts of a finished job never count as running,
// even without an end marker.
func BuildHostView(raw string, totalRounds int, declared domain.JobStatus, role HostType, clock Clock) *HostView {
	m, err := ParseMetrics(raw)
	if err != nil {
		return &HostView{Error: MsgMetricsParseError}
	}
	if m == nil {
		return nil
	}

	v := &HostView{
		HostType:   m.HostType,
		Progress:   ComputeProgress(m, totalRounds, declared, role),
		Running:    m.End() == nil && !declared.IsTerminal(),
		Properties: RenderableEntries(m.Fields, KnownKeys),
	}
	if elapsed, ok := phaseElapsed(m.Start(), m.End(), v.Running, clock); ok {
		v.Elapsed = elapsed
	}

	endKey, _ := endRoundKey(m.HostType)
	for _, n := range m.RoundNumbers() {
		round := m.Round(n)
		rv := RoundView{
			Number:     n,
			Completed:  endKey != "" && round.Has(endKey),
			Properties: RenderableEntries(round, KnownKeys),
		}
		fitStart, fitEnd := m.FitWindow(n)
		if s, ok := phaseElapsed(fitStart, fitEnd, v.Running, clock); ok {
			rv.FitElapsed = s
		}
		evalStart, evalEnd := m.EvalWindow(n)
		if s, ok := phaseElapsed(evalStart, evalEnd, v.Running, clock); ok {
			rv.EvalElapsed = s
		}
		v.Rounds = append(v.Rounds, rv)
	}
	return v
}

// phaseElapsed only measures an unfinished phase against the clock while the
// host is still running.
func phaseElapsed(start, end *Value, running bool, clock Clock) (string, bool) {
	if end == nil && !running {
		return "", false
	}
	return Elapsed(start, end, clock)
}
