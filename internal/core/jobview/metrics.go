package jobview

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

type HostType string

const (
	HostServer HostType = "server"
	HostClient HostType = "client"
)

// Metric keys shared with the server and client reporters.
const (
	KeyHostType    = "host_type"
	KeyRounds      = "rounds"
	KeyFitStart    = "fit_start"
	KeyFitEnd      = "fit_end"
	KeyInitialized = "initialized"
	KeyShutdown    = "shutdown"

	KeyFitRoundStart  = "fit_round_start"
	KeyFitRoundEnd    = "fit_round_end"
	KeyEvalStart      = "eval_start"
	KeyEvalEnd        = "eval_end"
	KeyEvalRoundStart = "eval_round_start"
	KeyEvalRoundEnd   = "eval_round_end"
	KeyRoundEnd       = "round_end"

	KeyFitElapsedTime       = "fit_elapsed_time"
	KeyFitRoundTimeElapsed  = "fit_round_time_elapsed"
	KeyEvalRoundTimeElapsed = "eval_round_time_elapsed"

	KeyServerRounds = "n_server_rounds"
)

// HostMetrics is the normalized view of the metrics one host reported.
type HostMetrics struct {
	HostType HostType
	// Fields holds every top-level key, known or custom, in document order.
	Fields *Object
	Rounds map[int]*Object
}

// ParseMetrics decodes a raw metrics document. Blank input means the host has
// not reported yet and yields (nil, nil). Malformed JSON, or JSON that is not
// an object, yields a *ParseError.
func ParseMetrics(raw string) (*HostMetrics, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := decode([]byte(raw))
	if err != nil {
		return nil, err
	}
	if v.Kind != KindObject {
		return nil, &ParseError{Err: errors.New("metrics must be a JSON object, got " + v.Kind.String())}
	}

	m := &HostMetrics{
		Fields: v.Object,
		Rounds: make(map[int]*Object),
	}
	if ht, ok := v.Object.Get(KeyHostType); ok && ht.Kind == KindString {
		m.HostType = HostType(ht.Text)
	}
	if rounds, ok := v.Object.Get(KeyRounds); ok && rounds.Kind == KindObject {
		for _, f := range rounds.Object.Fields() {
			// rounds are numbered from 1
			n, err := strconv.Atoi(strings.TrimSpace(f.Key))
			if err != nil || n < 1 {
				continue
			}
			if f.Value.Kind == KindObject {
				m.Rounds[n] = f.Value.Object
			} else {
				m.Rounds[n] = NewObject()
			}
		}
	}
	return m, nil
}

// ParseServerConfig decodes the job's server configuration. Blank input and
// empty objects yield ErrEmptyConfig; anything other than a JSON object
// yields a *ParseError.
func ParseServerConfig(raw string) (*Object, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyConfig
	}
	v, err := decode([]byte(raw))
	if err != nil {
		return nil, err
	}
	if v.Kind != KindObject {
		return nil, &ParseError{Err: errors.New("server configuration must be a JSON object, got " + v.Kind.String())}
	}
	if v.Object.Len() == 0 {
		return nil, ErrEmptyConfig
	}
	return v.Object, nil
}

// TotalRounds reads n_server_rounds from a server configuration. Zero means
// the value is missing or unusable.
func TotalRounds(cfg *Object) int {
	v, ok := cfg.Get(KeyServerRounds)
	if !ok {
		return 0
	}
	n, ok := v.Int()
	if !ok || n < 0 {
		return 0
	}
	return int(n)
}

// RoundNumbers returns the reported round numbers in ascending order.
func (m *HostMetrics) RoundNumbers() []int {
	if m == nil {
		return nil
	}
	nums := make([]int, 0, len(m.Rounds))
	for n := range m.Rounds {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func (m *HostMetrics) Round(n int) *Object {
	if m == nil {
		return nil
	}
	return m.Rounds[n]
}

// Start is fit_start for servers and initialized for clients.
func (m *HostMetrics) Start() *Value {
	if m == nil {
		return nil
	}
	if v := m.Fields.Lookup(KeyFitStart); v != nil {
		return v
	}
	return m.Fields.Lookup(KeyInitialized)
}

// End is fit_end for servers and shutdown for clients; nil while running.
func (m *HostMetrics) End() *Value {
	if m == nil {
		return nil
	}
	if v := m.Fields.Lookup(KeyFitEnd); v != nil {
		return v
	}
	return m.Fields.Lookup(KeyShutdown)
}

// FitWindow returns the fit phase timestamps of a round.
func (m *HostMetrics) FitWindow(n int) (start, end *Value) {
	if m == nil {
		return nil, nil
	}
	r := m.Round(n)
	if m.HostType == HostServer {
		return r.Lookup(KeyFitRoundStart), r.Lookup(KeyFitRoundEnd)
	}
	return r.Lookup(KeyFitStart), r.Lookup(KeyFitEnd)
}

// EvalWindow returns the evaluate phase timestamps of a round.
func (m *HostMetrics) EvalWindow(n int) (start, end *Value) {
	if m == nil {
		return nil, nil
	}
	r := m.Round(n)
	if m.HostType == HostServer {
		return r.Lookup(KeyEvalRoundStart), r.Lookup(KeyEvalRoundEnd)
	}
	return r.Lookup(KeyEvalStart), r.Lookup(KeyEvalEnd)
}
