package jobview

import (
	"strconv"

	"fedwatch.dashboard/internal/core/domain"
	"fedwatch.dashboard/internal/core/logger"
)

// Progress is the derived round progress of one host.
type Progress struct {
	Percent            float64          `json:"percent"`
	WidthToken         string           `json:"width"`
	Disabled           bool             `json:"disabled"`
	LastCompletedRound int              `json:"last_completed_round"`
	EffectiveStatus    domain.JobStatus `json:"status"`
}

// endRoundKey is the round key whose presence marks a round as completed.
func endRoundKey(h HostType) (string, bool) {
	switch h {
	case HostServer:
		return KeyEvalRoundEnd, true
	case HostClient:
		return KeyRoundEnd, true
	}
	return "", false
}

// ComputeProgress derives the completion percentage of a host from its rounds.
// It returns nil when there is nothing to show: no metrics, no expected round
// count, or an unsupported host type.
func ComputeProgress(m *HostMetrics, totalRounds int, declared domain.JobStatus, role HostType) *Progress {
	if m == nil || totalRounds <= 0 {
		return nil
	}
	key, ok := endRoundKey(m.HostType)
	if !ok {
		logger.Warn("Unsupported host type in metrics", "host_type", string(m.HostType))
		return nil
	}

	completed := 0
	if nums := m.RoundNumbers(); len(nums) > 0 {
		last := nums[len(nums)-1]
		if m.Round(last).Has(key) {
			completed = last
		} else {
			completed = last - 1
		}
	}

	p := &Progress{
		Percent:            100 * float64(completed) / float64(totalRounds),
		LastCompletedRound: completed,
		EffectiveStatus:    declared,
	}
	if p.Percent == 0 {
		p.WidthToken = "100%"
		p.Disabled = true
	} else {
		p.WidthToken = strconv.FormatFloat(p.Percent, 'f', -1, 64) + "%"
	}

	if role == HostClient && !declared.IsTerminal() {
		if p.Percent == 100 {
			p.EffectiveStatus = domain.JobStatusFinishedSuccessfully
		} else {
			p.EffectiveStatus = domain.JobStatusInProgress
		}
	}
	return p
}
