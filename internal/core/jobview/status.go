package jobview

import "fedwatch.dashboard/internal/core/domain"

type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeveritySuccess   Severity = "success"
	SeverityDanger    Severity = "danger"
	SeveritySecondary Severity = "secondary"
)

// StatusInfo is the presentation metadata of a job status.
type StatusInfo struct {
	Label    string   `json:"label"`
	Severity Severity `json:"severity"`
	Icon     string   `json:"icon"`
}

var statusInfo = map[domain.JobStatus]StatusInfo{
	domain.JobStatusNotStarted:           {Label: "Not Started", Severity: SeverityInfo, Icon: "radio_button_checked"},
	domain.JobStatusInProgress:           {Label: "In Progress", Severity: SeverityWarning, Icon: "sync"},
	domain.JobStatusFinishedSuccessfully: {Label: "Finished Successfully", Severity: SeveritySuccess, Icon: "check_circle"},
	domain.JobStatusFinishedWithError:    {Label: "Finished with Error", Severity: SeverityDanger, Icon: "error"},
}

// Classify maps a status code to its label, severity and icon. Unknown codes
// keep their raw text as the label and get the neutral severity.
func Classify(status string) StatusInfo {
	if info, ok := statusInfo[domain.JobStatus(status)]; ok {
		return info
	}
	return StatusInfo{Label: status, Severity: SeveritySecondary, Icon: ""}
}
