package intake

import "time"

// Recorder receives intake measurements.
type Recorder interface {
	ConversationStarted(flow string)
	AnalysisFinished(mode string, outcome Outcome, took time.Duration)
	FieldsExtracted(fields []string)
	SubmissionFinished(outcome string)
	BusyRejected(operation string)
}

type nopRecorder struct{}

func (nopRecorder) ConversationStarted(string)                      {}
func (nopRecorder) AnalysisFinished(string, Outcome, time.Duration) {}
func (nopRecorder) FieldsExtracted([]string)                        {}
func (nopRecorder) SubmissionFinished(string)                       {}
func (nopRecorder) BusyRejected(string)                             {}
