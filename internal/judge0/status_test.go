package judge0

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusDescription(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusInQueue, "In Queue"},
		{StatusProcessing, "Processing"},
		{StatusAccepted, "Accepted"},
		{StatusWrongAnswer, "Wrong Answer"},
		{StatusTimeLimitExceeded, "Time Limit Exceeded"},
		{StatusCompilationError, "Compilation Error"},
		{StatusRuntimeErrorSIGSEGV, "Runtime Error (SIGSEGV)"},
		{StatusRuntimeErrorNZEC, "Runtime Error (NZEC)"},
		{StatusInternalError, "Internal Error"},
		{StatusExecFormatError, "Exec Format Error"},
		{Status(99), "Unknown Status (99)"},
		{Status(0), "Unknown Status (0)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.Description())
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusInQueue.Terminal())
	assert.False(t, StatusProcessing.Terminal())

	for s := StatusAccepted; s <= StatusExecFormatError; s++ {
		assert.True(t, s.Terminal(), "status %d should be terminal", s)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, VerdictPending, Classify(StatusInQueue))
	assert.Equal(t, VerdictProcessing, Classify(StatusProcessing))
	assert.Equal(t, VerdictAccepted, Classify(StatusAccepted))
	assert.Equal(t, VerdictWrongAnswer, Classify(StatusWrongAnswer))

	for s := StatusTimeLimitExceeded; s <= StatusExecFormatError; s++ {
		assert.Equal(t, VerdictDiagnosticFailure, Classify(s), "status %d", s)
	}
}
