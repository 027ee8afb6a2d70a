package judge0

import "fmt"

// Status 判题引擎返回的数字状态码
type Status int

const (
	StatusInQueue             Status = 1
	StatusProcessing          Status = 2
	StatusAccepted            Status = 3
	StatusWrongAnswer         Status = 4
	StatusTimeLimitExceeded   Status = 5
	StatusCompilationError    Status = 6
	StatusRuntimeErrorSIGSEGV Status = 7
	StatusRuntimeErrorSIGXFSZ Status = 8
	StatusRuntimeErrorSIGFPE  Status = 9
	StatusRuntimeErrorSIGABRT Status = 10
	StatusRuntimeErrorNZEC    Status = 11
	StatusRuntimeErrorOther   Status = 12
	StatusInternalError       Status = 13
	StatusExecFormatError     Status = 14
)

// statusDescriptions 状态码对应的可读文案。文案会持久化到判题记录并返回给前端，
// 不可随意改动；新增引擎状态码时只需在此追加。
var statusDescriptions = map[Status]string{
	StatusInQueue:             "In Queue",
	StatusProcessing:          "Processing",
	StatusAccepted:            "Accepted",
	StatusWrongAnswer:         "Wrong Answer",
	StatusTimeLimitExceeded:   "Time Limit Exceeded",
	StatusCompilationError:    "Compilation Error",
	StatusRuntimeErrorSIGSEGV: "Runtime Error (SIGSEGV)",
	StatusRuntimeErrorSIGXFSZ: "Runtime Error (SIGXFSZ)",
	StatusRuntimeErrorSIGFPE:  "Runtime Error (SIGFPE)",
	StatusRuntimeErrorSIGABRT: "Runtime Error (SIGABRT)",
	StatusRuntimeErrorNZEC:    "Runtime Error (NZEC)",
	StatusRuntimeErrorOther:   "Runtime Error (Other)",
	StatusInternalError:       "Internal Error",
	StatusExecFormatError:     "Exec Format Error",
}

func (s Status) Description() string {
	if d, ok := statusDescriptions[s]; ok {
		return d
	}
	return fmt.Sprintf("Unknown Status (%d)", int(s))
}

// Terminal 判断是否为终态（轮询的停止条件）
func (s Status) Terminal() bool {
	return s != StatusInQueue && s != StatusProcessing
}

// Verdict 状态码的分类结果
type Verdict int

const (
	VerdictPending Verdict = iota
	VerdictProcessing
	VerdictAccepted
	VerdictWrongAnswer
	VerdictDiagnosticFailure
)

// Classify 按区间划分状态码：{1}排队 {2}执行中 {3}通过 {4}答案错误
// {5..14}诊断性失败（超时/编译错误/运行时错误/内部错误/格式错误）
func Classify(s Status) Verdict {
	switch {
	case s == StatusInQueue:
		return VerdictPending
	case s == StatusProcessing:
		return VerdictProcessing
	case s == StatusAccepted:
		return VerdictAccepted
	case s == StatusWrongAnswer:
		return VerdictWrongAnswer
	default:
		return VerdictDiagnosticFailure
	}
}
