// Package domain 包含加密货币行情服务的领域模型、值对象、领域错误与仓储接口
package domain

// ResultStatus 结果状态
type ResultStatus string

const (
	StatusSuccess           ResultStatus = "SUCCESS"
	StatusError             ResultStatus = "ERROR"
	StatusInformationNeeded ResultStatus = "INFORMATION_NEEDED"
)

// Resulter 所有结果类型共享的能力，调用方据此区分成功结果与错误结果
type Resulter interface {
	ResultStatus() ResultStatus
	IsError() bool
}

// Result 基础结果，被各类具体结果以组合方式嵌入
type Result struct {
	Status       ResultStatus `json:"status,omitempty"`
	Token        string       `json:"token,omitempty"`
	ShortMessage string       `json:"shortMessage,omitempty"`
	LongMessages []string     `json:"longMessages,omitempty"`
}

// ResultStatus 返回结果状态
func (r Result) ResultStatus() ResultStatus {
	return r.Status
}

// IsError 是否为错误结果
func (r Result) IsError() bool {
	return r.Status == StatusError
}

func (r Result) clone() Result {
	out := r
	if r.LongMessages != nil {
		out.LongMessages = append([]string(nil), r.LongMessages...)
	}
	return out
}

func (r Result) equal(o Result) bool {
	if r.Status != o.Status || r.Token != o.Token || r.ShortMessage != o.ShortMessage {
		return false
	}
	if len(r.LongMessages) != len(o.LongMessages) {
		return false
	}
	for i := range r.LongMessages {
		if r.LongMessages[i] != o.LongMessages[i] {
			return false
		}
	}
	return true
}

// ErrorCode 错误结果代码
type ErrorCode int

const (
	CodeSystemError   ErrorCode = 100
	CodeParamsError   ErrorCode = 300
	CodeQuoteNotFound ErrorCode = 400
	CodeRateLimited   ErrorCode = 500
)

// ErrorResult 错误结果，对外接口在失败时返回
type ErrorResult struct {
	Result
	Code ErrorCode `json:"code"`
}

// NewErrorResult 创建错误结果
func NewErrorResult(code ErrorCode, shortMessage string, longMessages ...string) *ErrorResult {
	return &ErrorResult{
		Result: Result{
			Status:       StatusError,
			ShortMessage: shortMessage,
			LongMessages: longMessages,
		},
		Code: code,
	}
}

// Error 实现 error 接口
func (e *ErrorResult) Error() string {
	return e.ShortMessage
}

var (
	_ Resulter = Result{}
	_ Resulter = (*ErrorResult)(nil)
	_ Resulter = CryptoQuoteResult{}
)
