package vo

// JobStatus 作业状态
type JobStatus string

const (
	// JobStatusPending 待处理
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing 处理中
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted 已完成
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed 失败
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled 已取消
	JobStatusCancelled JobStatus = "cancelled"
)

// ParseJobStatus 解析状态字符串
func ParseJobStatus(s string) (JobStatus, bool) {
	st := JobStatus(s)
	return st, st.IsValid()
}

// IsValid 检查状态是否有效
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// String 返回状态字符串
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal 检查是否为最终状态
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransitionTo 检查是否可以转换到目标状态.
// pending -> failed covers jobs that could not be scheduled at all.
func (s JobStatus) CanTransitionTo(target JobStatus) bool {
	switch s {
	case JobStatusPending:
		return target == JobStatusProcessing || target == JobStatusCancelled || target == JobStatusFailed
	case JobStatusProcessing:
		return target == JobStatusCompleted || target == JobStatusFailed || target == JobStatusCancelled
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return false // 最终状态不能转换
	default:
		return false
	}
}
