package build

import "time"

// MaxTimeoutMinutes is the largest accepted timeout-minutes value (24 hours).
const MaxTimeoutMinutes = 1440

// TimeoutResolver 超时解析器
type TimeoutResolver struct {
	defaultStepTimeout int // 默认 Step 超时 (分钟), 0 表示不限制
}

// NewTimeoutResolver 创建超时解析器
func NewTimeoutResolver(defaultStepMinutes int) *TimeoutResolver {
	return &TimeoutResolver{defaultStepTimeout: defaultStepMinutes}
}

// ResolveStepTimeout 解析 Step 超时时间
// 优先级: Step.TimeoutMinutes > 默认值
func (r *TimeoutResolver) ResolveStepTimeout(step *StepDefinition) time.Duration {
	minutes := r.defaultStepTimeout
	if step.TimeoutMinutes > 0 {
		minutes = step.TimeoutMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// ValidateTimeout 验证超时配置
func (r *TimeoutResolver) ValidateTimeout(timeoutMinutes int, fieldName string) error {
	if timeoutMinutes < 0 {
		return configErrorf(fieldName, "timeout cannot be negative")
	}
	if timeoutMinutes > MaxTimeoutMinutes {
		return configErrorf(fieldName, "timeout cannot exceed %d minutes (24 hours)", MaxTimeoutMinutes)
	}
	return nil
}
