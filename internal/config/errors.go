package config

import "fmt"

// FieldError 提供字段路径与错误原因，便于 CLI 向用户反馈。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// mirrorField 拼接 Mirror 表下的字段路径，输出 Mirror.Field 形式。
func mirrorField(field string) string {
	return fmt.Sprintf("Mirror.%s", field)
}
