package model

import "fmt"

// FieldKind 机器人配置字段类型（封闭枚举）
// 每新增一种字段必须同时在 fieldprompt 的模板映射中补全，
// 否则 switch 缺分支会在评审时直接暴露，而不是运行期静默失配。
type FieldKind int

const (
	FieldPersona FieldKind = iota
	FieldMission
	FieldFallback
	FieldBusinessName
)

// String 返回字段的对外名称
func (k FieldKind) String() string {
	switch k {
	case FieldPersona:
		return "persona"
	case FieldMission:
		return "mission"
	case FieldFallback:
		return "fallback"
	case FieldBusinessName:
		return "businessName"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// ParseFieldKind 解析对外字段名，未知名称返回错误
func ParseFieldKind(name string) (FieldKind, error) {
	switch name {
	case "persona":
		return FieldPersona, nil
	case "mission":
		return FieldMission, nil
	case "fallback":
		return FieldFallback, nil
	case "businessName":
		return FieldBusinessName, nil
	default:
		return 0, fmt.Errorf("未知的字段类型: %s", name)
	}
}
