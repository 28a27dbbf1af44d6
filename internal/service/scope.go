package service

import (
	"regexp"
	"strings"
	"unicode"
)

// 固定的寒暄类匹配模式，整条消息锚定匹配（小写、去首尾空白后）
// 允许结尾跟少量标点。
var outOfScopePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(hi|hello|hey|yo|howdy|good (morning|afternoon|evening)|你好|您好|在吗)[\s!,.。！？?]*$`),
	regexp.MustCompile(`^(thanks|thank you|thx|ty|cheers|谢谢|多谢|感谢)[\s!,.。！]*$`),
	regexp.MustCompile(`^(bye|goodbye|good night|see you|see ya|cya|再见|拜拜)[\s!,.。！]*$`),
	regexp.MustCompile(`^(ok|okay|sure|fine|cool|nice|great|yes|yep|yeah|no|nope|nah|maybe|好的|好|嗯|行|不用)[\s!,.。！]*$`),
}

// IsObviouslyOutOfScope 判断是否为明显无需调模型的寒暄消息
// 仅在检索不到任何知识上下文时使用；命中后直接返回机器人配置的兜底话术。
func IsObviouslyOutOfScope(message string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(message))
	if len([]rune(trimmed)) < 3 {
		return true
	}
	if !containsLetter(trimmed) {
		return true
	}

	for _, p := range outOfScopePatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// containsLetter 是否包含至少一个字母
func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
