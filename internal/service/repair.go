package service

import (
	"encoding/json"
	"strings"

	"github.com/botdeck/botdeck-go/internal/model"
)

const maxSuggestedQuestions = 3

// ParseModelOutput 将模型原始输出修复为合法的 ChatTurnResult
// 模型输出是不可靠的文本边界，按以下顺序逐级降级：
//  1. 去掉 markdown 代码围栏后直接解析
//  2. 失败则截取第一个配平的 {...} 片段再解析
//  3. 校验 schema：answer 非空；suggestedQuestions 过滤为 0~3 条、以 "?" 结尾
//  4. answer 自身是 JSON 对象时解开一层，提取内层 answer/suggestedQuestions
//
// 任何一步都无法恢复时，统一替换为机器人配置的兜底话术（保证 schema 始终闭合，
// 两种历史恢复策略中取兜底替换这一种，不混用）。
func ParseModelOutput(raw, fallback string) model.ChatTurnResult {
	cleaned := stripCodeFences(raw)

	obj, ok := tryParseObject(cleaned)
	if !ok {
		obj, ok = tryParseObject(extractJSONSpan(cleaned))
	}
	if !ok {
		return fallbackResult(fallback)
	}

	answer, questions := hoistFields(obj)

	// 双重编码修复：answer 本身又是一个 JSON 对象时解开，最多尝试三层
	for i := 0; i < 3; i++ {
		inner, unwrapped := unwrapNestedAnswer(answer)
		if !unwrapped {
			break
		}
		innerAnswer, innerQuestions := hoistFields(inner)
		if innerAnswer == "" {
			break
		}
		answer = innerAnswer
		if innerQuestions != nil {
			questions = innerQuestions
		}
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return fallbackResult(fallback)
	}

	return model.ChatTurnResult{
		Answer:             answer,
		SuggestedQuestions: sanitizeQuestions(questions),
	}
}

// stripCodeFences 去除 ```json ... ``` 围栏与首尾空白
func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// 围栏后可能跟语言标记，如 ```json
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "" || isFenceLanguage(first) {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// isFenceLanguage 围栏语言标记
func isFenceLanguage(s string) bool {
	switch strings.ToLower(s) {
	case "json", "javascript", "js", "text":
		return true
	}
	return false
}

// tryParseObject 尝试解析为 JSON 对象
func tryParseObject(s string) (map[string]json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// extractJSONSpan 截取第一个括号配平的 {...} 片段（考虑字符串与转义）
func extractJSONSpan(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// hoistFields 从对象中提取 answer 与 suggestedQuestions
// answer 可能是字符串，也可能是模型误嵌套的对象（转回文本交给上层解套）。
func hoistFields(obj map[string]json.RawMessage) (string, []string) {
	var answer string
	if rawAnswer, ok := obj["answer"]; ok {
		if err := json.Unmarshal(rawAnswer, &answer); err != nil {
			// answer 不是字符串，保留原始 JSON 文本
			answer = string(rawAnswer)
		}
	}

	var questions []string
	if rawQuestions, ok := obj["suggestedQuestions"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(rawQuestions, &items); err == nil {
			questions = make([]string, 0, len(items))
			for _, item := range items {
				var q string
				if err := json.Unmarshal(item, &q); err == nil {
					questions = append(questions, q)
				}
			}
		}
	}

	return answer, questions
}

// unwrapNestedAnswer answer 看起来是 JSON 对象时解析一层
func unwrapNestedAnswer(answer string) (map[string]json.RawMessage, bool) {
	trimmed := strings.TrimSpace(answer)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return nil, false
	}
	obj, ok := tryParseObject(trimmed)
	if !ok {
		return nil, false
	}
	if _, hasAnswer := obj["answer"]; !hasAnswer {
		return nil, false
	}
	return obj, true
}

// sanitizeQuestions 过滤推荐问题：非空、以 "?" 结尾、最多 3 条
// 模型略微超产时做截断过滤而不是整体拒绝。
func sanitizeQuestions(questions []string) []string {
	result := make([]string, 0, maxSuggestedQuestions)
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if !strings.HasSuffix(q, "?") && !strings.HasSuffix(q, "？") {
			continue
		}
		result = append(result, q)
		if len(result) == maxSuggestedQuestions {
			break
		}
	}
	return result
}

// fallbackResult 兜底结果（schema 恒闭合）
func fallbackResult(fallback string) model.ChatTurnResult {
	return model.ChatTurnResult{
		Answer:             fallback,
		SuggestedQuestions: []string{},
	}
}
