package service

import (
	"strings"
	"unicode"
)

const (
	// 长度达到该值才参与符号密度判定，太短的消息密度没有统计意义
	meaningfulLength = 8
	// 符号占比上限
	maxSymbolRatio = 0.6
	// 字母数字占比下限
	minAlnumRatio = 0.3
	// 同一字符连续出现次数上限
	maxRepeatRun = 6
	// 单个无空格长串参与键盘乱敲判定的最小长度
	mashMinLength = 12
	// 长串中元音占比下限，低于该值视为乱敲
	mashMinVowelRatio = 0.25
)

// IsGibberish 判断消息是否为无意义输入（纯函数，结果确定）
// 命中任一条件即拒绝：
//  1. 有效长度内符号密度超过 60%
//  2. 字母数字占比低于 30%
//  3. 同一字符连续出现 6 次及以上
//  4. 不存在 2 个以上连续字母
//  5. 无空格长串元音占比过低（键盘乱敲，如 "asdkjaskjdhaksjdh"）
func IsGibberish(message string) bool {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return true
	}

	runes := []rune(trimmed)
	total := len(runes)

	var symbols, alnums int
	for _, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			alnums++
		case unicode.IsSpace(r):
			// 空白不计入符号
		default:
			symbols++
		}
	}

	if total >= meaningfulLength && float64(symbols)/float64(total) > maxSymbolRatio {
		return true
	}
	if float64(alnums)/float64(total) < minAlnumRatio {
		return true
	}
	if hasLongRepeat(runes, maxRepeatRun) {
		return true
	}
	if !hasLetterRun(runes, 2) {
		return true
	}
	if isKeyboardMash(trimmed) {
		return true
	}

	return false
}

// hasLongRepeat 是否存在连续 n 次的同一字符
func hasLongRepeat(runes []rune, n int) bool {
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// hasLetterRun 是否存在连续 n 个字母
func hasLetterRun(runes []rune, n int) bool {
	run := 0
	for _, r := range runes {
		if unicode.IsLetter(r) {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// isKeyboardMash 检测拉丁字母长串是否像随手乱敲
// 仅针对无空格、全拉丁字母且足够长的串做元音占比判定，
// 正常英文单词元音占比在 0.3 以上。
func isKeyboardMash(s string) bool {
	for _, field := range strings.Fields(s) {
		runes := []rune(field)
		if len(runes) < mashMinLength {
			continue
		}

		latin := 0
		vowels := 0
		for _, r := range runes {
			lower := unicode.ToLower(r)
			if lower < 'a' || lower > 'z' {
				latin = 0
				break
			}
			latin++
			switch lower {
			case 'a', 'e', 'i', 'o', 'u', 'y':
				vowels++
			}
		}

		if latin >= mashMinLength && float64(vowels)/float64(latin) < mashMinVowelRatio {
			return true
		}
	}
	return false
}
