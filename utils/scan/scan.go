// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scan 分割 SDP fmtp 参数、配置列表这类带分隔符的短字串。
package scan

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

func trimQuote(r rune) bool {
	return unicode.IsSpace(r) || r == '"'
}

// 扫描器
var (
	// Comma 逗号分割，如 sprop-parameter-sets
	Comma = NewScanner(',', unicode.IsSpace)
	// Semicolon 分号分割，如 fmtp 参数列表
	Semicolon = NewScanner(';', unicode.IsSpace)

	// EqualPair 扫描 K=V 形式的 Pair
	EqualPair = NewPair('=', trimQuote)
	// ColonPair 扫描 K:V 形式的 Pair
	ColonPair = NewPair(':', trimQuote)
)

// Scanner 按分隔符逐个取出 token
type Scanner struct {
	delim    rune
	delimLen int
	trimFunc func(r rune) bool
}

// NewScanner 创建扫描器，trimFunc 为 nil 时不修剪
func NewScanner(delim rune, trimFunc func(r rune) bool) Scanner {
	if trimFunc == nil {
		trimFunc = func(r rune) bool { return false }
	}
	return Scanner{
		delim:    delim,
		delimLen: utf8.RuneLen(delim),
		trimFunc: trimFunc,
	}
}

// Scan 取出第一个 token，continueScan 为 false 表示 token 是最后一个
func (s Scanner) Scan(str string) (advance, token string, continueScan bool) {
	i := strings.IndexRune(str, s.delim)
	if i < 0 {
		return "", strings.TrimFunc(str, s.trimFunc), false
	}

	return strings.TrimFunc(str[i+s.delimLen:], s.trimFunc), strings.TrimFunc(str[:i], s.trimFunc), true
}

// Each 依次对每个非空 token 调用 fn，fn 返回 false 时停止
func (s Scanner) Each(str string, fn func(token string) bool) {
	for advance, continueScan := str, true; continueScan; {
		var token string
		advance, token, continueScan = s.Scan(advance)
		if token == "" {
			continue
		}
		if !fn(token) {
			return
		}
	}
}

// Pair 从字串扫描 Key Value
type Pair struct {
	delim    rune
	delimLen int
	trimFunc func(r rune) bool
}

// NewPair 新建 Pair 扫描器
func NewPair(delim rune, trimFunc func(r rune) bool) Pair {
	if trimFunc == nil {
		trimFunc = func(r rune) bool { return false }
	}
	return Pair{
		delim:    delim,
		delimLen: utf8.RuneLen(delim),
		trimFunc: trimFunc,
	}
}

// Scan 提取 K V，没有分隔符时 found 为 false
func (p Pair) Scan(s string) (key, value string, found bool) {
	i := strings.IndexRune(s, p.delim)
	if i < 0 {
		return s, "", false
	}

	return strings.TrimFunc(s[:i], p.trimFunc),
		strings.TrimFunc(s[i+p.delimLen:], p.trimFunc), true
}

// Lookup 在 scanner 分割的 K V 列表中查找 key，忽略大小写
func (p Pair) Lookup(s Scanner, str, key string) (value string, found bool) {
	s.Each(str, func(token string) bool {
		k, v, ok := p.Scan(token)
		if ok && strings.EqualFold(k, key) {
			value, found = v, true
			return false
		}
		return true
	})
	return
}
