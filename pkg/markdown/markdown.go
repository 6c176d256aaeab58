// Package markdown 负责把模型回复渲染为 HTML 或可朗读的纯文本。
package markdown

import (
	"bytes"
	"html/template"
	"regexp"
	"strings"
	"unicode"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// 未开启 html.WithUnsafe，原始 HTML 会被忽略
var renderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// ToHTML 把 markdown 渲染为可直接嵌入模板的 HTML。
func ToHTML(src string) template.HTML {
	var buf bytes.Buffer
	if err := renderer.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

const keptPunctuation = ".,!?;:'\"()-"

var spaceBeforePunct = regexp.MustCompile(`\s+([.,!?;:])`)

// SpeechText 把 markdown 转为适合语音合成的纯文本：
// 代码块整体丢弃，行内格式保留文字，块级元素之间补充停顿，表情和符号被移除。
func SpeechText(src string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(src))

	var sb strings.Builder
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		switch n := node.(type) {
		case *ast.CodeBlock, *ast.HTMLBlock, *ast.HTMLSpan, *ast.HorizontalRule:
			return ast.SkipChildren
		case *ast.Image:
			return ast.SkipChildren
		case *ast.Text:
			sb.Write(n.Literal)
		case *ast.Code:
			sb.Write(n.Literal)
		case *ast.Softbreak, *ast.Hardbreak:
			sb.WriteByte(' ')
		case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.TableCell:
			if !entering {
				endSentence(&sb)
			}
		}
		return ast.GoToNext
	})

	return clean(sb.String())
}

// endSentence 在块结尾补上句号，保证朗读时有停顿。
func endSentence(sb *strings.Builder) {
	text := strings.TrimRightFunc(sb.String(), unicode.IsSpace)
	if text == "" {
		return
	}
	if !strings.ContainsRune(".!?:;", rune(text[len(text)-1])) {
		sb.WriteByte('.')
	}
	sb.WriteByte(' ')
}

// clean 去除表情与特殊符号并压缩空白。
func clean(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteByte(' ')
		case strings.ContainsRune(keptPunctuation, r):
			sb.WriteRune(r)
		case r == '’':
			sb.WriteByte('\'')
		}
	}
	out := strings.Join(strings.Fields(sb.String()), " ")
	out = spaceBeforePunct.ReplaceAllString(out, "$1")
	return strings.TrimSpace(out)
}
