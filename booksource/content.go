package booksource

// 章节正文装配：按ruleContent抓取章节页并提取正文，
// 配置了nextContentUrl时自动跟随下一页拼接，标题以第一页为准

import (
	"strings"

	"go.uber.org/zap"
)

// 单次装配最多抓取的页数，用于兜住循环的下一页链接
const maxContentPages = 3

// 按ruleContent解析章节正文。从chapterURL开始逐页抓取，
// 正文片段依次追加；某一页抓取失败时提前结束，返回已积累的内容。
// 全部页面处理完后按replaceRegex做一次全局剔除
func (p *Parser) Content(chapterURL string) Content {
	if p.content == nil {
		return Content{}
	}

	var content strings.Builder
	var title string
	u := chapterURL

	for page := 0; u != "" && page < maxContentPages; page++ {
		html := p.getHTML(u)
		if html == "" {
			break
		}
		doc := p.parseHTML(html, u)
		if doc == nil {
			break
		}

		if part := p.content.content.Eval(doc.Selection); part != "" {
			content.WriteString(part)
		}
		// 标题只取第一个提取成功的页面，后续页面不再覆盖
		if title == "" {
			title = p.content.title.Eval(doc.Selection)
		}

		next := p.content.next.Eval(doc.Selection)
		u = p.ResolveURL(next)
	}

	text := content.String()
	if p.content.replace != nil {
		text = p.content.replace.ReplaceAllString(text, "")
	}

	result := Content{Title: title, Content: strings.TrimSpace(text)}
	p.logger.Debug("assemble content",
		zap.String("url", chapterURL),
		zap.String("title", result.Title),
		zap.Int("length", len(result.Content)))
	return result
}
