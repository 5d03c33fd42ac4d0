package booksource

// 四个规则解释器：搜索结果、目录、书籍信息、分类。
// 每个解释器抓取一个页面，按对应分组的字段选择器提取记录；
// 抓取或规则缺失一律降级为空结果

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// 搜索地址中的检索词占位符
const keyPlaceholder = "{{key}}"

// 按ruleSearch解析搜索结果页。searchURL中的{{key}}占位符
// 会先替换为检索词；分类页复用本方法时key传空串即可
func (p *Parser) Search(searchURL string, key string) []Book {
	if p.search == nil {
		return nil
	}

	u := strings.ReplaceAll(searchURL, keyPlaceholder, key)
	html := p.getHTML(u)
	if html == "" {
		return nil
	}
	doc := p.parseHTML(html, u)
	if doc == nil {
		return nil
	}

	var books []Book
	doc.Find(p.search.bookList).Each(func(_ int, item *goquery.Selection) {
		books = append(books, Book{
			Name:     p.search.name.Eval(item),
			Author:   p.search.author.Eval(item),
			Intro:    p.search.intro.Eval(item),
			BookURL:  p.ResolveURL(p.search.bookURL.Eval(item)),
			CoverURL: p.ResolveURL(p.search.coverURL.Eval(item)),
		})
	})
	p.logger.Debug("parse search result", zap.String("url", u), zap.Int("count", len(books)))
	return books
}

// 按ruleToc解析目录页。页面上往往有多个章节列表容器（最新章节、正文等），
// 配置了sectionMarker时优先选择紧前兄弟节点文本等于该标记的容器，
// 没有命中标记时回退到第一个容器
func (p *Parser) Toc(tocURL string) []Chapter {
	if p.toc == nil {
		return nil
	}

	html := p.getHTML(tocURL)
	if html == "" {
		return nil
	}
	doc := p.parseHTML(html, tocURL)
	if doc == nil {
		return nil
	}

	containers := doc.Find(p.toc.chapterList)
	if containers.Length() == 0 {
		p.logger.Debug("no chapter container found",
			zap.String("url", tocURL), zap.String("selector", p.toc.chapterList))
		return nil
	}

	var chosen *goquery.Selection
	if marker := p.toc.sectionMarker; marker != "" {
		containers.EachWithBreak(func(_ int, c *goquery.Selection) bool {
			if strings.TrimSpace(c.Prev().Text()) == marker {
				chosen = c
				return false
			}
			return true
		})
	}
	if chosen == nil {
		chosen = containers.First()
	}

	var chapters []Chapter
	chosen.Find("li").Each(func(_ int, item *goquery.Selection) {
		chapters = append(chapters, Chapter{
			Name: p.toc.chapterName.Eval(item),
			URL:  p.ResolveURL(p.toc.chapterURL.Eval(item)),
		})
	})
	p.logger.Debug("parse toc", zap.String("url", tocURL), zap.Int("count", len(chapters)))
	return chapters
}

// 按ruleBookInfo解析书籍信息页，逐字段提取并去除首尾空白，
// 提取为空的字段不出现在结果里；规则分组缺失时返回空映射
func (p *Parser) BookInfo(infoURL string) map[string]string {
	info := make(map[string]string, len(p.bookInfo))
	if len(p.bookInfo) == 0 {
		return info
	}

	html := p.getHTML(infoURL)
	if html == "" {
		return info
	}
	doc := p.parseHTML(html, infoURL)
	if doc == nil {
		return info
	}

	for field, expr := range p.bookInfo {
		if v := strings.TrimSpace(expr.Eval(doc.Selection)); v != "" {
			info[field] = v
		}
	}
	return info
}

// 按ruleFind解析分类页
func (p *Parser) Find(findURL string) []Category {
	if p.find == nil {
		return nil
	}

	html := p.getHTML(findURL)
	if html == "" {
		return nil
	}
	doc := p.parseHTML(html, findURL)
	if doc == nil {
		return nil
	}

	var categories []Category
	doc.Find(p.find.findList).Each(func(_ int, item *goquery.Selection) {
		categories = append(categories, Category{
			Name: p.find.findName.Eval(item),
			URL:  p.ResolveURL(p.find.findURL.Eval(item)),
		})
	})
	p.logger.Debug("parse find page", zap.String("url", findURL), zap.Int("count", len(categories)))
	return categories
}
