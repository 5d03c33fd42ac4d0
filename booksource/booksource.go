package booksource

// 通用书源解析引擎：依据一套书源规则，从目标站点的页面中提取
// 分类、书籍列表、目录与章节正文。除只读的规则与站点配置外不持有
// 任何跨调用状态，并发的独立调用天然安全

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dszqbsm/booksource/fetch"
	"github.com/dszqbsm/booksource/rule"
	"github.com/dszqbsm/booksource/selector"
	"go.uber.org/zap"
)

// 搜索结果中的一本书
type Book struct {
	Name     string `json:"name"`
	Author   string `json:"author"`
	Intro    string `json:"intro"`
	BookURL  string `json:"book_url"`
	CoverURL string `json:"cover_url"`
}

// 目录中的一个章节
type Chapter struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// 分类页中的一个分类
type Category struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// 一个章节的正文，多页时已拼接完成
type Content struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// 编译后的各分组规则，选择器表达式在构造时解析一次
type searchRule struct {
	bookList string
	name     *selector.Expr
	author   *selector.Expr
	intro    *selector.Expr
	bookURL  *selector.Expr
	coverURL *selector.Expr
}

type tocRule struct {
	chapterList   string
	chapterName   *selector.Expr
	chapterURL    *selector.Expr
	sectionMarker string
}

type contentRule struct {
	content *selector.Expr
	title   *selector.Expr
	next    *selector.Expr
	replace *regexp.Regexp
}

type findRule struct {
	findList string
	findName *selector.Expr
	findURL  *selector.Expr
}

// 书源解析器。规则集与站点地址在构造时固定，之后只读
type Parser struct {
	options

	search   *searchRule
	toc      *tocRule
	content  *contentRule
	bookInfo map[string]*selector.Expr
	find     *findRule
}

type options struct {
	siteURL string
	fetcher fetch.Fetcher
	logger  *zap.Logger
}

var defaultOptions = options{
	logger: zap.NewNop(),
}

type Option func(opts *options)

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// 配置站点根地址，用于相对地址补全
func WithSiteURL(siteURL string) Option {
	return func(opts *options) {
		opts.siteURL = siteURL
	}
}

func WithFetcher(f fetch.Fetcher) Option {
	return func(opts *options) {
		opts.fetcher = f
	}
}

// 依据规则集创建解析器，选择器表达式在此一次性编译；
// set为nil时使用内置默认规则
func New(set *rule.Set, opts ...Option) (*Parser, error) {
	option := defaultOptions
	for _, opt := range opts {
		opt(&option)
	}

	if set == nil {
		set = rule.Default()
	}

	p := &Parser{options: option}
	if p.fetcher == nil {
		p.fetcher = &fetch.BrowserFetch{
			Timeout: 10 * time.Second,
			Logger:  p.logger,
			SiteURL: p.siteURL,
		}
	}

	if err := p.compile(set); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) compile(set *rule.Set) error {
	var err error

	if r := set.Search; r != nil {
		s := &searchRule{bookList: r.BookList}
		if s.name, err = selector.Parse(r.Name); err != nil {
			return fmt.Errorf("ruleSearch.name: %w", err)
		}
		if s.author, err = selector.Parse(r.Author); err != nil {
			return fmt.Errorf("ruleSearch.author: %w", err)
		}
		if s.intro, err = selector.Parse(r.Intro); err != nil {
			return fmt.Errorf("ruleSearch.intro: %w", err)
		}
		if s.bookURL, err = selector.Parse(r.BookURL); err != nil {
			return fmt.Errorf("ruleSearch.bookUrl: %w", err)
		}
		if s.coverURL, err = selector.Parse(r.CoverURL); err != nil {
			return fmt.Errorf("ruleSearch.coverUrl: %w", err)
		}
		p.search = s
	}

	if r := set.Toc; r != nil {
		t := &tocRule{
			chapterList:   withDefault(r.ChapterList, "ul.chapter"),
			sectionMarker: r.SectionMarker,
		}
		if t.chapterName, err = selector.Parse(withDefault(r.ChapterName, "a@text")); err != nil {
			return fmt.Errorf("ruleToc.chapterName: %w", err)
		}
		if t.chapterURL, err = selector.Parse(withDefault(r.ChapterURL, "a@href")); err != nil {
			return fmt.Errorf("ruleToc.chapterUrl: %w", err)
		}
		p.toc = t
	}

	if r := set.Content; r != nil {
		c := &contentRule{}
		if c.content, err = selector.Parse(r.Content); err != nil {
			return fmt.Errorf("ruleContent.content: %w", err)
		}
		if c.title, err = selector.Parse(r.Title); err != nil {
			return fmt.Errorf("ruleContent.title: %w", err)
		}
		if c.next, err = selector.Parse(r.NextContentURL); err != nil {
			return fmt.Errorf("ruleContent.nextContentUrl: %w", err)
		}
		// 书源惯例将正文清洗规则写成"##正则"，语义同选择器的##剔除；
		// 这里容忍前缀存在与否，只编译正则部分
		if r.ReplaceRegex != "" {
			raw := strings.TrimPrefix(r.ReplaceRegex, "##")
			if c.replace, err = regexp.Compile(raw); err != nil {
				return fmt.Errorf("ruleContent.replaceRegex: %w", err)
			}
		}
		p.content = c
	}

	if len(set.BookInfo) > 0 {
		p.bookInfo = make(map[string]*selector.Expr, len(set.BookInfo))
		for field, expr := range set.BookInfo {
			compiled, err := selector.Parse(expr)
			if err != nil {
				return fmt.Errorf("ruleBookInfo.%s: %w", field, err)
			}
			p.bookInfo[field] = compiled
		}
	}

	if r := set.Find; r != nil {
		f := &findRule{findList: r.FindList}
		if f.findName, err = selector.Parse(r.FindName); err != nil {
			return fmt.Errorf("ruleFind.findName: %w", err)
		}
		if f.findURL, err = selector.Parse(r.FindURL); err != nil {
			return fmt.Errorf("ruleFind.findUrl: %w", err)
		}
		p.find = f
	}

	return nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// 抓取一个页面并返回utf-8文本，任何失败都降级为空字符串，不上抛
func (p *Parser) getHTML(u string) string {
	body, err := p.fetcher.Get(&fetch.Request{URL: u})
	if err != nil {
		p.logger.Warn("fetch page failed", zap.String("url", u), zap.Error(err))
		return ""
	}
	return string(body)
}

// 将页面文本解析为文档，失败时返回nil
func (p *Parser) parseHTML(html string, u string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		p.logger.Warn("parse html failed", zap.String("url", u), zap.Error(err))
		return nil
	}
	return doc
}

// 将相对地址补全为绝对地址。简化拼接：不处理..相对路径、
// 仅查询串的跳转和协议相对地址，已是http开头的地址原样返回
func (p *Parser) ResolveURL(u string) string {
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "http") {
		return u
	}
	return strings.TrimRight(p.siteURL, "/") + "/" + strings.TrimLeft(u, "/")
}
