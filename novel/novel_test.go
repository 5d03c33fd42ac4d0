package novel

import (
	"errors"
	"testing"

	"github.com/dszqbsm/booksource/booksource"
	"github.com/dszqbsm/booksource/fetch"
	"github.com/dszqbsm/booksource/rule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	pages map[string]string
}

func (f *stubFetcher) Get(req *fetch.Request) ([]byte, error) {
	body, ok := f.pages[req.URL]
	if !ok {
		return nil, errors.New("page not found")
	}
	return []byte(body), nil
}

// 一个最小的书源站点：分类页→分类下唯一一本书→目录→两页正文
var sitePages = map[string]string{
	"http://s.com/fenlei.html": `<html><body><div class="content">
		<li><a href="/sort/1">玄幻</a></li>
	</div></body></html>`,
	"http://s.com/sort/1": `<html><body>
		<div class="item"><h2>测试之书</h2><span class="author">/某人/</span><a href="/book/1">详情</a></div>
	</body></html>`,
	"http://s.com/book/1": `<html><body>
		<div class="latest">最新章节</div>
		<ul class="chapter"><li><a href="/c/99">第九十九章 结尾</a></li></ul>
		<div class="intro">正文</div>
		<ul class="chapter">
			<li><a href="/c/0">序章</a></li>
			<li><a href="/c/1">第一章 开端</a></li>
		</ul>
	</body></html>`,
	"http://s.com/c/1": `<html><body><h1>第一章 开端</h1>
		<div id="nr">故事从这里开始。</div>
		<a id="next" href="/c/1_2">下一页</a></body></html>`,
	"http://s.com/c/1_2": `<html><body>
		<div id="nr">然后继续。</div></body></html>`,
}

func siteRules() *rule.Set {
	return &rule.Set{
		Search: &rule.SearchRule{
			BookList: ".item",
			Name:     "h2@text",
			Author:   ".author@text",
			BookURL:  "a@href",
		},
		Toc: &rule.TocRule{SectionMarker: "正文"},
		Content: &rule.ContentRule{
			Content:        "#nr@text",
			Title:          "h1@text",
			NextContentURL: "#next@href",
		},
		Find: &rule.FindRule{
			FindList: ".content li",
			FindName: "a@text",
			FindURL:  "a@href",
		},
	}
}

func newTestService(t *testing.T, pages map[string]string) *Service {
	t.Helper()
	parser, err := booksource.New(siteRules(),
		booksource.WithSiteURL("http://s.com"),
		booksource.WithFetcher(&stubFetcher{pages: pages}),
	)
	require.NoError(t, err)
	return New(parser, "http://s.com/fenlei.html", nil)
}

// 完整编排：分类→书→第一章→两页正文拼接
func TestRandomChapter(t *testing.T) {
	s := newTestService(t, sitePages)

	res := s.RandomChapter()
	require.NotNil(t, res)
	assert.Equal(t, "测试之书", res.BookName)
	// 作者字段两侧的分隔斜杠被去掉
	assert.Equal(t, "某人", res.Author)
	// 目录里优先选名字匹配"第一章"的章节而非第一项
	assert.Equal(t, "第一章 开端", res.Title)
	assert.Equal(t, "故事从这里开始。然后继续。", res.Text)
}

// 任何一步拿不到数据都以nil收场，而不是报错
func TestRandomChapterNoResult(t *testing.T) {
	t.Run("find page missing", func(t *testing.T) {
		s := newTestService(t, map[string]string{})
		assert.Nil(t, s.RandomChapter())
	})

	t.Run("category page missing", func(t *testing.T) {
		pages := map[string]string{
			"http://s.com/fenlei.html": sitePages["http://s.com/fenlei.html"],
		}
		s := newTestService(t, pages)
		assert.Nil(t, s.RandomChapter())
	})

	t.Run("toc missing", func(t *testing.T) {
		pages := map[string]string{
			"http://s.com/fenlei.html": sitePages["http://s.com/fenlei.html"],
			"http://s.com/sort/1":      sitePages["http://s.com/sort/1"],
		}
		s := newTestService(t, pages)
		assert.Nil(t, s.RandomChapter())
	})

	t.Run("content missing", func(t *testing.T) {
		pages := map[string]string{
			"http://s.com/fenlei.html": sitePages["http://s.com/fenlei.html"],
			"http://s.com/sort/1":      sitePages["http://s.com/sort/1"],
			"http://s.com/book/1":      sitePages["http://s.com/book/1"],
		}
		s := newTestService(t, pages)
		assert.Nil(t, s.RandomChapter())
	})
}

// 目录里没有"第一章"式的章节名时取第一项
func TestFirstChapterFallback(t *testing.T) {
	pages := map[string]string{}
	for k, v := range sitePages {
		pages[k] = v
	}
	pages["http://s.com/book/1"] = `<html><body>
		<ul class="chapter">
			<li><a href="/c/1">序章</a></li>
			<li><a href="/c/99">终章</a></li>
		</ul>
	</body></html>`

	s := newTestService(t, pages)
	res := s.RandomChapter()
	require.NotNil(t, res)
	assert.Equal(t, "故事从这里开始。然后继续。", res.Text)
}
