package booksource

import (
	"errors"
	"testing"

	"github.com/dszqbsm/booksource/fetch"
	"github.com/dszqbsm/booksource/rule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 以预置页面应答的抓取器桩，记录每次抓取的URL
type stubFetcher struct {
	pages map[string]string
	calls []string
}

func (f *stubFetcher) Get(req *fetch.Request) ([]byte, error) {
	f.calls = append(f.calls, req.URL)
	body, ok := f.pages[req.URL]
	if !ok {
		return nil, errors.New("page not found")
	}
	return []byte(body), nil
}

func newTestParser(t *testing.T, set *rule.Set, pages map[string]string) (*Parser, *stubFetcher) {
	t.Helper()
	f := &stubFetcher{pages: pages}
	p, err := New(set,
		WithSiteURL("http://s.com"),
		WithFetcher(f),
	)
	require.NoError(t, err)
	return p, f
}

// 相对地址补全
func TestResolveURL(t *testing.T) {
	p, _ := newTestParser(t, rule.Default(), nil)

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "http://x", want: "http://x"},
		{in: "https://x/y", want: "https://x/y"},
		{in: "/p", want: "http://s.com/p"},
		{in: "p", want: "http://s.com/p"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.ResolveURL(tt.in))
	}

	// 已是绝对地址时幂等
	u := p.ResolveURL("/b/1")
	assert.Equal(t, u, p.ResolveURL(u))
}

func TestSearch(t *testing.T) {
	set := &rule.Set{
		Search: &rule.SearchRule{
			BookList: ".item",
			Name:     "h2@text",
			BookURL:  "a@href",
		},
	}
	pages := map[string]string{
		"http://s.com/search?q=abc": `<html><body>
			<div class="item"><h2>Title A</h2><a href="/b/1">x</a></div>
			<div class="item"><h2>Title B</h2><a href="http://other.com/b/2">x</a></div>
		</body></html>`,
	}
	p, _ := newTestParser(t, set, pages)

	books := p.Search("http://s.com/search?q={{key}}", "abc")
	require.Len(t, books, 2)
	assert.Equal(t, "Title A", books[0].Name)
	assert.Equal(t, "http://s.com/b/1", books[0].BookURL)
	// 已是绝对地址时不再拼接
	assert.Equal(t, "http://other.com/b/2", books[1].BookURL)
	// 未配置的字段降级为空串
	assert.Equal(t, "", books[0].Author)
}

func TestSearchDegradesToEmpty(t *testing.T) {
	set := &rule.Set{Search: &rule.SearchRule{BookList: ".item", Name: "h2@text"}}

	t.Run("fetch failed", func(t *testing.T) {
		p, _ := newTestParser(t, set, nil)
		assert.Empty(t, p.Search("http://s.com/search", ""))
	})

	t.Run("rule group absent", func(t *testing.T) {
		p, _ := newTestParser(t, &rule.Set{Find: &rule.FindRule{FindList: "li"}},
			map[string]string{"http://s.com/search": "<html></html>"})
		assert.Empty(t, p.Search("http://s.com/search", ""))
	})
}

// 两个章节列表容器中，只有被"正文"标记紧前修饰的容器被选中
func TestTocPicksMarkedContainer(t *testing.T) {
	set := &rule.Set{Toc: &rule.TocRule{SectionMarker: "正文"}}
	pages := map[string]string{
		"http://s.com/book/1": `<html><body>
			<div class="latest">最新章节</div>
			<ul class="chapter"><li><a href="/c/99">第九十九章</a></li></ul>
			<div class="intro">正文</div>
			<ul class="chapter">
				<li><a href="/c/1">第一章</a></li>
				<li><a href="/c/2">第二章</a></li>
			</ul>
		</body></html>`,
	}
	p, _ := newTestParser(t, set, pages)

	chapters := p.Toc("http://s.com/book/1")
	require.Len(t, chapters, 2)
	assert.Equal(t, "第一章", chapters[0].Name)
	assert.Equal(t, "http://s.com/c/1", chapters[0].URL)
	assert.Equal(t, "http://s.com/c/2", chapters[1].URL)
}

// 没有容器带标记时回退到第一个容器
func TestTocFallsBackToFirstContainer(t *testing.T) {
	set := &rule.Set{Toc: &rule.TocRule{SectionMarker: "正文"}}
	pages := map[string]string{
		"http://s.com/book/2": `<html><body>
			<ul class="chapter"><li><a href="/c/1">第一章</a></li></ul>
			<ul class="chapter"><li><a href="/c/2">第二章</a></li></ul>
		</body></html>`,
	}
	p, _ := newTestParser(t, set, pages)

	chapters := p.Toc("http://s.com/book/2")
	require.Len(t, chapters, 1)
	assert.Equal(t, "第一章", chapters[0].Name)
}

// 标记置空时关闭启发式，直接取第一个容器
func TestTocMarkerDisabled(t *testing.T) {
	set := &rule.Set{Toc: &rule.TocRule{}}
	pages := map[string]string{
		"http://s.com/book/3": `<html><body>
			<ul class="chapter"><li><a href="/c/1">第一章</a></li></ul>
			<div class="intro">正文</div>
			<ul class="chapter"><li><a href="/c/2">第二章</a></li></ul>
		</body></html>`,
	}
	p, _ := newTestParser(t, set, pages)

	chapters := p.Toc("http://s.com/book/3")
	require.Len(t, chapters, 1)
	assert.Equal(t, "http://s.com/c/1", chapters[0].URL)
}

func TestBookInfo(t *testing.T) {
	set := &rule.Set{
		BookInfo: map[string]string{
			"intro":  ".intro@text",
			"author": ".author@text",
		},
	}
	pages := map[string]string{
		"http://s.com/book/1": `<html><body>
			<div class="intro">  一段简介  </div>
		</body></html>`,
	}
	p, _ := newTestParser(t, set, pages)

	info := p.BookInfo("http://s.com/book/1")
	// 提取为空的字段被省略，非空字段去除首尾空白
	assert.Equal(t, map[string]string{"intro": "一段简介"}, info)
}

func TestBookInfoRuleAbsent(t *testing.T) {
	p, f := newTestParser(t, &rule.Set{Find: &rule.FindRule{FindList: "li"}}, nil)
	info := p.BookInfo("http://s.com/book/1")
	assert.NotNil(t, info)
	assert.Empty(t, info)
	// 规则分组缺失时连页面都不必抓
	assert.Empty(t, f.calls)
}

func TestFind(t *testing.T) {
	set := &rule.Set{
		Find: &rule.FindRule{
			FindList: ".content li",
			FindName: "a@text",
			FindURL:  "a@href",
		},
	}
	pages := map[string]string{
		"http://s.com/fenlei.html": `<html><body><div class="content">
			<li><a href="/sort/1">玄幻</a></li>
			<li><a href="/sort/2">都市</a></li>
		</div></body></html>`,
	}
	p, _ := newTestParser(t, set, pages)

	categories := p.Find("http://s.com/fenlei.html")
	require.Len(t, categories, 2)
	assert.Equal(t, Category{Name: "玄幻", URL: "http://s.com/sort/1"}, categories[0])
	assert.Equal(t, Category{Name: "都市", URL: "http://s.com/sort/2"}, categories[1])
}

// 规则中的正则无法编译时构造即报错
func TestNewRejectsBadRegex(t *testing.T) {
	set := &rule.Set{Search: &rule.SearchRule{BookList: ".item", Name: "h2@text##(["}}
	_, err := New(set, WithSiteURL("http://s.com"))
	assert.Error(t, err)
}
