package rule

// 书源规则：与阅读APP书源格式兼容的一组字段选择器，按操作分组。
// 规则集装载后不再变更，引擎只读取

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// 一个站点的完整书源规则集，任何分组都可以缺省
type Set struct {
	Search   *SearchRule       `json:"ruleSearch" yaml:"ruleSearch"`
	Toc      *TocRule          `json:"ruleToc" yaml:"ruleToc"`
	Content  *ContentRule      `json:"ruleContent" yaml:"ruleContent"`
	BookInfo map[string]string `json:"ruleBookInfo" yaml:"ruleBookInfo"`
	Find     *FindRule         `json:"ruleFind" yaml:"ruleFind"`
}

// 搜索结果页规则，BookList定位书籍条目的节点集合，其余字段在条目内提取
type SearchRule struct {
	BookList string `json:"bookList" yaml:"bookList"`
	Name     string `json:"name" yaml:"name"`
	Author   string `json:"author" yaml:"author"`
	Intro    string `json:"intro" yaml:"intro"`
	BookURL  string `json:"bookUrl" yaml:"bookUrl"`
	CoverURL string `json:"coverUrl" yaml:"coverUrl"`
}

// 目录页规则。ChapterList定位章节列表容器；SectionMarker非空时，
// 优先选择紧前兄弟节点文本等于该标记的容器（用于跳过“最新章节”一类的块），
// 找不到带标记的容器时回退到第一个
type TocRule struct {
	ChapterList   string `json:"chapterList" yaml:"chapterList"`
	ChapterName   string `json:"chapterName" yaml:"chapterName"`
	ChapterURL    string `json:"chapterUrl" yaml:"chapterUrl"`
	SectionMarker string `json:"sectionMarker" yaml:"sectionMarker"`
}

// 章节正文规则。NextContentURL非空时自动翻页拼接，
// ReplaceRegex用于剔除正文中的站点水印等固定内容
type ContentRule struct {
	Content        string `json:"content" yaml:"content"`
	Title          string `json:"title" yaml:"title"`
	NextContentURL string `json:"nextContentUrl" yaml:"nextContentUrl"`
	ReplaceRegex   string `json:"replaceRegex" yaml:"replaceRegex"`
}

// 分类页规则
type FindRule struct {
	FindList string `json:"findList" yaml:"findList"`
	FindName string `json:"findName" yaml:"findName"`
	FindURL  string `json:"findUrl" yaml:"findUrl"`
}

// 内置的3g.shugelou.org默认规则
func Default() *Set {
	return &Set{
		Search: &SearchRule{
			BookList: ".cover p.line",
			Name:     "a@text",
			Author:   "p@text##.*</a>",
			BookURL:  "a@href",
		},
		Toc: &TocRule{
			ChapterList:   "ul.chapter",
			ChapterName:   "a@text",
			ChapterURL:    "a@href",
			SectionMarker: "正文",
		},
		Content: &ContentRule{
			Content:        `id.nr1@html##{{chapter.title}}.*|最新网址：3g\.shugelou\.org`,
			Title:          "id._bqgmb_h1@text",
			NextContentURL: "id.pt_next@href",
			ReplaceRegex:   "##\n（本章未完，请点击下一页继续阅读）\\n",
		},
		Find: &FindRule{
			FindList: ".content li",
			FindName: "a@text",
			FindURL:  "a@href",
		},
	}
}

// 从JSON文本解析规则集，空文本返回内置默认规则
func ParseJSON(data []byte) (*Set, error) {
	if len(data) == 0 {
		return Default(), nil
	}
	s := &Set{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse rule json: %w", err)
	}
	if s.empty() {
		return Default(), nil
	}
	return s, nil
}

// 从YAML文件装载规则集
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	s := &Set{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse rule file %s: %w", path, err)
	}
	if s.empty() {
		return Default(), nil
	}
	return s, nil
}

func (s *Set) empty() bool {
	return s.Search == nil && s.Toc == nil && s.Content == nil &&
		len(s.BookInfo) == 0 && s.Find == nil
}
