package novel

// 随机小说编排：分类页随机选分类，分类页随机选书，目录里找第一章，
// 最后装配正文。任何一步拿不到数据都以无结果收场，不向宿主上抛

import (
	"math/rand"
	"regexp"
	"strings"

	"github.com/dszqbsm/booksource/booksource"
	"go.uber.org/zap"
)

// 匹配"第一章/第1章"式的章节名
var firstChapterRe = regexp.MustCompile(`第[一1]章`)

// 编排服务，持有解析器与分类页入口地址；自身不保存任何会话状态，
// "上一本小说"一类的记忆属于宿主
type Service struct {
	parser  *booksource.Parser
	findURL string
	logger  *zap.Logger
}

// 一次随机选取的结果
type Result struct {
	BookName string `json:"name"`
	Author   string `json:"author"`
	Title    string `json:"title"`
	Text     string `json:"text"`
}

func New(parser *booksource.Parser, findURL string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{parser: parser, findURL: findURL, logger: logger}
}

// 随机选取一本小说并返回其第一章正文，失败时返回nil。
// recover兜底：编排过程中的任何意外panic都转换为无结果并记录堆栈
func (s *Service) RandomChapter() (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("random chapter panic",
				zap.Any("panic", r), zap.Stack("stack"))
			res = nil
		}
	}()

	category, ok := s.randomCategory()
	if !ok {
		return nil
	}

	book, ok := s.randomBook(category.URL)
	if !ok {
		return nil
	}

	chapter, ok := s.firstChapter(book.BookURL)
	if !ok {
		return nil
	}

	content := s.parser.Content(chapter.URL)
	if content.Content == "" {
		s.logger.Error("empty chapter content", zap.String("url", chapter.URL))
		return nil
	}

	return &Result{
		BookName: book.Name,
		Author:   book.Author,
		Title:    content.Title,
		Text:     content.Content,
	}
}

func (s *Service) randomCategory() (booksource.Category, bool) {
	categories := s.parser.Find(s.findURL)
	if len(categories) == 0 {
		s.logger.Error("no category found", zap.String("url", s.findURL))
		return booksource.Category{}, false
	}
	category := categories[rand.Intn(len(categories))]
	s.logger.Info("pick category", zap.String("name", category.Name))
	return category, true
}

// 分类页的书籍列表与搜索结果页同构，直接复用搜索规则提取；
// 站点在作者字段后带分隔斜杠，这里顺手去掉
func (s *Service) randomBook(categoryURL string) (booksource.Book, bool) {
	books := s.parser.Search(categoryURL, "")
	if len(books) == 0 {
		s.logger.Error("no book found in category", zap.String("url", categoryURL))
		return booksource.Book{}, false
	}
	book := books[rand.Intn(len(books))]
	book.Author = strings.Trim(book.Author, "/")
	s.logger.Info("pick book", zap.String("name", book.Name))
	return book, true
}

// 优先按章节名匹配第一章，匹配不到时取目录的第一项
func (s *Service) firstChapter(bookURL string) (booksource.Chapter, bool) {
	chapters := s.parser.Toc(bookURL)
	if len(chapters) == 0 {
		s.logger.Error("no chapter found", zap.String("url", bookURL))
		return booksource.Chapter{}, false
	}
	for _, c := range chapters {
		if firstChapterRe.MatchString(c.Name) {
			s.logger.Info("pick first chapter", zap.String("name", c.Name))
			return c, true
		}
	}
	return chapters[0], true
}
