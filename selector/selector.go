package selector

// 书源选择器表达式解释器，兼容阅读APP书源的选择器写法：
//
//	SEL@TYPE     TYPE∈{text,html,属性名}，缺省为text
//	BASE##REGEX  先求值BASE，再从结果中剔除所有正则匹配
//	id.X/class.X 简写，等价于CSS的 #X/.X
//	:contains('文本') 伪类，过滤出文本包含指定内容的节点
//	//开头的表达式按XPath求值
//	SEL@js:脚本  对提取结果执行一段JS后处理，脚本中result为当前值
//
// 表达式在规则装载时解析为Expr一次，之后反复求值，不做运行时字符串拆分

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/robertkrimen/otto"
	"go.uber.org/zap"
)

// 提取方式
type Kind int

const (
	Text Kind = iota // 节点的可见文本，去除首尾空白
	HTML             // 节点序列化后的完整HTML
	Attr             // 节点的某个属性值
)

// 一条解析好的选择器表达式。strip非空时表示BASE##REGEX形式，
// 求值时先对inner求值再做正则剔除；否则按叶子表达式求值
type Expr struct {
	raw string

	strip *regexp.Regexp
	inner *Expr

	query    string // CSS选择器，已展开简写并去除contains子句
	xpath    string // 非空时按XPath求值
	contains string // :contains过滤文本，区分大小写
	kind     Kind
	attr     string
	script   string // @js:后处理脚本
}

var containsRe = regexp.MustCompile(`:contains\(([^)]*)\)`)

// 合法的提取方式名：text、html或一个属性名。
// XPath谓词里的@class一类写法不满足该形式，不会被误切
var typeNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// 将一条原始表达式解析为Expr。空表达式合法，返回nil，求值结果为空字符串。
// 只有##中的正则无法编译时才返回错误
func Parse(raw string) (*Expr, error) {
	if raw == "" {
		return nil, nil
	}

	e := &Expr{raw: raw}

	// ##只在第一次出现处切分，BASE部分递归解析；
	// 一条表达式只支持一级正则剔除，这是表达能力的边界而非缺陷
	if idx := strings.Index(raw, "##"); idx >= 0 {
		inner, err := Parse(raw[:idx])
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(raw[idx+2:])
		if err != nil {
			return nil, fmt.Errorf("compile strip regex of %q: %w", raw, err)
		}
		e.inner = inner
		e.strip = re
		return e, nil
	}

	rest := raw

	// @js:后处理脚本
	if idx := strings.Index(rest, "@js:"); idx >= 0 {
		e.script = rest[idx+4:]
		rest = rest[:idx]
	}

	// SEL@TYPE切分，按最后一个@切分，缺省为text
	sel, typ := rest, "text"
	if idx := strings.LastIndex(rest, "@"); idx >= 0 && typeNameRe.MatchString(rest[idx+1:]) {
		sel, typ = rest[:idx], rest[idx+1:]
	}
	switch typ {
	case "text":
		e.kind = Text
	case "html":
		e.kind = HTML
	default:
		e.kind = Attr
		e.attr = typ
	}

	// XPath表达式原样保留
	if strings.HasPrefix(sel, "//") {
		e.xpath = sel
		return e, nil
	}

	// id.X/class.X简写
	if strings.HasPrefix(sel, "id.") {
		sel = "#" + sel[len("id."):]
	} else if strings.HasPrefix(sel, "class.") {
		sel = "." + sel[len("class."):]
	}

	// :contains不是标准CSS，先从选择器中摘除，求值后再按文本过滤
	if m := containsRe.FindStringSubmatch(sel); m != nil {
		e.contains = strings.Trim(m[1], `'"`)
		sel = strings.TrimSpace(containsRe.ReplaceAllString(sel, ""))
	}

	e.query = sel
	return e, nil
}

// Parse的panic版本，用于内置默认规则等确定合法的表达式
func MustParse(raw string) *Expr {
	e, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Expr) String() string {
	if e == nil {
		return ""
	}
	return e.raw
}

// 对给定的文档或元素节点求值，无匹配时返回空字符串，不报错
func (e *Expr) Eval(root *goquery.Selection) string {
	if e == nil || root == nil {
		return ""
	}

	if e.strip != nil {
		return e.strip.ReplaceAllString(e.inner.Eval(root), "")
	}

	var val string
	if e.xpath != "" {
		val = e.evalXPath(root)
	} else {
		val = e.evalCSS(root)
	}

	if e.script != "" {
		val = e.runScript(val)
	}
	return val
}

func (e *Expr) evalCSS(root *goquery.Selection) string {
	if e.query == "" {
		return ""
	}

	nodes := root.Find(e.query)
	if e.contains != "" {
		literal := e.contains
		nodes = nodes.FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(s.Text(), literal)
		})
	}
	if nodes.Length() == 0 {
		zap.L().Debug("selector matched nothing", zap.String("selector", e.raw))
		return ""
	}

	node := nodes.First()
	switch e.kind {
	case Text:
		return strings.TrimSpace(node.Text())
	case HTML:
		h, err := goquery.OuterHtml(node)
		if err != nil {
			zap.L().Debug("serialize node failed", zap.String("selector", e.raw), zap.Error(err))
			return ""
		}
		return h
	default:
		return node.AttrOr(e.attr, "")
	}
}

func (e *Expr) evalXPath(root *goquery.Selection) string {
	for _, n := range root.Nodes {
		found, err := htmlquery.QueryAll(n, e.xpath)
		if err != nil {
			zap.L().Debug("bad xpath expression", zap.String("selector", e.raw), zap.Error(err))
			return ""
		}
		if len(found) == 0 {
			continue
		}
		node := found[0]
		switch e.kind {
		case Text:
			return strings.TrimSpace(htmlquery.InnerText(node))
		case HTML:
			return htmlquery.OutputHTML(node, true)
		default:
			return htmlquery.SelectAttr(node, e.attr)
		}
	}
	zap.L().Debug("selector matched nothing", zap.String("selector", e.raw))
	return ""
}

// 在JS虚拟机中执行后处理脚本，result绑定为当前提取值；
// 脚本出错时保留原值，只影响诊断日志
func (e *Expr) runScript(val string) string {
	vm := otto.New()
	if err := vm.Set("result", val); err != nil {
		zap.L().Debug("js set result failed", zap.String("selector", e.raw), zap.Error(err))
		return val
	}
	v, err := vm.Run(e.script)
	if err != nil {
		zap.L().Debug("js post-process failed", zap.String("selector", e.raw), zap.Error(err))
		return val
	}
	out, err := v.ToString()
	if err != nil {
		zap.L().Debug("js result not a string", zap.String("selector", e.raw), zap.Error(err))
		return val
	}
	return out
}
