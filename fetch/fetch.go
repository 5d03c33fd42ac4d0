package fetch

// 负责向书源站点发起仿浏览器请求：统一伪装请求头、随机休眠、限速、
// 失败重试与编码转换，返回utf-8编码的页面内容

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/dszqbsm/booksource/limiter"
	"github.com/dszqbsm/booksource/proxy"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// 默认伪装的移动端浏览器User-Agent
const DefaultUserAgent = "Mozilla/5.0 (Linux; Android 14; PJH110 Build/SP1A.210812.016) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.6533.103 Mobile Safari/537.36"

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = time.Second
	defaultMinDelay    = 500 * time.Millisecond
	defaultMaxDelay    = 1500 * time.Millisecond
)

// 一个待抓取的页面请求
type Request struct {
	URL    string
	Method string     // GET或POST，为空时按GET处理
	Form   url.Values // POST表单数据
}

type Fetcher interface {
	// 抓取一个页面，返回utf-8编码的页面内容；重试耗尽后返回最后一次的错误
	Get(req *Request) ([]byte, error)
}

// 仿浏览器抓取器。每次调用先随机休眠一段时间模拟人类行为，
// 之后最多尝试MaxAttempts次，重试间隔从BackoffBase起逐次翻倍，
// 每个请求的Referer固定为站点根地址
type BrowserFetch struct {
	Timeout     time.Duration
	Proxy       proxy.ProxyFunc
	Logger      *zap.Logger
	UserAgent   string
	SiteURL     string // 站点根地址，同时用作每次请求的Referer
	Limit       limiter.RateLimiter
	MaxAttempts int           // 总尝试次数，默认3
	BackoffBase time.Duration // 首次重试前的等待时间，默认1s
	MinDelay    time.Duration // 请求前随机休眠下限，默认500ms
	MaxDelay    time.Duration // 请求前随机休眠上限，默认1500ms

	clientOnce sync.Once
	client     *http.Client
}

func (b *BrowserFetch) Get(request *Request) ([]byte, error) {
	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if b.Limit != nil {
		if err := b.Limit.Wait(context.Background()); err != nil {
			return nil, err
		}
	}

	// 随机休眠，模拟人类行为；每次Get只休眠一次，不随重试重复
	minDelay, maxDelay := b.MinDelay, b.MaxDelay
	if minDelay <= 0 {
		minDelay = defaultMinDelay
	}
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	time.Sleep(minDelay + time.Duration(rand.Int63n(int64(maxDelay-minDelay)+1)))

	maxAttempts := b.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := b.BackoffBase
	if backoff <= 0 {
		backoff = defaultBackoffBase
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		body, err := b.doRequest(request)
		if err == nil {
			return body, nil
		}
		lastErr = err
		logger.Warn("fetch attempt failed",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("fetch %s failed after %d attempts: %w", request.URL, maxAttempts, lastErr)
}

// 执行单次HTTP请求，重定向由http.Client自动跟随
func (b *BrowserFetch) doRequest(request *Request) ([]byte, error) {
	b.clientOnce.Do(func() {
		// 连接超时短于整体超时，握手卡死时尽早进入重试
		transport := &http.Transport{
			DialContext:     (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:    100,
			IdleConnTimeout: 90 * time.Second,
		}
		if b.Proxy != nil {
			transport.Proxy = b.Proxy
		}
		b.client = &http.Client{
			Timeout:   b.Timeout,
			Transport: transport,
		}
	})

	method := request.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if method == http.MethodPost && request.Form != nil {
		body = strings.NewReader(request.Form.Encode())
	}

	req, err := http.NewRequest(method, request.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}

	ua := b.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	// Referer固定为站点根地址，与来路页面无关
	if b.SiteURL != "" {
		req.Header.Set("Referer", b.SiteURL)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("error status code:%d", resp.StatusCode)
	}

	return readBody(resp)
}

// 手动设置了Accept-Encoding后Go不再透明解压，需要按Content-Encoding自行解码，
// 之后探测页面编码并转换为utf-8
func readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}

	bodyReader := bufio.NewReader(reader)
	e := DeterminEncoding(bodyReader)
	utf8Reader := transform.NewReader(bodyReader, e.NewDecoder())

	return io.ReadAll(utf8Reader)
}

// 嗅探页面前1024字节判断编码，失败时按utf-8处理
func DeterminEncoding(r *bufio.Reader) encoding.Encoding {
	bytes, err := r.Peek(1024)

	if err != nil && err != io.EOF {
		zap.L().Debug("determin encoding failed", zap.Error(err))

		return unicode.UTF8
	}

	e, _, _ := charset.DetermineEncoding(bytes, "")

	return e
}
