package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/fortunemusic-history/config"
	"github.com/aluiziolira/fortunemusic-history/models"
	"github.com/gocolly/colly/v2"
)

const (
	loginPath = "/default/login/"
	listPath  = "/mypage/apply_list/"

	phaseLogin  = "login"
	phaseList   = "list"
	phaseDetail = "detail"
)

// Session owns the authenticated cookie jar and issues one request at a time.
type Session struct {
	base      *url.URL
	collector *colly.Collector
	metrics   *Metrics
	logger    *slog.Logger

	requests int
}

// NewSession builds a synchronous collector bound to the configured host.
func NewSession(cfg *config.Config, metrics *Metrics) (*Session, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	collector.SetCookieJar(jar)

	if cfg.Delay > 0 {
		if err := collector.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Parallelism: 1,
			Delay:       cfg.Delay,
		}); err != nil {
			return nil, fmt.Errorf("configure rate limits: %w", err)
		}
	}

	s := &Session{
		base:      parsed,
		collector: collector,
		metrics:   metrics,
		logger:    slog.Default(),
	}
	s.configureHandlers()
	return s, nil
}

func (s *Session) configureHandlers() {
	s.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
	})

	s.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("body", r.Body)
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			s.metrics.ObserveDuration(time.Since(start))
		}
	})

	s.collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Ctx != nil {
			r.Ctx.Put("status", r.StatusCode)
		}
	})
}

// Login posts the credentials and returns the text of the success banner.
func (s *Session) Login(ctx context.Context, creds models.Credentials) (string, error) {
	form := url.Values{
		"login_id": {creds.LoginID},
		"login_pw": {creds.Password},
	}
	doc, err := s.fetch(ctx, phaseLogin, http.MethodPost, s.resolve(loginPath), form)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}

	if success := doc.Find(".alert-success"); success.Length() > 0 {
		return strings.TrimSpace(success.Text()), nil
	}
	if failure := doc.Find(".alert-error"); failure.Length() > 0 {
		err := &AuthError{Message: strings.TrimSpace(failure.Text())}
		s.metrics.IncError(errorTypeLabel(err))
		return "", err
	}
	s.metrics.IncError(errorTypeLabel(ErrUnexpectedResponse))
	return "", fmt.Errorf("login: %w", ErrUnexpectedResponse)
}

// Requests returns how many requests the session has issued.
func (s *Session) Requests() int {
	return s.requests
}

func (s *Session) fetch(ctx context.Context, phase, method, target string, form url.Values) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "fetching", slog.String("phase", phase), slog.String("url", target))
	s.requests++
	s.metrics.IncRequest(phase)

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	reqCtx := colly.NewContext()
	if err := s.collector.Request(method, target, body, reqCtx, nil); err != nil {
		status, _ := reqCtx.GetAny("status").(int)
		classified := classifyError(err, status)
		s.metrics.IncError(errorTypeLabel(classified))
		return nil, fmt.Errorf("%s %s: %w", method, target, classified)
	}

	raw, _ := reqCtx.GetAny("body").([]byte)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", target, err)
	}
	return doc, nil
}

func (s *Session) resolve(ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return s.base.String() + ref
	}
	return s.base.ResolveReference(parsed).String()
}

func (s *Session) listURL(page int) string {
	return s.resolve(listPath + "?page=" + strconv.Itoa(page))
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}
