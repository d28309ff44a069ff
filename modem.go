package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const (
	loginPagePath  = "/GenieLogin.asp"
	loginFormPath  = "/goform/GenieLogin"
	statusPagePath = "/DocsisStatus.asp"
)

// Modem talks to the web interface of a Netgear CM1000. Each call to Login
// starts a new session.
type Modem struct {
	baseURL   string
	username  string
	password  string
	transport http.RoundTripper
	timeout   time.Duration
}

// Session is an authenticated web session, valid for one scrape cycle.
type Session struct {
	client *resty.Client
}

func NewModem(baseURL, username, password string, transport http.RoundTripper, timeout time.Duration) *Modem {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Modem{
		baseURL:   baseURL,
		username:  username,
		password:  password,
		transport: transport,
		timeout:   timeout,
	}
}

// Login fetches the login page for its webToken and posts the credentials.
// The session cookie ends up in the returned Session's jar.
func (m *Modem) Login(ctx context.Context) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client := resty.NewWithClient(&http.Client{
		Transport: m.transport,
		Jar:       jar,
		Timeout:   m.timeout,
	})
	client.SetBaseURL(m.baseURL)

	res, err := client.R().SetContext(ctx).Get(loginPagePath)
	if err != nil {
		return nil, &AuthError{Reason: authTransport, Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, &AuthError{Reason: authTokenMissing, Err: err}
	}
	token := doc.Find(`input[name="webToken"]`).AttrOr("value", "")
	if token == "" {
		return nil, &AuthError{Reason: authTokenMissing}
	}

	res, err = client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"loginUsername": m.username,
			"loginPassword": m.password,
			"login":         "1",
			"webToken":      token,
		}).
		Post(loginFormPath)
	if err != nil {
		return nil, &AuthError{Reason: authTransport, Err: err}
	}
	if res.StatusCode() >= http.StatusBadRequest {
		return nil, &AuthError{Reason: authLoginRejected, Err: fmt.Errorf("HTTP status %d", res.StatusCode())}
	}

	return &Session{client: client}, nil
}

// FetchStatus returns the raw DocsisStatus.asp page. Anything but HTTP 200
// is a *FetchError carrying the status code.
func (s *Session) FetchStatus(ctx context.Context) ([]byte, error) {
	url := s.client.BaseURL + statusPagePath
	res, err := s.client.R().SetContext(ctx).Get(statusPagePath)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if res.StatusCode() != http.StatusOK {
		return nil, &FetchError{URL: url, StatusCode: res.StatusCode()}
	}
	return res.Body(), nil
}
