package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken    = "1234567890abcdef"
	testUsername = "admin"
	testPassword = "secret"
)

// fakeModem mimics the CM1000 login flow: the status page is only served to
// clients carrying the cookie handed out by a correct login POST.
type fakeModem struct {
	mu          sync.Mutex
	token       string
	loginStatus int
	statusCode  int
	page        string
	lastForm    url.Values
	statusHits  int
}

func newFakeModem(page string) *fakeModem {
	return &fakeModem{token: testToken, statusCode: http.StatusOK, page: page}
}

func (f *fakeModem) set(fn func(f *fakeModem)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeModem) hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusHits
}

func (f *fakeModem) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == loginPagePath:
		w.Write([]byte(`<html><body><form action="/goform/GenieLogin" method="post">`))
		if f.token != "" {
			w.Write([]byte(`<input type="hidden" name="webToken" value="` + f.token + `">`))
		}
		w.Write([]byte(`<input name="loginUsername"><input type="password" name="loginPassword"></form></body></html>`))

	case r.Method == http.MethodPost && r.URL.Path == loginFormPath:
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.lastForm = r.PostForm
		if f.loginStatus != 0 {
			w.WriteHeader(f.loginStatus)
			return
		}
		if r.PostForm.Get("webToken") != f.token ||
			r.PostForm.Get("loginUsername") != testUsername ||
			r.PostForm.Get("loginPassword") != testPassword {
			http.Redirect(w, r, loginPagePath, http.StatusFound)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "XSRF_TOKEN", Value: f.token, Path: "/"})
		w.Write([]byte(`<html><body>Login successful</body></html>`))

	case r.Method == http.MethodGet && r.URL.Path == statusPagePath:
		cookie, err := r.Cookie("XSRF_TOKEN")
		if err != nil || cookie.Value != f.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.statusHits++
		w.WriteHeader(f.statusCode)
		w.Write([]byte(f.page))

	default:
		http.NotFound(w, r)
	}
}

func newTestModem(srv *httptest.Server, password string) *Modem {
	return NewModem(srv.URL, testUsername, password, nil, 5*time.Second)
}

func TestModemLoginAndFetch(t *testing.T) {
	fake := newFakeModem(minimalPage())
	srv := httptest.NewServer(fake)
	defer srv.Close()

	session, err := newTestModem(srv, testPassword).Login(context.Background())
	require.NoError(t, err)

	assert.Equal(t, testUsername, fake.lastForm.Get("loginUsername"))
	assert.Equal(t, testPassword, fake.lastForm.Get("loginPassword"))
	assert.Equal(t, "1", fake.lastForm.Get("login"))
	assert.Equal(t, testToken, fake.lastForm.Get("webToken"))

	body, err := session.FetchStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, minimalPage(), string(body))
}

func TestModemLoginTokenMissing(t *testing.T) {
	fake := newFakeModem(minimalPage())
	fake.token = ""
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := newTestModem(srv, testPassword).Login(context.Background())
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr), "expected *AuthError, got %v", err)
	assert.Equal(t, authTokenMissing, authErr.Reason)
	assert.Nil(t, fake.lastForm, "credentials must not be posted without a token")
}

func TestModemLoginRejected(t *testing.T) {
	fake := newFakeModem(minimalPage())
	fake.loginStatus = http.StatusForbidden
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := newTestModem(srv, testPassword).Login(context.Background())
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr), "expected *AuthError, got %v", err)
	assert.Equal(t, authLoginRejected, authErr.Reason)
}

func TestModemWrongPasswordFailsFetch(t *testing.T) {
	srv := httptest.NewServer(newFakeModem(minimalPage()))
	defer srv.Close()

	session, err := newTestModem(srv, "wrong").Login(context.Background())
	require.NoError(t, err)

	_, err = session.FetchStatus(context.Background())
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr), "expected *FetchError, got %v", err)
	assert.Equal(t, http.StatusUnauthorized, fetchErr.StatusCode)
}

func TestModemFetchStatusCode(t *testing.T) {
	fake := newFakeModem("busy")
	fake.statusCode = http.StatusServiceUnavailable
	srv := httptest.NewServer(fake)
	defer srv.Close()

	session, err := newTestModem(srv, testPassword).Login(context.Background())
	require.NoError(t, err)

	_, err = session.FetchStatus(context.Background())
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr), "expected *FetchError, got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
	assert.Equal(t, "fetch", failureStage(err))
}

func TestModemFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(newFakeModem(minimalPage()))

	session, err := newTestModem(srv, testPassword).Login(context.Background())
	require.NoError(t, err)
	srv.Close()

	_, err = session.FetchStatus(context.Background())
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr), "expected *FetchError, got %v", err)
	assert.Equal(t, 0, fetchErr.StatusCode)
	assert.Error(t, errors.Unwrap(fetchErr))
}

func TestModemLoginTransportError(t *testing.T) {
	srv := httptest.NewServer(newFakeModem(minimalPage()))
	srv.Close()

	_, err := newTestModem(srv, testPassword).Login(context.Background())
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr), "expected *AuthError, got %v", err)
	assert.Equal(t, authTransport, authErr.Reason)
	assert.Equal(t, "auth", failureStage(err))
}
