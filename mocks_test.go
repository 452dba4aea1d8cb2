package auth_test

import (
	"context"
	"reflect"
	"sync"

	"github.com/goliatone/go-router"
	"github.com/keysai/go-auth"
	"github.com/stretchr/testify/mock"
)

// routeCtx records what a handler did with the router.Context. Methods
// not overridden here fall through to go-router's mock.
type routeCtx struct {
	*router.MockContext

	method  string
	url     string
	ctx     context.Context
	cookies map[string]string
	payload any

	status      int
	headers     map[string]string
	body        string
	redirect    string
	redirectTo  []int
	rendered    string
	renderData  any
	setCookies  []*router.Cookie
	nextInvoked bool
}

func newRouteCtx(method, url string) *routeCtx {
	mc := router.NewMockContext()
	// flash messages are stored through Locals
	mc.On("Locals", mock.Anything, mock.Anything).Return(nil).Maybe()

	return &routeCtx{
		MockContext: mc,
		method:      method,
		url:         url,
		ctx:         context.Background(),
		cookies:     map[string]string{},
		headers:     map[string]string{},
	}
}

func (m *routeCtx) Method() string      { return m.method }
func (m *routeCtx) OriginalURL() string { return m.url }
func (m *routeCtx) Path() string        { return m.url }

func (m *routeCtx) Context() context.Context { return m.ctx }

func (m *routeCtx) SetContext(ctx context.Context) { m.ctx = ctx }

func (m *routeCtx) Status(code int) router.Context {
	m.status = code
	return m
}

func (m *routeCtx) SetHeader(key, val string) router.Context {
	m.headers[key] = val
	return m
}

func (m *routeCtx) SendString(s string) error {
	m.body = s
	return nil
}

func (m *routeCtx) Redirect(path string, status ...int) error {
	m.redirect = path
	m.redirectTo = status
	return nil
}

func (m *routeCtx) Render(name string, bind any, layout ...string) error {
	m.rendered = name
	m.renderData = bind
	return nil
}

func (m *routeCtx) Cookie(cookie *router.Cookie) {
	m.setCookies = append(m.setCookies, cookie)
}

func (m *routeCtx) Cookies(key string, defaultValue ...string) string {
	if v, ok := m.cookies[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

// Bind copies the configured payload into i.
func (m *routeCtx) Bind(i any) error {
	if m.payload == nil {
		return nil
	}
	reflect.ValueOf(i).Elem().Set(reflect.ValueOf(m.payload))
	return nil
}

func (m *routeCtx) Next() error {
	m.nextInvoked = true
	return nil
}

func (m *routeCtx) cookie(name string) *router.Cookie {
	for i := len(m.setCookies) - 1; i >= 0; i-- {
		if m.setCookies[i].Name == name {
			return m.setCookies[i]
		}
	}
	return nil
}

// stubState is a fixed StateReader.
type stubState struct {
	mu sync.Mutex
	st auth.SessionState
}

func (s *stubState) State() auth.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *stubState) set(ready bool, id *auth.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Ready = ready
	s.st.Identity = id
}
