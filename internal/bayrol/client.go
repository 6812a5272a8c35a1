package bayrol

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/razem-io/ha-bayrol-cloud/internal/model"
)

var sessionCookieRe = regexp.MustCompile(SessionCookie + `=([^;]+)`)

const (
	jsonNoError       = `"error":""`
	jsonAccessGranted = `"data":{"access":true}`
)

// Client is the session/transport layer against the vendor portal. It owns
// the single-slot session token: the token is set only by Login, cleared at
// the start of every login attempt, and attached as a cookie to every other
// call. Operations degrade to empty/false results instead of raising; the
// retry policy belongs to the caller.
//
// Client is not safe for concurrent use; the facade serializes access.
type Client struct {
	http    *http.Client
	baseURL string

	sessionID string

	debugMode   bool
	lastRawHTML string
}

// NewClient builds a client against the production portal.
func NewClient(timeout time.Duration) *Client {
	return NewClientWithBase(BaseURL, timeout)
}

// NewClientWithBase builds a client against an alternate base URL. Tests use
// it to point at a local server.
func NewClientWithBase(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(base, "/"),
	}
}

// SetDebugMode toggles raw-HTML capture. Turning it off releases the buffer
// immediately.
func (c *Client) SetDebugMode(on bool) {
	c.debugMode = on
	if !on {
		c.lastRawHTML = ""
	}
}

// DebugMode reports whether raw-HTML capture is active.
func (c *Client) DebugMode() bool { return c.debugMode }

// LastRawHTML returns the body of the most recent fetch, debug mode only.
func (c *Client) LastRawHTML() string {
	if !c.debugMode {
		return ""
	}
	return c.lastRawHTML
}

func (c *Client) captureRaw(html string) {
	if c.debugMode {
		c.lastRawHTML = html
	}
}

// debugf logs only when debug mode is on; errors are always logged directly.
func (c *Client) debugf(format string, args ...any) {
	if c.debugMode {
		log.Printf(format, args...)
	}
}

func (c *Client) applyHeaders(req *http.Request, additional map[string]string) {
	for k, v := range baseHeaders {
		req.Header.Set(k, v)
	}
	if c.sessionID != "" {
		req.Header.Set("Cookie", SessionCookie+"="+c.sessionID)
	}
	for k, v := range additional {
		req.Header.Set(k, v)
	}
}

// extractSessionID pulls the session token out of response cookies, or, when
// the portal omits a parseable cookie, out of the raw Set-Cookie header.
func (c *Client) extractSessionID(resp *http.Response) string {
	for _, ck := range resp.Cookies() {
		if ck.Name == SessionCookie {
			return ck.Value
		}
	}
	for _, h := range resp.Header.Values("Set-Cookie") {
		if m := sessionCookieRe.FindStringSubmatch(h); m != nil {
			return m[1]
		}
	}
	return ""
}

func (c *Client) requireSession(op string) bool {
	if c.sessionID == "" {
		log.Printf("%s: no session ID available, login first", op)
		return false
	}
	return true
}

func (c *Client) get(ctx context.Context, rawURL string, headers map[string]string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, err
	}
	c.applyHeaders(req, headers)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, err
	}
	return string(body), resp.StatusCode, nil
}

// Login performs the portal's unauthenticated-page -> form-scrape ->
// credentialed-POST handshake. It never retries internally; callers own the
// retry policy.
func (c *Client) Login(ctx context.Context, username, password string) bool {
	// Drop any prior session so a stale token cannot leak into the new one.
	c.sessionID = ""

	initURL := c.baseURL + "/m/login.php"
	c.debugf("login: initializing session via %s", initURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, initURL, nil)
	if err != nil {
		log.Printf("login: building init request: %v", err)
		return false
	}
	c.applyHeaders(req, map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/png,image/svg+xml,*/*;q=0.8",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
	})
	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("login: initial GET failed: %v", err)
		return false
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		log.Printf("login: reading login page: %v", readErr)
		return false
	}
	html := string(body)

	sessionID := c.extractSessionID(resp)
	if sessionID == "" {
		log.Printf("login: no %s cookie received", SessionCookie)
		return false
	}
	c.sessionID = sessionID
	c.debugf("login: got session ID")

	formData := ParseLoginForm(html)
	if len(formData) == 0 {
		return false
	}
	formData["username"] = username
	formData["password"] = password

	values := url.Values{}
	for k, v := range formData {
		values.Set(k, v)
	}

	loginURL := c.baseURL + "/m/login.php?r=reg"
	c.debugf("login: POSTing credentials to %s", loginURL)
	postReq, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(values.Encode()))
	if err != nil {
		log.Printf("login: building POST request: %v", err)
		return false
	}
	c.applyHeaders(postReq, loginHeaders)
	postReq.Header.Set("Referer", c.baseURL+"/m/login.php")

	postResp, err := c.http.Do(postReq)
	if err != nil {
		log.Printf("login: POST failed: %v", err)
		return false
	}
	postBody, readErr := io.ReadAll(postResp.Body)
	postResp.Body.Close()
	if readErr != nil {
		log.Printf("login: reading POST response: %v", readErr)
		return false
	}

	if CheckLoginError(string(postBody)) {
		return false
	}
	c.debugf("login: successful")
	return true
}

// GetControllers lists the account's controllers from the plants page.
func (c *Client) GetControllers(ctx context.Context) []model.Controller {
	if !c.requireSession("get controllers") {
		return nil
	}
	html, status, err := c.get(ctx, c.baseURL+"/m/plants.php", controllersHeaders)
	if err != nil {
		log.Printf("get controllers: %v", err)
		return nil
	}
	if status != http.StatusOK {
		log.Printf("get controllers: status %d", status)
		return nil
	}
	c.captureRaw(html)
	return ParseControllers(html)
}

// GetOverviewData fetches the multi-controller overview page, the fallback
// data source when direct controller access misbehaves.
func (c *Client) GetOverviewData(ctx context.Context) map[string]model.PoolData {
	if !c.requireSession("get overview data") {
		return map[string]model.PoolData{}
	}
	html, status, err := c.get(ctx, c.baseURL+"/p/plants.php", controllersHeaders)
	if err != nil {
		log.Printf("get overview data: %v", err)
		return map[string]model.PoolData{}
	}
	if status != http.StatusOK {
		log.Printf("get overview data: status %d", status)
		return map[string]model.PoolData{}
	}
	c.captureRaw(html)
	return ParseOverviewPage(html)
}

// GetData fetches one controller's measurement snapshot. The direct endpoint
// is tried first; a transport failure, an empty parse, or a degenerate
// offline-only result falls back to the overview page. GetData never returns
// an error: unrecoverable failure is the zero PoolData.
func (c *Client) GetData(ctx context.Context, cid string) model.PoolData {
	if !c.requireSession("get data") {
		return model.PoolData{}
	}

	dataURL := c.baseURL + "/getdata.php?cid=" + url.QueryEscape(cid)
	headers := map[string]string{"Referer": c.baseURL + "/m/plants.php"}
	for k, v := range dataHeaders {
		headers[k] = v
	}

	c.debugf("get data: fetching %s", dataURL)
	html, status, err := c.get(ctx, dataURL, headers)
	if err != nil {
		log.Printf("get data: direct fetch failed (%v), falling back to overview page", err)
		return c.GetOverviewData(ctx)[cid]
	}
	if status != http.StatusOK {
		log.Printf("get data: direct fetch status %d, falling back to overview page", status)
		return c.GetOverviewData(ctx)[cid]
	}
	c.captureRaw(html)

	data := ParsePoolData(html)
	if data.IsZero() || data.DegenerateOffline() {
		c.debugf("get data: direct fetch parsed empty, falling back to overview page")
		if fallback, ok := c.GetOverviewData(ctx)[cid]; ok {
			return fallback
		}
	}
	return data
}

// GetDeviceStatusRaw fetches the device-control page HTML for one
// controller. An empty string means the fetch failed.
func (c *Client) GetDeviceStatusRaw(ctx context.Context, cid string) string {
	if !c.requireSession("get device status") {
		return ""
	}

	deviceURL := c.baseURL + "/p/device.php?c=" + url.QueryEscape(cid)
	headers := map[string]string{"Referer": c.baseURL + "/m/plants.php"}

	c.debugf("get device status: fetching %s", deviceURL)
	html, status, err := c.get(ctx, deviceURL, headers)
	if err != nil {
		log.Printf("get device status: %v", err)
		return ""
	}
	if status != http.StatusOK {
		log.Printf("get device status: status %d", status)
		return ""
	}
	if html == "" {
		log.Printf("get device status: empty response body")
		return ""
	}
	c.debugf("get device status: %d bytes, tab=%t device_divs=%t item_divs=%t",
		len(html),
		strings.Contains(html, "tab_"),
		strings.Contains(html, `class="i_x16"`),
		strings.Contains(html, `class="i_item"`))
	c.captureRaw(html)
	return html
}

type jsonAction struct {
	Device string `json:"device"`
	Action string `json:"action"`
	Data   any    `json:"data"`
}

// postJSON sends one action to the portal's JSON endpoint and returns the
// raw response body. The portal signals success inside the body, not via
// status codes, so callers match its conventions literally.
func (c *Client) postJSON(ctx context.Context, cid, action string, data any) (string, bool) {
	payload, err := json.Marshal(jsonAction{Device: cid, Action: action, Data: data})
	if err != nil {
		log.Printf("%s: encoding payload: %v", action, err)
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/data_json.php", bytes.NewReader(payload))
	if err != nil {
		log.Printf("%s: building request: %v", action, err)
		return "", false
	}
	c.applyHeaders(req, jsonHeaders)
	req.Header.Set("Referer", c.baseURL+"/p/device.php?c="+url.QueryEscape(cid))

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("%s: %v", action, err)
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("%s: status %d", action, resp.StatusCode)
		return "", false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("%s: reading response: %v", action, err)
		return "", false
	}
	return string(body), true
}

type codePayload struct {
	Code string `json:"code"`
}

// SetControllerPassword submits the per-controller settings password.
// Success is the portal's empty-error convention, matched literally.
func (c *Client) SetControllerPassword(ctx context.Context, cid, password string) bool {
	if !c.requireSession("set controller password") {
		return false
	}
	body, ok := c.postJSON(ctx, cid, "setCode", codePayload{Code: password})
	return ok && strings.Contains(body, jsonNoError)
}

// GetControllerAccess unlocks settings writes for one controller: a priming
// GET of the device page, then setCode, then getAccess. Any failing step
// short-circuits to false.
func (c *Client) GetControllerAccess(ctx context.Context, cid, password string) bool {
	if !c.requireSession("get controller access") {
		return false
	}

	// The JSON endpoint expects the device page to have been visited in this
	// session before it grants access.
	deviceURL := c.baseURL + "/p/device.php?c=" + url.QueryEscape(cid)
	_, status, err := c.get(ctx, deviceURL, map[string]string{"Referer": c.baseURL + "/m/plants.php"})
	if err != nil {
		log.Printf("get controller access: priming device page: %v", err)
		return false
	}
	if status != http.StatusOK {
		log.Printf("get controller access: priming device page status %d", status)
		return false
	}

	body, ok := c.postJSON(ctx, cid, "setCode", codePayload{Code: password})
	if !ok || !strings.Contains(body, jsonNoError) {
		log.Printf("get controller access: settings password rejected")
		return false
	}

	body, ok = c.postJSON(ctx, cid, "getAccess", codePayload{Code: password})
	if !ok || !strings.Contains(body, jsonAccessGranted) {
		log.Printf("get controller access: access not granted")
		return false
	}
	c.debugf("get controller access: granted for controller %s", cid)
	return true
}

type itemsPayload struct {
	Items []model.SetItem `json:"items"`
}

// SetItems writes control-item settings; each item carries a one-hot value
// vector addressed by its dotted topic.
func (c *Client) SetItems(ctx context.Context, cid string, items []model.SetItem) bool {
	if !c.requireSession("set items") {
		return false
	}
	c.debugf("set items: %v", items)
	body, ok := c.postJSON(ctx, cid, "setItems", itemsPayload{Items: items})
	return ok && strings.Contains(body, jsonNoError)
}
