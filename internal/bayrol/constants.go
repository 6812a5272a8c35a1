package bayrol

// BaseURL is the fixed root of the vendor's web portal.
const BaseURL = "https://www.bayrol-poolaccess.de/webview"

// SessionCookie is the cookie carrying the portal session token.
const SessionCookie = "PHPSESSID"

// compatibleDeviceModels lists the device models known to render the page
// shapes this client parses. Other models still get a best-effort parse.
var compatibleDeviceModels = []string{
	"Pool Relax Cl",
	"PoolManager Chlor (Cl)",
	"PoolManager PRO",
	"Automatic SALT",
}

const issuesURL = "https://github.com/razem-io/ha-bayrol-cloud/issues/new"

// baseHeaders go on every request; the portal rejects clients that look too
// little like a browser. Accept-Encoding is left to the transport so response
// bodies arrive decompressed.
var baseHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64; rv:131.0) Gecko/20100101 Firefox/131.0",
	"Accept-Language": "en-US;q=0.7,en;q=0.3",
	"Connection":      "keep-alive",
	"Sec-Fetch-User":  "?1",
}

// Navigation-style headers for the login form POST.
var loginHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/png,image/svg+xml,*/*;q=0.8",
	"Content-Type":              "application/x-www-form-urlencoded",
	"Origin":                    "https://www.bayrol-poolaccess.de",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "same-origin",
}

// Navigation-style headers for HTML page fetches.
var controllersHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/png,image/svg+xml,*/*;q=0.8",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "same-origin",
}

// AJAX-style headers for the per-controller data endpoint.
var dataHeaders = map[string]string{
	"Accept":           "*/*",
	"X-Requested-With": "XMLHttpRequest",
	"Sec-Fetch-Dest":   "empty",
	"Sec-Fetch-Mode":   "cors",
	"Sec-Fetch-Site":   "same-origin",
}

// AJAX-style headers for the JSON action endpoint.
var jsonHeaders = map[string]string{
	"Accept":           "application/json, text/javascript, */*; q=0.01",
	"Content-Type":     "application/json; charset=utf-8",
	"X-Requested-With": "XMLHttpRequest",
	"Sec-Fetch-Dest":   "empty",
	"Sec-Fetch-Mode":   "cors",
	"Sec-Fetch-Site":   "same-origin",
}
