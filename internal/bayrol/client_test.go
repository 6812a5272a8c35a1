package bayrol

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/razem-io/ha-bayrol-cloud/internal/model"
)

func decodeJSONBody(t *testing.T, r *http.Request, v any) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		t.Fatalf("decoding request body: %v", err)
	}
}

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithBase(srv.URL, 5*time.Second), srv
}

func TestLoginHandshake(t *testing.T) {
	var postedUser, postedPass, postedTag string

	mux := http.NewServeMux()
	mux.HandleFunc("/m/login.php", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "sess-abc"})
			w.Write([]byte(loginPageHTML))
		case http.MethodPost:
			if r.URL.RawQuery != "r=reg" {
				t.Errorf("POST query = %q, want r=reg", r.URL.RawQuery)
			}
			if got := r.Header.Get("Cookie"); got != SessionCookie+"=sess-abc" {
				t.Errorf("POST cookie = %q", got)
			}
			r.ParseForm()
			postedUser = r.PostFormValue("username")
			postedPass = r.PostFormValue("password")
			postedTag = r.PostFormValue("tag")
			w.Write([]byte(`<html><body><div class="tab_row">pools</div></body></html>`))
		}
	})

	c, _ := testClient(t, mux)
	if !c.Login(context.Background(), "user@example.com", "secret") {
		t.Fatal("login failed")
	}
	if postedUser != "user@example.com" || postedPass != "secret" {
		t.Errorf("posted credentials = %q/%q", postedUser, postedPass)
	}
	// Hidden form fields must round-trip into the POST.
	if postedTag != "abc123" {
		t.Errorf("posted tag = %q, want abc123", postedTag)
	}
}

func TestLoginRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/m/login.php", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "sess-abc"})
			w.Write([]byte(loginPageHTML))
			return
		}
		w.Write([]byte(`<div class="error_text">Fehler: Benutzername oder Passwort falsch</div>`))
	})

	c, _ := testClient(t, mux)
	if c.Login(context.Background(), "user", "wrong") {
		t.Fatal("login with bad credentials succeeded")
	}
}

func TestLoginWithoutSessionCookie(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/m/login.php", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(loginPageHTML))
	})

	c, _ := testClient(t, mux)
	if c.Login(context.Background(), "user", "pass") {
		t.Fatal("login succeeded without a session cookie")
	}
}

func TestExtractSessionIDHeaderFallback(t *testing.T) {
	// Some portal responses carry Set-Cookie lines Go's cookie parser drops;
	// the raw header still holds the token.
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Add("Set-Cookie", "other=1")
	resp.Header.Add("Set-Cookie", "=PHPSESSID=tok123; path=/")

	c := NewClientWithBase("http://example.invalid", time.Second)
	if got := c.extractSessionID(resp); got != "tok123" {
		t.Errorf("session id = %q, want tok123", got)
	}
}

func TestOperationsRequireSession(t *testing.T) {
	c := NewClientWithBase("http://example.invalid", time.Second)
	ctx := context.Background()

	if data := c.GetData(ctx, "12345"); !data.IsZero() {
		t.Errorf("GetData without session = %+v", data)
	}
	if controllers := c.GetControllers(ctx); controllers != nil {
		t.Errorf("GetControllers without session = %+v", controllers)
	}
	if html := c.GetDeviceStatusRaw(ctx, "12345"); html != "" {
		t.Errorf("GetDeviceStatusRaw without session = %q", html)
	}
	if c.SetItems(ctx, "12345", nil) {
		t.Error("SetItems without session succeeded")
	}
}

func TestGetDataDirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getdata.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cid") != "12345" {
			t.Errorf("cid = %q", r.URL.Query().Get("cid"))
		}
		w.Write([]byte(poolRelaxHTML))
	})

	c, _ := testClient(t, mux)
	c.sessionID = "sess"

	data := c.GetData(context.Background(), "12345")
	if data.Status != model.StatusOnline || len(data.Measurements) != 3 {
		t.Fatalf("got %+v", data)
	}
}

func TestGetDataFallsBackOnErrorStatus(t *testing.T) {
	overviewHits := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/getdata.php", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/p/plants.php", func(w http.ResponseWriter, _ *http.Request) {
		overviewHits++
		w.Write([]byte(overviewHTML))
	})

	c, _ := testClient(t, mux)
	c.sessionID = "sess"

	data := c.GetData(context.Background(), "12345")
	if overviewHits != 1 {
		t.Fatalf("overview fetched %d times, want 1", overviewHits)
	}
	if data.Status != model.StatusOnline || data.DeviceID != "24PR3-1928" {
		t.Fatalf("fallback data = %+v", data)
	}
}

func TestGetDataFallsBackOnDegenerateOffline(t *testing.T) {
	// A bare "no connection" block with no serial and no timestamp is the
	// portal's placeholder, not a real answer.
	mux := http.NewServeMux()
	mux.HandleFunc("/getdata.php", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<div class="tab_error">No connection to the controller</div>`))
	})
	mux.HandleFunc("/p/plants.php", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(overviewHTML))
	})

	c, _ := testClient(t, mux)
	c.sessionID = "sess"

	data := c.GetData(context.Background(), "12345")
	if data.Status != model.StatusOnline {
		t.Fatalf("got %+v, want overview data", data)
	}
}

func TestGetDataKeepsRealOffline(t *testing.T) {
	// An offline page naming the device is an answer, not a failure.
	mux := http.NewServeMux()
	mux.HandleFunc("/getdata.php", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(offlineHTML))
	})
	mux.HandleFunc("/p/plants.php", func(w http.ResponseWriter, _ *http.Request) {
		t.Error("overview consulted for a detailed offline page")
	})

	c, _ := testClient(t, mux)
	c.sessionID = "sess"

	data := c.GetData(context.Background(), "12345")
	if data.Status != model.StatusOffline || data.DeviceID != "24PR3-1928" {
		t.Fatalf("got %+v", data)
	}
}

func TestGetControllerAccess(t *testing.T) {
	var actions []string
	mux := http.NewServeMux()
	mux.HandleFunc("/p/device.php", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/data_json.php", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Device string `json:"device"`
			Action string `json:"action"`
		}
		decodeJSONBody(t, r, &req)
		actions = append(actions, req.Action)
		switch req.Action {
		case "setCode":
			w.Write([]byte(`{"error":""}`))
		case "getAccess":
			w.Write([]byte(`{"error":"","data":{"access":true}}`))
		}
	})

	c, _ := testClient(t, mux)
	c.sessionID = "sess"

	if !c.GetControllerAccess(context.Background(), "12345", "1234") {
		t.Fatal("access denied")
	}
	if len(actions) != 2 || actions[0] != "setCode" || actions[1] != "getAccess" {
		t.Errorf("actions = %v, want [setCode getAccess]", actions)
	}
}

func TestGetControllerAccessWrongPassword(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/p/device.php", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/data_json.php", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"error":"wrong code"}`))
	})

	c, _ := testClient(t, mux)
	c.sessionID = "sess"

	if c.GetControllerAccess(context.Background(), "12345", "0000") {
		t.Fatal("access granted on rejected password")
	}
}

func TestSetItems(t *testing.T) {
	var gotItems []model.SetItem
	mux := http.NewServeMux()
	mux.HandleFunc("/data_json.php", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Action string `json:"action"`
			Data   struct {
				Items []model.SetItem `json:"items"`
			} `json:"data"`
		}
		decodeJSONBody(t, r, &req)
		if req.Action != "setItems" {
			t.Errorf("action = %q", req.Action)
		}
		gotItems = req.Data.Items
		w.Write([]byte(`{"error":""}`))
	})

	c, _ := testClient(t, mux)
	c.sessionID = "sess"

	items := []model.SetItem{{Topic: "3.153", Name: "Betriebsart", Value: []int{0, 1, 0, 0, 0}, Valid: 1}}
	if !c.SetItems(context.Background(), "12345", items) {
		t.Fatal("setItems failed")
	}
	if len(gotItems) != 1 || gotItems[0].Topic != "3.153" || len(gotItems[0].Value) != 5 {
		t.Errorf("server saw %+v", gotItems)
	}
}

func TestDebugCapture(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getdata.php", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(poolRelaxHTML))
	})

	c, _ := testClient(t, mux)
	c.sessionID = "sess"

	c.GetData(context.Background(), "12345")
	if c.LastRawHTML() != "" {
		t.Error("raw HTML captured with debug mode off")
	}

	c.SetDebugMode(true)
	c.GetData(context.Background(), "12345")
	if c.LastRawHTML() == "" {
		t.Error("no raw HTML captured in debug mode")
	}

	c.SetDebugMode(false)
	if c.LastRawHTML() != "" {
		t.Error("buffer not released when debug mode turned off")
	}
}
