package webdriver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devicelab-dev/botrunner/pkg/core"
	"github.com/devicelab-dev/botrunner/pkg/logger"
)

// writeJSON encodes data as JSON to the response writer.
func writeJSON(w http.ResponseWriter, data interface{}) {
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	writeJSON(w, map[string]interface{}{
		"value": map[string]interface{}{"error": code, "message": message},
	})
}

func TestClient_Connect(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session" && r.Method == "POST" {
			_ = json.NewDecoder(r.Body).Decode(&got)
			writeJSON(w, map[string]interface{}{
				"value": map[string]interface{}{"sessionId": "s-1"},
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	err := client.Connect(context.Background(), map[string]interface{}{"browserName": "chrome"})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if client.SessionID() != "s-1" {
		t.Errorf("Expected sessionID 's-1', got '%s'", client.SessionID())
	}

	caps, _ := got["capabilities"].(map[string]interface{})
	match, _ := caps["alwaysMatch"].(map[string]interface{})
	if match["browserName"] != "chrome" {
		t.Errorf("Expected alwaysMatch capabilities, got %v", got)
	}
}

func TestClient_TracesToLogFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"value": map[string]interface{}{"sessionId": "s-1"},
		})
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "run.log")
	if err := logger.Init(logger.Options{File: path}); err != nil {
		t.Fatalf("logger.Init failed: %v", err)
	}
	if err := NewClient(server.URL).Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	logger.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "webdriver POST /session -> 200") {
		t.Errorf("expected wire trace in log file, got %q", data)
	}
}

func TestClient_ConnectNoSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"value": map[string]interface{}{}})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if err := client.Connect(context.Background(), nil); err == nil {
		t.Fatal("Expected error for a response without session ID")
	}
}

func TestClient_ServerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url)
	err := client.Connect(context.Background(), nil)
	if !errors.Is(err, core.ErrServerUnreachable) {
		t.Errorf("Expected ErrServerUnreachable, got %v", err)
	}
}

func TestClient_Disconnect(t *testing.T) {
	deleteCalled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session/s-1" && r.Method == "DELETE" {
			deleteCalled = true
			writeJSON(w, map[string]interface{}{"value": nil})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s-1"
	if err := client.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if !deleteCalled {
		t.Error("Expected DELETE /session/s-1")
	}
	if client.SessionID() != "" {
		t.Error("Expected session ID to be cleared")
	}

	// Second call is a no-op
	deleteCalled = false
	if err := client.Disconnect(); err != nil || deleteCalled {
		t.Errorf("Expected no request after disconnect, err=%v", err)
	}
}

func TestClient_FindElement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/s-1/element":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["using"] != "xpath" || body["value"] != "//button" {
				writeError(w, http.StatusNotFound, errNoSuchElement, "nothing at "+body["value"])
				return
			}
			writeJSON(w, map[string]interface{}{
				"value": map[string]interface{}{w3cElementKey: "el-1"},
			})
		case "/session/s-1/element/el-1/element":
			writeJSON(w, map[string]interface{}{
				"value": map[string]interface{}{"ELEMENT": "el-2"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s-1"

	id, err := client.FindElement("xpath", "//button")
	if err != nil || id != "el-1" {
		t.Fatalf("Expected el-1, got %q (%v)", id, err)
	}

	child, err := client.FindElementFrom("el-1", "xpath", ".//span")
	if err != nil || child != "el-2" {
		t.Fatalf("Expected legacy id el-2, got %q (%v)", child, err)
	}

	_, err = client.FindElement("xpath", "//missing")
	if !IsNoSuchElement(err) {
		t.Fatalf("Expected no such element, got %v", err)
	}
	var wdErr *Error
	if !errors.As(err, &wdErr) || wdErr.Status != http.StatusNotFound {
		t.Errorf("Expected *Error with status 404, got %v", err)
	}
}

func TestClient_FindElements(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"value": []interface{}{
				map[string]interface{}{w3cElementKey: "a"},
				map[string]interface{}{"other": "ignored"},
				map[string]interface{}{w3cElementKey: "b"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s-1"

	ids, err := client.FindElements("xpath", "//li")
	if err != nil {
		t.Fatalf("FindElements failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("Expected [a b], got %v", ids)
	}
}

func TestClient_ExecuteScript(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session/s-1/execute/sync" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, map[string]interface{}{"value": []interface{}{"x"}})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s-1"

	value, err := client.ExecuteScript("return 1")
	if err != nil {
		t.Fatalf("ExecuteScript failed: %v", err)
	}
	if list, ok := value.([]interface{}); !ok || len(list) != 1 {
		t.Errorf("Expected one-element list, got %v", value)
	}
	if args, ok := got["args"].([]interface{}); !ok || len(args) != 0 {
		t.Errorf("Expected empty args array, got %v", got["args"])
	}
}

func TestClient_Screenshot(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"value": base64.StdEncoding.EncodeToString(png)})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s-1"

	data, err := client.Screenshot()
	if err != nil {
		t.Fatalf("Screenshot failed: %v", err)
	}
	if string(data) != string(png) {
		t.Errorf("Expected decoded PNG bytes, got %v", data)
	}
}

func TestClient_SetTimeouts(t *testing.T) {
	calls := 0
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, map[string]interface{}{"value": nil})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s-1"

	if err := client.SetTimeouts(0, 0); err != nil || calls != 0 {
		t.Fatalf("Expected no request for zero timeouts, calls=%d err=%v", calls, err)
	}
	if err := client.SetTimeouts(30*time.Second, 0); err != nil {
		t.Fatalf("SetTimeouts failed: %v", err)
	}
	if got["pageLoad"] != float64(30000) {
		t.Errorf("Expected pageLoad 30000, got %v", got["pageLoad"])
	}
	if _, ok := got["script"]; ok {
		t.Error("Expected no script timeout")
	}
}
