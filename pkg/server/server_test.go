package server

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/roffe/elevtrace/pkg/auxtable"
	"github.com/roffe/elevtrace/pkg/eventbus"
	"github.com/roffe/elevtrace/pkg/session"
	"github.com/roffe/elevtrace/pkg/source"
	"github.com/roffe/elevtrace/pkg/trace"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/xuri/excelize/v2"
)

const sampleTrace = `导出
控制
版本：V2.1
比特
SN_29 00000000 00000000 00000000 00000000 *-SS_29LT 00000000 00000000 00000011 11111111
数值25ms
idx 1 2
WP_SYNC 0001
数值50ms
idx 1 2
SPD 01 02
快照
FLOOR 0A DIR 01
驱动 2024/5/6 星期一 下午 3:04:05
比特5ms
DRV_A 00000001
快照
D1 01
管理
`

const smallConfig = `<?xml version="1.0" encoding="UTF-8"?>
<Root>
  <AuxSubTableItem libId="L" tableCode="T" orderNo="0" itemCode="X1 test item" itemName="X1"/>
</Root>`

var fixedNow = time.Date(2024, 5, 6, 15, 4, 5, 0, time.UTC)

type testEnv struct {
	srv  *Server
	sess *session.Session
	bus  *eventbus.Controller
	ts   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger, _ := test.NewNullLogger()
	bus := eventbus.New(nil)
	sess := session.New(session.Options{
		Bus:    bus,
		Logger: logger,
		Now:    func() time.Time { return fixedNow },
	})
	if err := sess.LoadBuiltinConfig(); err != nil {
		t.Fatal(err)
	}
	srv := New(Config{Session: sess, Bus: bus, Logger: logger, Now: func() time.Time { return fixedNow }})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
		sess.Close()
		bus.Close()
	})
	return &testEnv{srv: srv, sess: sess, bus: bus, ts: ts}
}

func upload(t *testing.T, url, name, content string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if name != "" {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(fw, content)
	}
	mw.Close()
	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestTraceUpload(t *testing.T) {
	env := newTestEnv(t)

	resp := upload(t, env.ts.URL+"/api/trace", "trace.txt", sampleTrace)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	var tr traceResponse
	decode(t, resp, &tr)
	if tr.Document == nil {
		t.Fatal("no document in response")
	}
	if tr.Document.FileName != "trace.txt" || !tr.Document.HasDriver {
		t.Errorf("document = %+v", tr.Document)
	}
	if got := tr.Document.Sections[string(trace.SectionBit)]; got != 2 {
		t.Errorf("bit section = %d, want 2", got)
	}
	if tr.Status.Progress != 100 || tr.Status.Loading {
		t.Errorf("status = %+v", tr.Status)
	}

	resp = get(t, env.ts.URL+"/api/trace")
	decode(t, resp, &tr)
	if tr.Document == nil || tr.Document.Control["版本"] != "V2.1" {
		t.Errorf("GET /api/trace document = %+v", tr.Document)
	}

	req, _ := http.NewRequest(http.MethodDelete, env.ts.URL+"/api/trace", nil)
	dresp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	dresp.Body.Close()
	if dresp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d", dresp.StatusCode)
	}
	if env.sess.Document() != nil {
		t.Error("document still loaded after DELETE")
	}
}

func TestTraceUploadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    int
	}{
		{"wrong extension", "trace.log", sampleTrace, http.StatusBadRequest},
		{"empty file", "trace.txt", "", http.StatusBadRequest},
		{"missing field", "", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp := upload(t, env.ts.URL+"/api/trace", tt.file, tt.content)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			var er errorResponse
			decode(t, resp, &er)
			if er.Error == "" {
				t.Error("empty error message")
			}
			if env.sess.Document() != nil {
				t.Error("document loaded despite error")
			}
		})
	}
}

func TestSection(t *testing.T) {
	env := newTestEnv(t)

	if resp := get(t, env.ts.URL+"/api/sections/bit"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("no document: status = %d, want 404", resp.StatusCode)
	}

	if err := env.sess.LoadTraceBytes("trace.txt", []byte(sampleTrace)); err != nil {
		t.Fatal(err)
	}
	resp := get(t, env.ts.URL+"/api/sections/bit")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var bits []trace.BitSignal
	decode(t, resp, &bits)
	if len(bits) != 2 || bits[1].SignalName != "SS_29LT" || !bits[1].Inverted() {
		t.Errorf("bits = %+v", bits)
	}

	if resp := get(t, env.ts.URL+"/api/sections/nope"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown kind: status = %d, want 404", resp.StatusCode)
	}
}

func TestDescribe(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		query string
		code  int
		want  string
	}{
		{"name=WP_SYNC&table=25ms+TRACE", http.StatusOK, "同步位置"},
		{"name=NOPE", http.StatusOK, auxtable.Unknown},
		{"name=", http.StatusOK, auxtable.Unknown},
		{"name=X&order=abc", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp := get(t, env.ts.URL+"/api/describe?"+tt.query)
			if resp.StatusCode != tt.code {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.code)
			}
			if tt.code != http.StatusOK {
				return
			}
			var dr describeResponse
			decode(t, resp, &dr)
			if !strings.Contains(dr.Description, tt.want) {
				t.Errorf("description = %q, want it to contain %q", dr.Description, tt.want)
			}
		})
	}
}

func TestConfig(t *testing.T) {
	env := newTestEnv(t)

	resp := get(t, env.ts.URL+"/api/config")
	var cr configResponse
	decode(t, resp, &cr)
	if cr.Name != auxtable.BuiltinName || cr.TableCount != 4 {
		t.Errorf("builtin config = %+v", cr)
	}

	resp = upload(t, env.ts.URL+"/api/config", "small.xml", smallConfig)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	decode(t, resp, &cr)
	if cr.Name != "small.xml" || cr.TotalItems != 1 {
		t.Errorf("uploaded config = %+v", cr)
	}

	resp, err := http.Post(env.ts.URL+"/api/config?builtin=1", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	decode(t, resp, &cr)
	if cr.Name != auxtable.BuiltinName {
		t.Errorf("after builtin reload name = %q", cr.Name)
	}
}

func TestConfigErrors(t *testing.T) {
	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()

	tests := []struct {
		name    string
		path    string
		file    string
		content string
		want    int
	}{
		{"malformed", "/api/config", "bad.xml", "<Root><AuxSubTableItem", http.StatusUnprocessableEntity},
		{"wrong extension", "/api/config", "cfg.txt", smallConfig, http.StatusBadRequest},
		{"missing field", "/api/config", "", "", http.StatusBadRequest},
		{"remote 404", "/api/config?url=" + missing.URL + "/cfg.xml", "", "", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp := upload(t, env.ts.URL+tt.path, tt.file, tt.content)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if _, name := env.sess.Config(); name != auxtable.BuiltinName {
				t.Errorf("config replaced by %q after failure", name)
			}
		})
	}
}

func TestViews(t *testing.T) {
	env := newTestEnv(t)
	if err := env.sess.LoadTraceBytes("trace.txt", []byte(sampleTrace)); err != nil {
		t.Fatal(err)
	}

	resp := get(t, env.ts.URL+"/api/views?view=bit&state=active")
	var bits []trace.BitSignal
	decode(t, resp, &bits)
	if len(bits) != 1 || bits[0].SignalName != "SS_29LT" {
		t.Errorf("active bits = %+v", bits)
	}

	if resp := get(t, env.ts.URL+"/api/views?view=nope"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown view: status = %d, want 404", resp.StatusCode)
	}
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)

	if resp := get(t, env.ts.URL+"/api/export/bit"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("no document: status = %d, want 404", resp.StatusCode)
	}
	if err := env.sess.LoadTraceBytes("trace.txt", []byte(sampleTrace)); err != nil {
		t.Fatal(err)
	}

	resp := get(t, env.ts.URL+"/api/export/bit")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	if err != nil {
		t.Fatal(err)
	}
	if params["filename"] != "bit_data.csv" {
		t.Errorf("filename = %q", params["filename"])
	}
	records, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 || records[0][0] != "NO顺序" || records[2][1] != "SS_29LT *-" {
		t.Errorf("records = %q", records)
	}

	resp = get(t, env.ts.URL+"/api/export/snapshot")
	_, params, _ = mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	if want := "快照数据_20240506_150405.csv"; params["filename"] != want {
		t.Errorf("snapshot filename = %q, want %q", params["filename"], want)
	}

	resp = get(t, env.ts.URL+"/api/export/xlsx")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("xlsx status = %d", resp.StatusCode)
	}
	f, err := excelize.OpenReader(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if sheets := f.GetSheetList(); len(sheets) == 0 || sheets[0] != "bit" {
		t.Errorf("sheets = %v", sheets)
	}

	if resp := get(t, env.ts.URL+"/api/export/nope"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown view: status = %d, want 404", resp.StatusCode)
	}
}

func TestEvents(t *testing.T) {
	env := newTestEnv(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(env.ts.URL, "http")+"/api/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var m Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatal(err)
	}
	if m.Type != MessageTypeStatus || m.Status == nil || m.Status.ConfigName != auxtable.BuiltinName {
		t.Fatalf("first message = %+v", m)
	}

	if err := env.bus.Publish(eventbus.TopicConfigItems, -1); err != nil {
		t.Fatal(err)
	}
	for {
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("no event received: %v", err)
		}
		if m.Type == MessageTypeEvent && m.Topic == eventbus.TopicConfigItems && m.Data == -1 {
			break
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("quit")); err != nil {
		t.Fatal(err)
	}
	// Anything still in flight is drained until the close frame arrives.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Errorf("read after quit: %v", err)
			}
			return
		}
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&source.ValidationError{Err: source.ErrEmptyFile}, http.StatusBadRequest},
		{errMissingFile, http.StatusBadRequest},
		{session.ErrNoDocument, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", trace.ErrUnknownSection), http.StatusNotFound},
		{&source.ReadError{Err: io.ErrUnexpectedEOF}, http.StatusUnprocessableEntity},
		{&trace.ParseError{Section: "driver", Err: errors.New("boom")}, http.StatusUnprocessableEntity},
		{&auxtable.ConfigParseError{Err: io.EOF}, http.StatusUnprocessableEntity},
		{&auxtable.ConfigLoadError{URL: "http://x", Err: io.EOF}, http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusOf(tt.err); got != tt.want {
			t.Errorf("statusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestMessageType(t *testing.T) {
	b, err := json.Marshal(Message{Type: MessageTypePing})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"type":"Ping"`) {
		t.Errorf("marshal = %s", b)
	}
	var m Message
	if err := json.Unmarshal([]byte(`{"type":"Event","topic":"x","data":2}`), &m); err != nil {
		t.Fatal(err)
	}
	if m.Type != MessageTypeEvent || m.String() != "Type: Event, Topic: x, Data: 2" {
		t.Errorf("unmarshal = %v", m.String())
	}
}
