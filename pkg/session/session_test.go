package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roffe/elevtrace/pkg/auxtable"
	"github.com/roffe/elevtrace/pkg/config"
	"github.com/roffe/elevtrace/pkg/eventbus"
	"github.com/roffe/elevtrace/pkg/source"
	"github.com/roffe/elevtrace/pkg/trace"
	"github.com/sirupsen/logrus/hooks/test"
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

func newSession(t *testing.T, bus *eventbus.Controller) *Session {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s := New(Options{
		Bus:    bus,
		Logger: logger,
		Now:    func() time.Time { return time.Date(2024, 5, 6, 15, 4, 5, 0, time.UTC) },
	})
	t.Cleanup(s.Close)
	return s
}

func TestLoadTraceBytes(t *testing.T) {
	s := newSession(t, nil)
	if err := s.LoadTraceBytes("trace.txt", []byte(sampleTrace)); err != nil {
		t.Fatal(err)
	}
	st := s.Status()
	if st.Loading || st.Progress != 100 || st.Error != "" || st.FileName != "trace.txt" {
		t.Errorf("Status() = %+v", st)
	}
	doc := s.Document()
	if len(doc.Bits) != 2 || doc.Driver == nil {
		t.Errorf("document = %+v", doc)
	}
}

func TestLoadTraceKeepsDocumentOnFailure(t *testing.T) {
	s := newSession(t, nil)
	if err := s.LoadTraceBytes("first.txt", []byte(sampleTrace)); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		file    string
		data    []byte
		wantErr error
	}{
		{"wrong extension", "trace.log", []byte(sampleTrace), source.ErrWrongExtension},
		{"empty", "trace.txt", nil, source.ErrEmptyFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.LoadTraceBytes(tt.file, tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("LoadTraceBytes() error = %v, want %v", err, tt.wantErr)
			}
			var ve *source.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("error %T is not a *source.ValidationError", err)
			}
			st := s.Status()
			if st.Progress != 0 || st.Error == "" || st.Loading {
				t.Errorf("Status() = %+v", st)
			}
			if s.Document().FileName != "first.txt" {
				t.Errorf("document replaced by a failed load")
			}
		})
	}
}

func TestLoadTrace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.txt")
	if err := os.WriteFile(path, []byte(sampleTrace), 0644); err != nil {
		t.Fatal(err)
	}
	s := newSession(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.LoadTrace(ctx, path); !errors.Is(err, context.Canceled) {
		t.Errorf("LoadTrace(canceled) error = %v", err)
	}
	if s.Document() != nil {
		t.Fatal("document loaded with a canceled context")
	}

	if err := s.LoadTrace(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if got := s.Document().FileName; got != "dump.txt" {
		t.Errorf("FileName = %q", got)
	}

	err := s.LoadTrace(context.Background(), filepath.Join(dir, "missing.txt"))
	var re *source.ReadError
	if !errors.As(err, &re) {
		t.Errorf("LoadTrace(missing) error = %v, want *source.ReadError", err)
	}
}

func TestSectionAndClear(t *testing.T) {
	s := newSession(t, nil)
	if _, err := s.Section(trace.SectionBit); !errors.Is(err, ErrNoDocument) {
		t.Errorf("Section() before load error = %v", err)
	}
	if _, err := s.Views(); !errors.Is(err, ErrNoDocument) {
		t.Errorf("Views() before load error = %v", err)
	}
	if err := s.LoadBuiltinConfig(); err != nil {
		t.Fatal(err)
	}
	if err := s.LoadTraceBytes("t.txt", []byte(sampleTrace)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Section(trace.SectionDriverBit5)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(got.([]trace.BitSignal)); n != 1 {
		t.Errorf("driver 5ms bits = %d", n)
	}
	set, err := s.Views()
	if err != nil {
		t.Fatal(err)
	}
	if set.Bits[0].Description != "SN_29" {
		t.Errorf("bit description = %q", set.Bits[0].Description)
	}

	s.Clear()
	if s.Document() != nil {
		t.Error("Clear() kept the document")
	}
	if idx, _ := s.Config(); idx == nil {
		t.Error("Clear() dropped the config")
	}
}

func TestDescribe(t *testing.T) {
	s := newSession(t, nil)
	if got := s.Describe("SN_29", 0, ""); got != auxtable.Unknown {
		t.Errorf("Describe() without config = %q", got)
	}
	if err := s.LoadBuiltinConfig(); err != nil {
		t.Fatal(err)
	}
	if got := s.Describe("anything", 1, auxtable.TableBit); got != "SS_29LT" {
		t.Errorf("Describe() = %q, want SS_29LT", got)
	}
	if got := s.Describe("", 1, ""); got != auxtable.Unknown {
		t.Errorf("Describe(empty) = %q", got)
	}

	s.SetConfig("custom", auxtable.New([]auxtable.Item{
		{TableCode: auxtable.TableBit, OrderNo: 0, ItemCode: "A"},
		{TableCode: auxtable.TableBit, OrderNo: 1, ItemCode: "B"},
	}))
	if got := s.Describe("anything", 1, auxtable.TableBit); got != "B" {
		t.Errorf("Describe() after SetConfig = %q, want B", got)
	}
	if st := s.Status(); st.ConfigName != "custom" || st.ConfigItems != 2 {
		t.Errorf("Status() = %+v", st)
	}
}

func TestLoadConfigFailureKeepsConfig(t *testing.T) {
	s := newSession(t, nil)
	if err := s.LoadBuiltinConfig(); err != nil {
		t.Fatal(err)
	}
	err := s.LoadConfigBytes("bad.xml", []byte("<Root>"))
	var pe *auxtable.ConfigParseError
	if !errors.As(err, &pe) {
		t.Fatalf("LoadConfigBytes() error = %v", err)
	}
	if _, name := s.Config(); name != auxtable.BuiltinName {
		t.Errorf("config name = %q after failed load", name)
	}
	if err := s.LoadConfigFile(filepath.Join(t.TempDir(), "none.xml")); err == nil {
		t.Error("LoadConfigFile(missing) succeeded")
	}
}

func TestProgressEvents(t *testing.T) {
	bus := eventbus.New(nil)
	defer bus.Close()
	s := newSession(t, bus)

	progress := bus.Subscribe(eventbus.TopicProgress)
	items := bus.Subscribe(eventbus.TopicConfigItems)

	if err := s.LoadBuiltinConfig(); err != nil {
		t.Fatal(err)
	}
	if err := s.LoadTraceBytes("t.txt", []byte(sampleTrace)); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case v := <-progress:
			done = v == 100
		case <-timeout:
			t.Fatal("progress never reached 100")
		}
	}
	select {
	case v := <-items:
		if v == 0 {
			t.Errorf("config.items = %v", v)
		}
	case <-timeout:
		t.Fatal("no config.items event")
	}
}

func TestOpen(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cfg.xml" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `<Root><AuxSubTableItem tableCode="T" orderNo="0" itemCode="A1 remote" itemName="A1"/></Root>`)
	}))
	defer remote.Close()

	tests := []struct {
		name     string
		url      string
		wantName string
		wantLen  int
	}{
		{"builtin", "", auxtable.BuiltinName, -1},
		{"remote", remote.URL + "/cfg.xml", remote.URL + "/cfg.xml", 1},
		{"remote missing", remote.URL + "/gone.xml", auxtable.BuiltinName, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := test.NewNullLogger()
			st := config.Default()
			st.ConfigURL = tt.url
			st.FetchDelay = time.Millisecond
			s, err := Open(context.Background(), st, nil, logger)
			if err != nil {
				t.Fatal(err)
			}
			defer s.Close()
			idx, name := s.Config()
			if name != tt.wantName {
				t.Errorf("config name = %q, want %q", name, tt.wantName)
			}
			if tt.wantLen >= 0 && idx.Len() != tt.wantLen {
				t.Errorf("config items = %d, want %d", idx.Len(), tt.wantLen)
			}
		})
	}
}
