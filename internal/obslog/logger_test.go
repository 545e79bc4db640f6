package obslog

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func newTestContextLogger() (*ContextLogger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewContextLogger(logger, map[string]interface{}{"component": "bridge"}), hook
}

func TestWithField_MergesWithoutMutatingParent(t *testing.T) {
	base, hook := newTestContextLogger()
	child := base.WithField("phase", "created")

	child.Info("child entry")
	entry := hook.LastEntry()
	if entry.Data["phase"] != "created" || entry.Data["component"] != "bridge" {
		t.Errorf("entry fields = %v, want phase=created and component=bridge", entry.Data)
	}

	hook.Reset()
	base.Info("parent entry")
	entry = hook.LastEntry()
	if _, ok := entry.Data["phase"]; ok {
		t.Errorf("parent logger gained a field from its child: %v", entry.Data)
	}
}

func TestWithError_SetsErrorField(t *testing.T) {
	base, hook := newTestContextLogger()
	base.WithError(errors.New("boom")).Error("failed")

	entry := hook.LastEntry()
	if entry.Data["error"] != "boom" {
		t.Errorf("error field = %v, want boom", entry.Data["error"])
	}
}

func TestLogOperation_PropagatesErrorAndLogsFailure(t *testing.T) {
	base, hook := newTestContextLogger()

	wantErr := errors.New("disk full")
	err := LogOperation(base, "upload", func() error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("LogOperation returned %v, want %v", err, wantErr)
	}

	var sawFailure bool
	for _, e := range hook.AllEntries() {
		if e.Message == "operation failed" && e.Data["operation"] == "upload" {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Error("expected an 'operation failed' log entry for operation=upload")
	}
}

func TestLogOperation_LogsCompletionOnSuccess(t *testing.T) {
	base, hook := newTestContextLogger()

	if err := LogOperation(base, "convert", func() error { return nil }); err != nil {
		t.Fatalf("LogOperation: %v", err)
	}
	var sawCompletion bool
	for _, e := range hook.AllEntries() {
		if e.Message == "operation completed" && e.Data["operation"] == "convert" {
			sawCompletion = true
		}
	}
	if !sawCompletion {
		t.Error("expected an 'operation completed' log entry for operation=convert")
	}
}

func TestLogPanic_RecoversAndLogs(t *testing.T) {
	base, hook := newTestContextLogger()

	func() {
		defer LogPanic(base)
		panic("something broke")
	}()

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "panic recovered" {
		t.Fatalf("entry = %v, want a 'panic recovered' log line", entry)
	}
	if entry.Data["panic"] != "something broke" {
		t.Errorf("panic field = %v, want 'something broke'", entry.Data["panic"])
	}
}

func TestPhaseFields_AssetFields_ShapeStandardFields(t *testing.T) {
	pf := PhaseFields("created", 3, 0)
	if pf["phase"] != "created" || pf["count"] != 3 {
		t.Errorf("PhaseFields = %v", pf)
	}
	if pf["count_human"] != "3" {
		t.Errorf("PhaseFields[count_human] = %v, want 3", pf["count_human"])
	}
	af := AssetFields("R1", "Dataset")
	if af["asset_id"] != "R1" || af["asset_type"] != "Dataset" {
		t.Errorf("AssetFields = %v", af)
	}
}
