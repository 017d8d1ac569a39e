package system

import (
	"context"
	"errors"
	"testing"
)

type probeService struct {
	name      string
	failStart bool
	log       *[]string
}

func (p *probeService) Name() string { return p.name }

func (p *probeService) Start(_ context.Context) error {
	*p.log = append(*p.log, "start:"+p.name)
	if p.failStart {
		return errors.New("boom")
	}
	return nil
}

func (p *probeService) Stop(_ context.Context) error {
	*p.log = append(*p.log, "stop:"+p.name)
	return nil
}

func TestManagerStartStopOrder(t *testing.T) {
	var log []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(&probeService{name: name, log: &log}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log[%d] = %s, want %s", i, log[i], want[i])
		}
	}
}

func TestManagerStartFailureUnwinds(t *testing.T) {
	var log []string
	m := NewManager()
	_ = m.Register(&probeService{name: "a", log: &log})
	_ = m.Register(&probeService{name: "b", failStart: true, log: &log})
	_ = m.Register(&probeService{name: "c", log: &log})

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected start error")
	}

	want := []string{"start:a", "start:b", "stop:a"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log[%d] = %s, want %s", i, log[i], want[i])
		}
	}
}

func TestManagerRegistrationGuards(t *testing.T) {
	var log []string
	m := NewManager()

	if err := m.Register(nil); err == nil {
		t.Error("expected error for nil service")
	}
	if err := m.Register(NoopService{}); err == nil {
		t.Error("expected error for empty name")
	}
	if err := m.Register(NoopService{ServiceName: "x"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(NoopService{ServiceName: "x"}); err == nil {
		t.Error("expected error for duplicate name")
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Register(&probeService{name: "late", log: &log}); err == nil {
		t.Error("expected error for registration after start")
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
