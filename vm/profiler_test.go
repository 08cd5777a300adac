package vm

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestProfilerHotThreshold(t *testing.T) {
	p := NewProfiler()
	p.HotThreshold = 5

	var hot []string
	p.OnHot = func(fp *FunctionProfile) { hot = append(hot, fp.Name) }

	if p.Record("Fib", false) {
		t.Error("should not be hot after 1 call")
	}
	profile := p.Profile("fib")
	if profile == nil || profile.Calls != 1 {
		t.Fatalf("profile = %+v", profile)
	}

	var becameHot bool
	for range 4 {
		becameHot = p.Record("fib", false)
	}
	if !becameHot || !profile.IsHot {
		t.Error("should become hot at the threshold")
	}
	if p.Record("fib", false) {
		t.Error("a hot function only becomes hot once")
	}
	if len(hot) != 1 || hot[0] != "Fib" {
		t.Errorf("OnHot calls = %v", hot)
	}
}

func TestProfilerStatsAndTop(t *testing.T) {
	p := NewProfiler()
	for range 3 {
		p.Record("a", false)
	}
	p.Record("b", false)
	for range 2 {
		p.Record("strlen", true)
	}

	stats := p.Stats()
	if stats.Functions != 3 || stats.UserCalls != 4 || stats.BuiltinCalls != 2 || stats.TotalCalls != 6 {
		t.Errorf("stats = %+v", stats)
	}

	top := p.Top(2)
	if len(top) != 2 || top[0].Name != "a" || top[1].Name != "strlen" {
		t.Errorf("top = %v", top)
	}
	if len(p.Top(-1)) != 3 {
		t.Error("a negative n returns everything")
	}

	p.Reset()
	if p.Stats().Functions != 0 {
		t.Error("Reset should clear profiles")
	}
}

func TestProfilerConcurrent(t *testing.T) {
	p := NewProfiler()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				p.Record("f", false)
			}
		}()
	}
	wg.Wait()
	if got := p.Profile("f").Calls; got != 800 {
		t.Errorf("calls = %d, want 800", got)
	}
}

func TestInterpreterRecordsCalls(t *testing.T) {
	p := NewProfiler()
	interp := NewInterpreter(WithProfiler(p))
	if interp.Profiler() != p {
		t.Fatal("WithProfiler not applied")
	}
	for range 3 {
		if _, err := interp.Call("strlen", NewString("x")); err != nil {
			t.Fatal(err)
		}
	}
	fp := p.Profile("STRLEN")
	if fp == nil || fp.Calls != 3 || !fp.Builtin {
		t.Errorf("profile = %+v", fp)
	}
}

// ---------------------------------------------------------------------------
// Cancellation
// ---------------------------------------------------------------------------

func TestRunContextCancelled(t *testing.T) {
	// while (true) {}
	u := assemble(t, "main", nil, func(ub *UnitBuilder, code *BytecodeBuilder) {
		top := code.NewLabel()
		code.Mark(top)
		code.EmitJump(OpJump, top)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	interp, _ := newTestInterpreter(t)
	err := interp.RunContext(ctx, u)
	var e *Error
	if !errors.As(err, &e) || e.Kind != RuntimeError {
		t.Fatalf("err = %v", err)
	}
	if e.Msg != "Execution interrupted: context canceled" {
		t.Errorf("message = %q", e.Msg)
	}
}
