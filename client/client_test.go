package client

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stratakv/strata-go/config"
	"github.com/stratakv/strata-go/engine"
	"github.com/stratakv/strata-go/enginetest"
	"github.com/stratakv/strata-go/errors"
	"github.com/stratakv/strata-go/route"
)

func openClient(t *testing.T, eng *enginetest.Engine) *Client {
	t.Helper()
	c, err := Open(context.Background(), config.Default("localhost", 6379), eng)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return c
}

// checkClean asserts the boundary contracts held: no allocator misuse,
// no double or missed frees, nothing left live.
func checkClean(t *testing.T, eng *enginetest.Engine) {
	t.Helper()
	eng.WaitIdle()
	if misuse := eng.Misuse(); len(misuse) != 0 {
		t.Fatalf("boundary misuse: %v", misuse)
	}
	if n := eng.LiveValues(); n != 0 {
		t.Fatalf("%d values leaked", n)
	}
	if n := eng.LiveStrings(); n != 0 {
		t.Fatalf("%d error strings leaked", n)
	}
}

func TestOpen_PingClose(t *testing.T) {
	eng := enginetest.New()
	c := openClient(t, eng)

	pong, err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if pong != "PONG" {
		t.Fatalf("expected PONG, got %q", pong)
	}
	if c.ID() == "" {
		t.Fatal("client id should be set")
	}

	c.Close()
	c.Close()
	if n := eng.CloseCalls(); n != 1 {
		t.Fatalf("engine close should run once, ran %d times", n)
	}
	checkClean(t, eng)
}

func TestOpen_InvalidConfigFailsBeforeEngine(t *testing.T) {
	eng := enginetest.New()

	_, err := Open(context.Background(), config.Config{}, eng)
	if !errors.IsKind(err, errors.KindParameter) {
		t.Fatalf("expected parameter error, got %v", err)
	}
	if n := eng.CreateCalls(); n != 0 {
		t.Fatalf("engine create should not run on invalid config, ran %d times", n)
	}
}

func TestOpen_StatusMapping(t *testing.T) {
	cases := []struct {
		status engine.CreateStatus
		kind   errors.Kind
	}{
		{engine.StatusParameterError, errors.KindParameter},
		{engine.StatusThreadCreationError, errors.KindThreadCreation},
		{engine.StatusConnectionTimeout, errors.KindConnectionTimeout},
		{engine.StatusConnectionFailed, errors.KindConnectionFailed},
		{engine.StatusClusterConnectionFailed, errors.KindClusterConnection},
		{engine.StatusConnectionIOError, errors.KindConnectionIO},
		{engine.StatusUnknownError, errors.KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.status.String(), func(t *testing.T) {
			eng := enginetest.New()
			eng.CreateStatus = tc.status
			eng.CreateMessage = "engine said no"

			_, err := Open(context.Background(), config.Default("localhost", 6379), eng)
			if !errors.IsKind(err, tc.kind) {
				t.Fatalf("expected kind %q, got %v", tc.kind, err)
			}
			if !strings.Contains(err.Error(), "engine said no") {
				t.Fatalf("engine message lost: %v", err)
			}
			checkClean(t, eng)
		})
	}
}

func TestClient_SetGetDel(t *testing.T) {
	eng := enginetest.New()
	c := openClient(t, eng)
	defer c.Close()
	ctx := context.Background()

	if _, found, err := c.Get(ctx, "k"); err != nil || found {
		t.Fatalf("missing key: expected not found, got found=%v err=%v", found, err)
	}

	if err := c.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, found, err := c.Get(ctx, "k")
	if err != nil || !found || got != "v" {
		t.Fatalf("Get after Set: got %q found=%v err=%v", got, found, err)
	}

	n, err := c.Exists(ctx, "k", "absent")
	if err != nil || n != 1 {
		t.Fatalf("Exists: got %d err=%v", n, err)
	}
	n, err = c.Del(ctx, "k", "absent")
	if err != nil || n != 1 {
		t.Fatalf("Del: got %d err=%v", n, err)
	}
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Fatal("key should be gone after Del")
	}

	c.Close()
	checkClean(t, eng)
}

func TestClient_CustomCommand(t *testing.T) {
	eng := enginetest.New()
	c := openClient(t, eng)
	defer c.Close()
	ctx := context.Background()

	if _, err := c.CustomCommand(ctx, "SET", "k", "v"); err != nil {
		t.Fatalf("custom SET failed: %v", err)
	}
	v, err := c.CustomCommand(ctx, "GET", "k")
	if err != nil {
		t.Fatalf("custom GET failed: %v", err)
	}
	if v != "v" {
		t.Fatalf("custom GET: expected %q, got %#v", "v", v)
	}

	if _, err := c.CustomCommand(ctx, "NOSUCH"); !errors.IsKind(err, errors.KindCommand) {
		t.Fatalf("unknown command should fail as command error, got %v", err)
	}
	if _, err := c.CustomCommand(ctx); !errors.IsKind(err, errors.KindRequest) {
		t.Fatalf("empty custom command should fail client-side, got %v", err)
	}

	c.Close()
	checkClean(t, eng)
}

func TestDispatch_RouteReachesEngine(t *testing.T) {
	eng := enginetest.New()
	c := openClient(t, eng)
	defer c.Close()

	if _, err := c.Dispatch(context.Background(), engine.OpSet, []string{"k", "v"}, route.AllPrimaries); err != nil {
		t.Fatalf("routed dispatch failed: %v", err)
	}

	want, err := route.Translate(route.AllPrimaries)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	got := eng.LastRoute()
	if string(got) != string(want) {
		t.Fatalf("route bytes mismatch:\n got %x\nwant %x", got, want)
	}

	c.Close()
	checkClean(t, eng)
}

func TestDispatch_ArgumentsSurviveBothEncodings(t *testing.T) {
	eng := enginetest.New()
	c := openClient(t, eng)
	defer c.Close()
	ctx := context.Background()

	// Few short arguments ride the inline block; more than twenty fall
	// back to per-argument allocations. The engine must observe the
	// same payloads either way.
	inline := []string{"k1", "k2", "k3"}
	if _, err := c.Exists(ctx, inline...); err != nil {
		t.Fatalf("inline dispatch failed: %v", err)
	}

	heap := make([]string, 24)
	for i := range heap {
		heap[i] = "key-" + strings.Repeat("x", i)
	}
	if _, err := c.Exists(ctx, heap...); err != nil {
		t.Fatalf("heap dispatch failed: %v", err)
	}

	cmds := eng.Commands()
	if len(cmds) != 2 {
		t.Fatalf("expected 2 recorded commands, got %d", len(cmds))
	}
	for i, want := range [][]string{inline, heap} {
		got := cmds[i].Args
		if len(got) != len(want) {
			t.Fatalf("command %d: expected %d args, got %d", i, len(want), len(got))
		}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("command %d arg %d: expected %q, got %q", i, j, want[j], got[j])
			}
		}
	}
	for _, prov := range cmds[0].Provenance {
		if prov != 0 {
			t.Fatal("short vector should use the inline block")
		}
	}
	for _, prov := range cmds[1].Provenance {
		if prov != 1 {
			t.Fatal("long vector should use per-argument allocations")
		}
	}

	c.Close()
	checkClean(t, eng)
}

func TestDispatch_CommandFailure(t *testing.T) {
	eng := enginetest.New()
	eng.FailCommand = func(op engine.Opcode, args []string) (string, bool) {
		return "forced failure", true
	}
	c := openClient(t, eng)
	defer c.Close()

	_, err := c.Dispatch(context.Background(), engine.OpPing, nil, nil)
	if !errors.IsKind(err, errors.KindCommand) {
		t.Fatalf("expected command error, got %v", err)
	}
	if !strings.Contains(err.Error(), "forced failure") {
		t.Fatalf("engine message lost: %v", err)
	}

	c.Close()
	checkClean(t, eng)
}

func TestDispatch_AfterClose(t *testing.T) {
	eng := enginetest.New()
	c := openClient(t, eng)
	c.Close()

	if _, err := c.Ping(context.Background()); !errors.IsKind(err, errors.KindClosing) {
		t.Fatalf("dispatch after close should fail as closing, got %v", err)
	}
	if _, err := c.DispatchBlocking(context.Background(), engine.OpPing, nil, nil); !errors.IsKind(err, errors.KindClosing) {
		t.Fatalf("blocking dispatch after close should fail as closing, got %v", err)
	}
	checkClean(t, eng)
}

func TestDispatch_ContextCanceled(t *testing.T) {
	eng := enginetest.New()
	eng.CompletionDelay = 50 * time.Millisecond
	c := openClient(t, eng)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := c.Dispatch(ctx, engine.OpPing, nil, nil)
	if !errors.IsKind(err, errors.KindCanceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if c.pending.count() != 0 {
		t.Fatalf("abandoned operation left in registry")
	}

	// The late completion must release its value instead of leaking it.
	c.Close()
	checkClean(t, eng)
}

func TestDispatchBlocking(t *testing.T) {
	eng := enginetest.New()
	c := openClient(t, eng)
	defer c.Close()
	ctx := context.Background()

	if _, err := c.DispatchBlocking(ctx, engine.OpSet, []string{"k", "v"}, nil); err != nil {
		t.Fatalf("blocking SET failed: %v", err)
	}
	v, err := c.DispatchBlocking(ctx, engine.OpGet, []string{"k"}, nil)
	if err != nil {
		t.Fatalf("blocking GET failed: %v", err)
	}
	if v != "v" {
		t.Fatalf("blocking GET: expected %q, got %#v", "v", v)
	}

	_, err = c.DispatchBlocking(ctx, engine.OpGet, nil, nil)
	if !errors.IsKind(err, errors.KindCommand) {
		t.Fatalf("expected engine-reported command error, got %v", err)
	}

	c.Close()
	checkClean(t, eng)
}

func TestPubSubNotificationsLeaveDispatchesAlone(t *testing.T) {
	eng := enginetest.New()
	eng.CompletionDelay = 5 * time.Millisecond
	c := openClient(t, eng)

	const n = 20
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := c.Dispatch(context.Background(), engine.OpPing, nil, nil)
			results <- err
		}()
	}

	// Notifications interleave with in-flight commands; they carry no
	// token, so none of them may resolve a pending operation.
	for i := 0; i < 5; i++ {
		eng.Publish(engine.PushMessage, "news", "hello")
	}

	for i := 0; i < n; i++ {
		if err := <-results; err != nil {
			t.Fatalf("dispatch %d failed: %v", i, err)
		}
	}
	if c.pending.count() != 0 {
		t.Fatalf("registry not empty: %d entries", c.pending.count())
	}

	// checkClean proves every notification payload was released.
	c.Close()
	checkClean(t, eng)
}

func TestClose_SweepsInFlight(t *testing.T) {
	eng := enginetest.New()
	eng.CompletionDelay = 20 * time.Millisecond
	c := openClient(t, eng)

	const n = 1000
	results := make(chan error, n)
	var started sync.WaitGroup
	for i := 0; i < n; i++ {
		started.Add(1)
		go func() {
			started.Done()
			_, err := c.Dispatch(context.Background(), engine.OpPing, nil, nil)
			results <- err
		}()
	}
	started.Wait()
	time.Sleep(time.Millisecond)

	c.Close()

	for i := 0; i < n; i++ {
		err := <-results
		if err != nil && !errors.IsKind(err, errors.KindClosing) {
			t.Fatalf("dispatch %d: expected success or closing error, got %v", i, err)
		}
	}
	if c.pending.count() != 0 {
		t.Fatalf("registry not empty after close: %d entries", c.pending.count())
	}
	checkClean(t, eng)
}

func TestConcurrentDispatchRacingClose(t *testing.T) {
	eng := enginetest.New()
	c := openClient(t, eng)
	ctx := context.Background()

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				var err error
				if i%2 == 0 {
					err = c.Set(ctx, "k", "v")
				} else {
					_, _, err = c.Get(ctx, "k")
				}
				if err != nil && !errors.IsKind(err, errors.KindClosing) {
					t.Errorf("worker %d op %d: unexpected error %v", w, i, err)
					return
				}
			}
		}(w)
	}

	time.Sleep(time.Millisecond)
	c.Close()
	wg.Wait()

	if c.pending.count() != 0 {
		t.Fatalf("registry not empty after close: %d entries", c.pending.count())
	}
	checkClean(t, eng)
}
