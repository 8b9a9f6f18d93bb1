package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bryanwahyu/finsight/internal/application"
	domain "github.com/bryanwahyu/finsight/internal/domain/analysis"
	"github.com/bryanwahyu/finsight/internal/infra/workfile"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRunner records what the working file held when it was invoked
type fakeRunner struct {
	mu       sync.Mutex
	seen     []string
	requests []domain.RunRequest
	result   domain.RunResult
	err      error
	delay    time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeRunner) Run(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	b, _ := os.ReadFile(req.InputPath)
	f.mu.Lock()
	f.seen = append(f.seen, string(b))
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.RunResult{ExitCode: -1}, ctx.Err()
		}
	}
	return f.result, f.err
}

type failingWriter struct{ err error }

func (w failingWriter) WriteFile(string, []byte) error { return w.err }
func (w failingWriter) Remove(string) error            { return nil }

func newTestService(t *testing.T, r domain.Runner, opts Options) *Service {
	t.Helper()
	if opts.WorkDir == "" {
		opts.WorkDir = t.TempDir()
	}
	return NewService(r, workfile.NewWriter(), application.FixedClock{T: time.Unix(1700000000, 0)}, opts)
}

func TestHandleUpload_Success(t *testing.T) {
	r := &fakeRunner{result: domain.RunResult{Stdout: []byte("{\"score\": 42}\n"), DurationMS: 7}}
	svc := newTestService(t, r, Options{})

	res, err := svc.HandleUpload(context.Background(), []byte(`{"a": 1}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"score":42}`, string(res.Body))
	require.Equal(t, `{"score":42}`, string(res.Body))
	require.Equal(t, []string{`{"a":1}`}, r.seen)
	require.Equal(t, svc.SharedPath(), res.WorkingFile)
	require.Equal(t, time.Unix(1700000000, 0), res.StartedAt)
	require.EqualValues(t, 7, res.DurationMS)
	require.NotEmpty(t, res.RunID)
}

func TestHandleUpload_WorkingFileHoldsCanonicalPayload(t *testing.T) {
	payloads := map[string]string{
		"object": "{ \"b\" : [1, 2,\n 3], \"a\": {\"x\": null} }",
		"array":  "[1, 2, 3]",
		"string": `  "hello world"  `,
		"number": "1.50",
		"bool":   "true",
		"utf8":   "{\"name\":\"\xff\xfeok\"}",
	}
	want := map[string]string{
		"object": `{"b":[1,2,3],"a":{"x":null}}`,
		"array":  `[1,2,3]`,
		"string": `"hello world"`,
		"number": `1.50`,
		"bool":   `true`,
		"utf8":   "{\"name\":\"\uFFFDok\"}",
	}
	for name, p := range payloads {
		t.Run(name, func(t *testing.T) {
			r := &fakeRunner{result: domain.RunResult{Stdout: []byte(`{}`)}}
			svc := newTestService(t, r, Options{})
			_, err := svc.HandleUpload(context.Background(), []byte(p))
			require.NoError(t, err)
			require.Equal(t, []string{want[name]}, r.seen)
			require.True(t, utf8.ValidString(r.seen[0]))
		})
	}
}

func TestHandleUpload_NonZeroExit(t *testing.T) {
	r := &fakeRunner{result: domain.RunResult{
		Stdout:   []byte(`{"score":1}`),
		Stderr:   []byte("bad input"),
		ExitCode: 1,
	}}
	svc := newTestService(t, r, Options{})

	_, err := svc.HandleUpload(context.Background(), []byte(`{}`))
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrAnalysisFailure)
	require.False(t, domain.IsMalformedResult(err))
	require.Contains(t, err.Error(), "bad input")

	var ae *domain.AnalysisError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, 1, ae.ExitCode)
	require.Equal(t, domain.StatusAnalysisFailed, domain.StatusOf(err))
}

func TestHandleUpload_LaunchFailure(t *testing.T) {
	launch := errors.New("exec: \"python\": executable file not found in $PATH")
	r := &fakeRunner{result: domain.RunResult{ExitCode: -1}, err: launch}
	svc := newTestService(t, r, Options{})

	_, err := svc.HandleUpload(context.Background(), []byte(`{}`))
	require.ErrorIs(t, err, domain.ErrAnalysisFailure)
	require.ErrorIs(t, err, launch)
	require.Contains(t, err.Error(), "executable file not found")
}

func TestHandleUpload_MalformedResult(t *testing.T) {
	for name, out := range map[string]string{
		"text":     "not-json",
		"empty":    "",
		"blank":    " \n\t",
		"two docs": `{"a":1}{"b":2}`,
		"partial":  `{"a":`,
	} {
		t.Run(name, func(t *testing.T) {
			r := &fakeRunner{result: domain.RunResult{Stdout: []byte(out)}}
			svc := newTestService(t, r, Options{})
			_, err := svc.HandleUpload(context.Background(), []byte(`[1,2,3]`))
			require.ErrorIs(t, err, domain.ErrMalformedResult)
			require.False(t, domain.IsAnalysisFailure(err))
			require.Equal(t, domain.StatusMalformedResult, domain.StatusOf(err))
		})
	}
}

func TestHandleUpload_InvalidPayload(t *testing.T) {
	for _, p := range []string{"", "   ", "{", "{'a':1}", `{"a":1} {"b":2}`} {
		r := &fakeRunner{result: domain.RunResult{Stdout: []byte(`{}`)}}
		svc := newTestService(t, r, Options{})
		_, err := svc.HandleUpload(context.Background(), []byte(p))
		require.ErrorIs(t, err, domain.ErrInvalidPayload, "payload %q", p)
		require.Empty(t, r.seen, "runner must not run for %q", p)
	}
}

func TestHandleUpload_WriteFailure(t *testing.T) {
	r := &fakeRunner{result: domain.RunResult{Stdout: []byte(`{}`)}}
	svc := NewService(r, failingWriter{err: os.ErrPermission}, nil, Options{WorkDir: t.TempDir()})

	_, err := svc.HandleUpload(context.Background(), []byte(`{}`))
	require.ErrorIs(t, err, domain.ErrWriteFailure)
	require.ErrorIs(t, err, os.ErrPermission)
	require.Empty(t, r.requests)
	require.Equal(t, domain.StatusWriteFailed, domain.StatusOf(err))
}

func TestHandleUpload_Idempotent(t *testing.T) {
	r := &fakeRunner{result: domain.RunResult{Stdout: []byte(`{"score":3}`)}}
	svc := newTestService(t, r, Options{})

	first, err := svc.HandleUpload(context.Background(), []byte(`{"a":[1,2]}`))
	require.NoError(t, err)
	onDisk1, err := os.ReadFile(svc.SharedPath())
	require.NoError(t, err)

	second, err := svc.HandleUpload(context.Background(), []byte(`{"a":[1,2]}`))
	require.NoError(t, err)
	onDisk2, err := os.ReadFile(svc.SharedPath())
	require.NoError(t, err)

	require.Equal(t, onDisk1, onDisk2)
	require.Equal(t, first.Body, second.Body)
	require.Equal(t, r.seen[0], r.seen[1])
	require.NotEqual(t, first.RunID, second.RunID)
}

func TestHandleUpload_SharedLayoutSerializesCalls(t *testing.T) {
	r := &fakeRunner{result: domain.RunResult{Stdout: []byte(`{}`)}, delay: 20 * time.Millisecond}
	svc := newTestService(t, r, Options{Layout: domain.LayoutShared})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.HandleUpload(context.Background(), []byte(`{}`))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, r.maxInFlight.Load())
	require.Len(t, r.seen, 5)
}

func TestHandleUpload_PerRequestLayout(t *testing.T) {
	r := &fakeRunner{result: domain.RunResult{Stdout: []byte(`{"ok":true}`)}}
	dir := t.TempDir()
	svc := newTestService(t, r, Options{Layout: domain.LayoutPerRequest, WorkDir: dir, WorkingFile: "data.json"})

	res, err := svc.HandleUpload(context.Background(), []byte(`{"n":1}`))
	require.NoError(t, err)
	require.Equal(t, []string{`{"n":1}`}, r.seen)

	req := r.requests[0]
	require.Equal(t, []string{req.InputPath}, req.ExtraArgs)
	require.Equal(t, filepath.Join(dir, "data-"+string(res.RunID)+".json"), req.InputPath)

	// per-request files do not outlive the call
	_, err = os.Stat(req.InputPath)
	require.True(t, os.IsNotExist(err))
}

func TestHandleUpload_PerRequestLayoutBoundedConcurrency(t *testing.T) {
	r := &fakeRunner{result: domain.RunResult{Stdout: []byte(`{}`)}, delay: 30 * time.Millisecond}
	svc := newTestService(t, r, Options{Layout: domain.LayoutPerRequest, MaxConcurrent: 2})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.HandleUpload(context.Background(), []byte(`{}`))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, r.maxInFlight.Load(), int32(2))
}

func TestHandleUpload_TimeoutIsAnalysisFailure(t *testing.T) {
	r := &fakeRunner{result: domain.RunResult{Stdout: []byte(`{}`)}, delay: time.Second}
	svc := newTestService(t, r, Options{Timeout: 20 * time.Millisecond})

	_, err := svc.HandleUpload(context.Background(), []byte(`{}`))
	require.ErrorIs(t, err, domain.ErrAnalysisFailure)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandleUpload_CancelledWhileQueued(t *testing.T) {
	r := &fakeRunner{result: domain.RunResult{Stdout: []byte(`{}`)}, delay: 200 * time.Millisecond}
	svc := newTestService(t, r, Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.HandleUpload(context.Background(), []byte(`{}`))
	}()
	require.Eventually(t, func() bool { return r.inFlight.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.HandleUpload(ctx, []byte(`{}`))
	require.ErrorIs(t, err, domain.ErrAnalysisFailure)
	require.ErrorIs(t, err, context.Canceled)
	<-done
}

func TestHandleUpload_QueueTimeoutIsAnalysisFailure(t *testing.T) {
	r := &fakeRunner{result: domain.RunResult{Stdout: []byte(`{}`)}, delay: 300 * time.Millisecond}
	svc := newTestService(t, r, Options{QueueTimeout: 20 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.HandleUpload(context.Background(), []byte(`{"first":true}`))
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return r.inFlight.Load() == 1 }, time.Second, time.Millisecond)

	_, err := svc.HandleUpload(context.Background(), []byte(`{"second":true}`))
	require.ErrorIs(t, err, domain.ErrAnalysisFailure)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Contains(t, err.Error(), "no analysis slot free")
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	require.Equal(t, []string{`{"first":true}`}, r.seen)
}

func TestParseResult(t *testing.T) {
	got, err := ParseResult([]byte("  {\n  \"total_revenue\": 5.5e7,\n  \"iscr_flag\": 1\n}\n"))
	require.NoError(t, err)
	require.Equal(t, `{"total_revenue":5.5e7,"iscr_flag":1}`, string(got))
}
