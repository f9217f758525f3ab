package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bianoble/pubsync/internal/copier"
	"github.com/bianoble/pubsync/internal/gitrepo"
)

// fakePublisher scripts the version-control surface. Push errors and
// rebase results are consumed one per call; exhausted scripts fall back
// to success and "nothing fetched".
type fakePublisher struct {
	pushErrs []error
	rebase   []bool
	pending  []bool

	stageErr  error
	commitErr error

	// dirty models worktree content not yet committed. StageAll only
	// stages something when dirty; a rebase reopens the diff.
	dirty bool

	identityName  string
	identityEmail string
	staged        bool
	stageCalls    int
	commitCalls   int
	pushCalls     int
	messages      []string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{dirty: true}
}

func (f *fakePublisher) SetIdentity(ctx context.Context, name, email string) error {
	f.identityName = name
	f.identityEmail = email
	return nil
}

func (f *fakePublisher) StageAll(ctx context.Context, path string) error {
	if f.stageErr != nil {
		return f.stageErr
	}
	f.stageCalls++
	if f.dirty {
		f.staged = true
	}
	return nil
}

func (f *fakePublisher) HasStagedChanges(ctx context.Context) (bool, error) {
	return f.staged, nil
}

func (f *fakePublisher) HasPendingChanges(ctx context.Context, remote, branch string) (bool, error) {
	if len(f.pending) > 0 {
		v := f.pending[0]
		f.pending = f.pending[1:]
		return v, nil
	}
	return true, nil
}

func (f *fakePublisher) Commit(ctx context.Context, message, name, email string) (string, error) {
	if f.commitErr != nil {
		return "", f.commitErr
	}
	f.commitCalls++
	f.staged = false
	f.dirty = false
	f.messages = append(f.messages, message)
	return fmt.Sprintf("commit-%d", f.commitCalls), nil
}

func (f *fakePublisher) PullRebase(ctx context.Context, remote, branch string) (bool, error) {
	if len(f.rebase) > 0 {
		v := f.rebase[0]
		f.rebase = f.rebase[1:]
		if v {
			f.dirty = true
		}
		return v, nil
	}
	return false, nil
}

func (f *fakePublisher) Push(ctx context.Context, remote, branch string) error {
	f.pushCalls++
	if len(f.pushErrs) > 0 {
		err := f.pushErrs[0]
		f.pushErrs = f.pushErrs[1:]
		return err
	}
	return nil
}

type fakeCopier struct {
	stats copier.Stats
	err   error
	calls int
}

func (f *fakeCopier) CopyTree(src, dst string, dryRun bool) (copier.Stats, error) {
	f.calls++
	return f.stats, f.err
}

func newSynchronizer(repo *fakePublisher, cp *fakeCopier, delays *[]time.Duration) *Synchronizer {
	return &Synchronizer{
		Repo:   repo,
		Copier: cp,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		sleep: func(ctx context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		},
	}
}

func validRequest() Request {
	return Request{
		SourceDir: "/src",
		TargetDir: "/repo/docs",
		Branch:    "main",
		Remote:    "origin",
		Author:    Identity{Name: "bot", Email: "bot@localhost"},
	}
}

func TestSynchronizeValidatesBeforeTouchingAnything(t *testing.T) {
	repo := newFakePublisher()
	cp := &fakeCopier{}
	var delays []time.Duration
	s := newSynchronizer(repo, cp, &delays)

	_, err := s.Synchronize(context.Background(), Request{Branch: "main"}, Options{})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if cp.calls != 0 {
		t.Errorf("copier called %d times before validation failed", cp.calls)
	}
	if repo.stageCalls != 0 || repo.identityName != "" {
		t.Errorf("repository touched on invalid request: stage=%d identity=%q",
			repo.stageCalls, repo.identityName)
	}
}

func TestSynchronizeNoChanges(t *testing.T) {
	repo := newFakePublisher()
	repo.pending = []bool{false}
	cp := &fakeCopier{stats: copier.Stats{Skipped: 4}}
	var delays []time.Duration
	s := newSynchronizer(repo, cp, &delays)

	report, err := s.Synchronize(context.Background(), validRequest(), Options{})
	if err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	if report.Outcome != OutcomeNoChanges {
		t.Errorf("outcome = %v, want %v", report.Outcome, OutcomeNoChanges)
	}
	if report.Phase != PhaseIdle {
		t.Errorf("phase = %v, want %v", report.Phase, PhaseIdle)
	}
	if repo.commitCalls != 0 || repo.pushCalls != 0 {
		t.Errorf("no-changes run committed %d and pushed %d times",
			repo.commitCalls, repo.pushCalls)
	}
	if report.Commit != "" {
		t.Errorf("commit = %q, want empty", report.Commit)
	}
}

// Running twice against an already-published state must be a no-op the
// second time.
func TestSynchronizeIdempotent(t *testing.T) {
	repo := newFakePublisher()
	cp := &fakeCopier{stats: copier.Stats{Copied: 2}}
	var delays []time.Duration
	s := newSynchronizer(repo, cp, &delays)

	report, err := s.Synchronize(context.Background(), validRequest(), Options{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if report.Outcome != OutcomePublishSucceeded {
		t.Fatalf("first run outcome = %v", report.Outcome)
	}

	// Second run: nothing dirty, heads match.
	repo.pending = []bool{false}
	cp.stats = copier.Stats{Skipped: 2}
	report, err = s.Synchronize(context.Background(), validRequest(), Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Outcome != OutcomeNoChanges {
		t.Errorf("second run outcome = %v, want %v", report.Outcome, OutcomeNoChanges)
	}
	if repo.commitCalls != 1 || repo.pushCalls != 1 {
		t.Errorf("second run added commits or pushes: commits=%d pushes=%d",
			repo.commitCalls, repo.pushCalls)
	}
}

func TestSynchronizeDryRun(t *testing.T) {
	repo := newFakePublisher()
	cp := &fakeCopier{stats: copier.Stats{Copied: 3, Skipped: 1}}
	var delays []time.Duration
	s := newSynchronizer(repo, cp, &delays)

	report, err := s.Synchronize(context.Background(), validRequest(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	if report.Outcome != OutcomeNoChanges {
		t.Errorf("outcome = %v, want %v", report.Outcome, OutcomeNoChanges)
	}
	if report.Copied != 3 || report.Skipped != 1 {
		t.Errorf("stats = %d/%d, want 3/1", report.Copied, report.Skipped)
	}
	if repo.identityName != "" || repo.stageCalls != 0 || repo.pushCalls != 0 {
		t.Errorf("dry run touched the repository")
	}
}

func TestSynchronizePublishFirstAttempt(t *testing.T) {
	repo := newFakePublisher()
	cp := &fakeCopier{stats: copier.Stats{Copied: 5}}
	var delays []time.Duration
	s := newSynchronizer(repo, cp, &delays)

	report, err := s.Synchronize(context.Background(), validRequest(), Options{})
	if err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	if report.Outcome != OutcomePublishSucceeded {
		t.Errorf("outcome = %v, want %v", report.Outcome, OutcomePublishSucceeded)
	}
	if report.Phase != PhasePublished {
		t.Errorf("phase = %v, want %v", report.Phase, PhasePublished)
	}
	if report.Commit != "commit-1" {
		t.Errorf("commit = %q, want commit-1", report.Commit)
	}
	if len(delays) != 0 {
		t.Errorf("slept %d times on a clean publish", len(delays))
	}
	if repo.identityName != "bot" || repo.identityEmail != "bot@localhost" {
		t.Errorf("identity = %q <%s>", repo.identityName, repo.identityEmail)
	}
}

// One lost push race, then success: exactly one commit, two pushes and a
// single fixed delay.
func TestSynchronizeConflictThenSuccess(t *testing.T) {
	repo := newFakePublisher()
	repo.pushErrs = []error{gitrepo.ErrNotFastForward}
	cp := &fakeCopier{stats: copier.Stats{Copied: 1}}
	var delays []time.Duration
	s := newSynchronizer(repo, cp, &delays)

	report, err := s.Synchronize(context.Background(), validRequest(), Options{
		MaxAttempts: 3,
		RetryDelay:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	if report.Outcome != OutcomePublishSucceeded {
		t.Errorf("outcome = %v, want %v", report.Outcome, OutcomePublishSucceeded)
	}
	if repo.commitCalls != 1 {
		t.Errorf("commits = %d, want 1", repo.commitCalls)
	}
	if repo.pushCalls != 2 {
		t.Errorf("pushes = %d, want 2", repo.pushCalls)
	}
	if len(delays) != 1 || delays[0] != 5*time.Second {
		t.Errorf("delays = %v, want [5s]", delays)
	}

	var outcomes []Outcome
	for _, a := range report.Attempts {
		outcomes = append(outcomes, a.Outcome)
	}
	want := []Outcome{OutcomeCommitted, OutcomePublishConflict, OutcomePublishSucceeded}
	if len(outcomes) != len(want) {
		t.Fatalf("attempt history = %v, want %v", outcomes, want)
	}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Errorf("attempt[%d] = %v, want %v", i, outcomes[i], want[i])
		}
	}
}

// A conflict where the remote actually moved: the branch is rebased onto
// the remote head and the synced content is committed again on top.
func TestSynchronizeRebaseReplaysContent(t *testing.T) {
	repo := newFakePublisher()
	repo.pushErrs = []error{gitrepo.ErrNotFastForward}
	repo.rebase = []bool{false, true}
	cp := &fakeCopier{stats: copier.Stats{Copied: 1}}
	var delays []time.Duration
	s := newSynchronizer(repo, cp, &delays)

	report, err := s.Synchronize(context.Background(), validRequest(), Options{
		MaxAttempts: 3,
		RetryDelay:  time.Second,
	})
	if err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	if report.Outcome != OutcomePublishSucceeded {
		t.Errorf("outcome = %v, want %v", report.Outcome, OutcomePublishSucceeded)
	}
	if repo.commitCalls != 2 {
		t.Errorf("commits = %d, want 2 (original plus replay)", repo.commitCalls)
	}
	if report.Commit != "commit-2" {
		t.Errorf("commit = %q, want commit-2", report.Commit)
	}
	if cp.calls != 2 {
		t.Errorf("copier ran %d times, want 2 (initial plus replay)", cp.calls)
	}
}

// k failed pushes followed by success produce exactly k delays.
func TestSynchronizeFailuresThenSuccess(t *testing.T) {
	for _, k := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("failures=%d", k), func(t *testing.T) {
			repo := newFakePublisher()
			for i := 0; i < k; i++ {
				repo.pushErrs = append(repo.pushErrs, errors.New("remote hung up"))
			}
			cp := &fakeCopier{stats: copier.Stats{Copied: 1}}
			var delays []time.Duration
			s := newSynchronizer(repo, cp, &delays)

			report, err := s.Synchronize(context.Background(), validRequest(), Options{
				MaxAttempts: k + 1,
				RetryDelay:  2 * time.Second,
			})
			if err != nil {
				t.Fatalf("Synchronize() error = %v", err)
			}
			if report.Outcome != OutcomePublishSucceeded {
				t.Errorf("outcome = %v, want %v", report.Outcome, OutcomePublishSucceeded)
			}
			if len(delays) != k {
				t.Errorf("delays = %d, want %d", len(delays), k)
			}
			for i, d := range delays {
				if d != 2*time.Second {
					t.Errorf("delay[%d] = %v, want 2s", i, d)
				}
			}
			if repo.pushCalls != k+1 {
				t.Errorf("pushes = %d, want %d", repo.pushCalls, k+1)
			}
		})
	}
}

// Exhaustion runs exactly MaxAttempts attempts with MaxAttempts-1 delays
// and leaves the local commit in place.
func TestSynchronizeExhaustsAttempts(t *testing.T) {
	repo := newFakePublisher()
	repo.pushErrs = []error{
		errors.New("remote hung up"),
		errors.New("remote hung up"),
		errors.New("remote hung up"),
	}
	cp := &fakeCopier{stats: copier.Stats{Copied: 1}}
	var delays []time.Duration
	s := newSynchronizer(repo, cp, &delays)

	report, err := s.Synchronize(context.Background(), validRequest(), Options{
		MaxAttempts: 3,
		RetryDelay:  time.Second,
	})
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("err = %v, want ErrAttemptsExhausted", err)
	}
	if report.Outcome != OutcomePublishFailed {
		t.Errorf("outcome = %v, want %v", report.Outcome, OutcomePublishFailed)
	}
	if report.Phase != PhaseExhausted {
		t.Errorf("phase = %v, want %v", report.Phase, PhaseExhausted)
	}
	if repo.pushCalls != 3 {
		t.Errorf("pushes = %d, want 3", repo.pushCalls)
	}
	if len(delays) != 2 {
		t.Errorf("delays = %d, want 2", len(delays))
	}
	if repo.commitCalls != 1 {
		t.Errorf("commits = %d, want 1", repo.commitCalls)
	}
	if report.Commit == "" {
		t.Error("local commit was not kept after exhaustion")
	}
}

func TestSynchronizeConflictExhaustion(t *testing.T) {
	repo := newFakePublisher()
	repo.pushErrs = []error{gitrepo.ErrNotFastForward, gitrepo.ErrNotFastForward}
	cp := &fakeCopier{stats: copier.Stats{Copied: 1}}
	var delays []time.Duration
	s := newSynchronizer(repo, cp, &delays)

	report, err := s.Synchronize(context.Background(), validRequest(), Options{
		MaxAttempts: 2,
		RetryDelay:  time.Second,
	})
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("err = %v, want ErrAttemptsExhausted", err)
	}
	if report.Outcome != OutcomePublishConflict {
		t.Errorf("outcome = %v, want %v", report.Outcome, OutcomePublishConflict)
	}
}

// Staging failures are not transient; they abort without retrying.
func TestSynchronizeStageErrorAborts(t *testing.T) {
	repo := newFakePublisher()
	repo.stageErr = errors.New("index locked")
	cp := &fakeCopier{stats: copier.Stats{Copied: 1}}
	var delays []time.Duration
	s := newSynchronizer(repo, cp, &delays)

	_, err := s.Synchronize(context.Background(), validRequest(), Options{MaxAttempts: 3})
	if err == nil {
		t.Fatal("Synchronize() error = nil, want staging error")
	}
	if errors.Is(err, ErrAttemptsExhausted) {
		t.Errorf("staging error classified as exhaustion: %v", err)
	}
	if repo.pushCalls != 0 || len(delays) != 0 {
		t.Errorf("staging error was retried: pushes=%d delays=%d",
			repo.pushCalls, len(delays))
	}
}

func TestSynchronizeCopyErrorAborts(t *testing.T) {
	repo := newFakePublisher()
	cp := &fakeCopier{err: errors.New("permission denied")}
	var delays []time.Duration
	s := newSynchronizer(repo, cp, &delays)

	_, err := s.Synchronize(context.Background(), validRequest(), Options{})
	if err == nil {
		t.Fatal("Synchronize() error = nil, want copy error")
	}
	if repo.stageCalls != 0 {
		t.Errorf("repository staged after failed copy")
	}
}

func TestSynchronizeCanceledContext(t *testing.T) {
	repo := newFakePublisher()
	cp := &fakeCopier{stats: copier.Stats{Copied: 1}}
	var delays []time.Duration
	s := newSynchronizer(repo, cp, &delays)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Synchronize(ctx, validRequest(), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if repo.pushCalls != 0 {
		t.Errorf("pushed %d times on a canceled context", repo.pushCalls)
	}
}

func TestSynchronizeBadMessageTemplate(t *testing.T) {
	repo := newFakePublisher()
	cp := &fakeCopier{stats: copier.Stats{Copied: 1}}
	var delays []time.Duration
	s := newSynchronizer(repo, cp, &delays)

	req := validRequest()
	req.Message = "publish {{.NoSuchField}}"
	_, err := s.Synchronize(context.Background(), req, Options{})
	if err == nil {
		t.Fatal("Synchronize() error = nil, want template error")
	}
	if repo.commitCalls != 0 {
		t.Errorf("committed with a broken message template")
	}
}
