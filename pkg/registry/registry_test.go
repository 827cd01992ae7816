package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/dirmirror/pkg/errors"
	"github.com/sidkik/dirmirror/pkg/mirror"
)

type fakeSubscription struct {
	notifications chan mirror.Notification
	closed        bool
}

func (s *fakeSubscription) Notifications() <-chan mirror.Notification {
	return s.notifications
}

func (s *fakeSubscription) Close() error {
	if !s.closed {
		s.closed = true
		close(s.notifications)
	}
	return nil
}

type mockSubscription struct {
	mock.Mock
}

func (m *mockSubscription) Notifications() <-chan mirror.Notification {
	return m.Called().Get(0).(<-chan mirror.Notification)
}

func (m *mockSubscription) Close() error {
	return m.Called().Error(0)
}

type fakeSource map[string]*fakeSubscription

func (source fakeSource) subscribe(root string, _ mirror.IgnoreSet) (Subscription, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, errors.FileNotFound{Path: root}
	}

	sub := &fakeSubscription{notifications: make(chan mirror.Notification, 16)}
	source[root] = sub
	return sub, nil
}

func writeFile(t *testing.T, path, contents string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}

func readFile(t *testing.T, path string) string {
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(contents)
}

func TestStart(t *testing.T) {
	dir := t.TempDir()
	specs := []mirror.WatchSpec{
		{WatchRoot: filepath.Join(dir, "src1"), TargetRoot: filepath.Join(dir, "dst1")},
		{WatchRoot: filepath.Join(dir, "src2"), TargetRoot: filepath.Join(dir, "dst2")},
	}
	writeFile(t, filepath.Join(dir, "src1", "a.txt"), "hi")
	writeFile(t, filepath.Join(dir, "src2", "b.txt"), "b")
	writeFile(t, filepath.Join(dir, "src2", ".git", "HEAD"), "ref")

	ignore, err := mirror.NewIgnoreSet([]string{".git"}, nil)
	require.NoError(t, err)

	logger, hook := logrusTest.NewNullLogger()
	source := fakeSource{}
	r, err := Start(context.Background(), specs, ignore,
		WithSource(source.subscribe), WithLogger(logger))
	require.NoError(t, err)
	assert.Len(t, r.Mirrors(), 2)

	// Bootstrap.
	assert.Equal(t, "hi", readFile(t, filepath.Join(dir, "dst1", "a.txt")))
	assert.Equal(t, "b", readFile(t, filepath.Join(dir, "dst2", "b.txt")))
	assert.NoDirExists(t, filepath.Join(dir, "dst2", ".git"))

	var messages []string
	for _, entry := range hook.AllEntries() {
		messages = append(messages, entry.Message)
	}
	assert.Contains(t, messages, "Copying any file changes in "+specs[0].WatchRoot+
		" to "+specs[0].TargetRoot)

	// Notifications are routed to the engine for their root.
	writeFile(t, filepath.Join(dir, "src1", "a.txt"), "bye")
	source[specs[0].WatchRoot].notifications <- mirror.Notification{
		Path: filepath.Join(dir, "src1", "a.txt"), Kind: mirror.Modified}
	source[specs[1].WatchRoot].notifications <- mirror.Notification{
		Path: filepath.Join(dir, "src2", "b.txt"), Kind: mirror.Deleted}

	r.Stop()
	require.NoError(t, r.Wait())

	assert.Equal(t, "bye", readFile(t, filepath.Join(dir, "dst1", "a.txt")))
	assert.NoFileExists(t, filepath.Join(dir, "dst2", "b.txt"))
	for _, sub := range source {
		assert.True(t, sub.closed)
	}
}

func TestStartPartialFailure(t *testing.T) {
	dir := t.TempDir()
	good := mirror.WatchSpec{WatchRoot: filepath.Join(dir, "src"), TargetRoot: filepath.Join(dir, "dst")}
	missing := mirror.WatchSpec{WatchRoot: filepath.Join(dir, "missing"), TargetRoot: filepath.Join(dir, "dst2")}
	writeFile(t, filepath.Join(dir, "src", "a.txt"), "a")

	logger, hook := logrusTest.NewNullLogger()
	source := fakeSource{}
	r, err := Start(context.Background(), []mirror.WatchSpec{missing, good}, mirror.IgnoreSet{},
		WithSource(source.subscribe), WithLogger(logger))
	require.NoError(t, err)

	require.Len(t, r.Mirrors(), 1)
	assert.Equal(t, good, r.Mirrors()[0].Engine.Spec())
	assert.Equal(t, "a", readFile(t, filepath.Join(dir, "dst", "a.txt")))

	var errorMessages []string
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel {
			errorMessages = append(errorMessages, entry.Message)
		}
	}
	assert.Equal(t, []string{
		"Initial copy failed. The target may be incomplete.",
		"Failed to watch for changes. Skipping.",
	}, errorMessages)

	r.Stop()
	assert.NoError(t, r.Wait())
}

func TestStartNothingWatched(t *testing.T) {
	dir := t.TempDir()
	logger, _ := logrusTest.NewNullLogger()
	spec := mirror.WatchSpec{WatchRoot: filepath.Join(dir, "missing"), TargetRoot: filepath.Join(dir, "dst")}

	_, err := Start(context.Background(), []mirror.WatchSpec{spec}, mirror.IgnoreSet{},
		WithSource(fakeSource{}.subscribe), WithLogger(logger))
	assert.EqualError(t, err, "no directories could be watched")
}

func TestListenContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	spec := mirror.WatchSpec{WatchRoot: filepath.Join(dir, "src"), TargetRoot: filepath.Join(dir, "dst")}
	writeFile(t, filepath.Join(dir, "src", "a.txt"), "a")

	logger, hook := logrusTest.NewNullLogger()
	engine := mirror.NewEngine(spec, mirror.IgnoreSet{}, logger)
	sub := &fakeSubscription{notifications: make(chan mirror.Notification, 2)}
	sub.notifications <- mirror.Notification{Path: filepath.Join(dir, "src", "a.txt"), Kind: mirror.Kind(42)}
	sub.notifications <- mirror.Notification{Path: filepath.Join(dir, "src", "a.txt"), Kind: mirror.Created}
	require.NoError(t, sub.Close())

	listen(context.Background(), Mirror{Engine: engine, Subscription: sub}, logger)

	assert.Equal(t, "a", readFile(t, filepath.Join(dir, "dst", "a.txt")))
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "Failed to mirror change", hook.LastEntry().Message)
}

func TestListenStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	spec := mirror.WatchSpec{WatchRoot: filepath.Join(dir, "src"), TargetRoot: filepath.Join(dir, "dst")}
	logger, _ := logrusTest.NewNullLogger()
	engine := mirror.NewEngine(spec, mirror.IgnoreSet{}, logger)

	// The subscription is never closed.
	sub := &fakeSubscription{notifications: make(chan mirror.Notification)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	listen(ctx, Mirror{Engine: engine, Subscription: sub}, logger)
}

func TestStopCloseFailure(t *testing.T) {
	dir := t.TempDir()
	spec := mirror.WatchSpec{WatchRoot: filepath.Join(dir, "src"), TargetRoot: filepath.Join(dir, "dst")}
	writeFile(t, filepath.Join(dir, "src", "a.txt"), "a")

	notifications := make(chan mirror.Notification)
	sub := &mockSubscription{}
	sub.On("Notifications").Return((<-chan mirror.Notification)(notifications))
	sub.On("Close").Return(errors.New("already closed"))
	source := func(string, mirror.IgnoreSet) (Subscription, error) {
		return sub, nil
	}

	logger, hook := logrusTest.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	r, err := Start(ctx, []mirror.WatchSpec{spec}, mirror.IgnoreSet{},
		WithSource(source), WithLogger(logger))
	require.NoError(t, err)

	r.Stop()
	assert.Equal(t, "Failed to stop watching", hook.LastEntry().Message)

	// The listener still exits once the context is cancelled.
	cancel()
	require.NoError(t, r.Wait())
	sub.AssertExpectations(t)
}
