package groutine

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo_NamesGoroutine(t *testing.T) {
	names := make(chan string, 1)
	Go(context.Background(), "worker-42", func(ctx context.Context) {
		names <- GetName(ctx)
	})

	select {
	case name := <-names:
		assert.Equal(t, "worker-42", name)
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestGetName_Unnamed(t *testing.T) {
	assert.Equal(t, "", GetName(context.Background()))
	assert.NotZero(t, GetGID())
}

func TestSafe(t *testing.T) {
	logger, hook := test.NewNullLogger()

	err := Safe(logger, logrus.Fields{"subscription": "s1"}, func() {})
	assert.NoError(t, err)
	assert.Empty(t, hook.AllEntries())

	err = Safe(logger, logrus.Fields{"subscription": "s1"}, func() { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "s1", entry.Data["subscription"])
	assert.Equal(t, "boom", entry.Data["panic"])
}
