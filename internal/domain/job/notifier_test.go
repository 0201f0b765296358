package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotifier_SubscribeReceivesNotifications(t *testing.T) {
	notifier := NewNotifier()

	unsub, ch := notifier.Subscribe()
	defer unsub()

	notifier.Notify()

	select {
	case _, ok := <-ch:
		assert.True(t, ok)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected notification to be delivered")
	}
}

func TestNotifier_CoalescesWhileBusy(t *testing.T) {
	notifier := NewNotifier()
	unsub, ch := notifier.Subscribe()
	defer unsub()

	notifier.Notify()
	notifier.Notify()
	notifier.Notify()

	<-ch
	select {
	case <-ch:
		t.Fatal("expected pending notifications to coalesce into one")
	default:
	}
}

func TestNotifier_UnsubscribeClosesChannel(t *testing.T) {
	notifier := NewNotifier()
	unsub, ch := notifier.Subscribe()

	notifier.Notify()
	unsub()
	unsub()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "expected channel to be closed without buffered values")
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected channel to be closed")
	}
}

func TestNotifier_StopAllClosesSubscriptions(t *testing.T) {
	notifier := NewNotifier()
	_, ch1 := notifier.Subscribe()
	_, ch2 := notifier.Subscribe()

	notifier.StopAll()

	for _, ch := range []<-chan struct{}{ch1, ch2} {
		_, ok := <-ch
		assert.False(t, ok)
	}

	_, late := notifier.Subscribe()
	_, ok := <-late
	assert.False(t, ok, "subscriptions after StopAll are closed")
}
