package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"quorum"
)

func TestOutbox_Deliver(t *testing.T) {
	o := NewOutbox(2)

	env := envelope("m1", Unicast, "s1")
	if err := o.Deliver(context.Background(), "s1", env); err != nil {
		t.Fatal(err)
	}
	got := <-o.Inbox("s1")
	assert.Equal(t, quorum.MessageID("m1"), got.ID)
}

func TestOutbox_DeliverFullBox(t *testing.T) {
	o := NewOutbox(1)

	if err := o.Deliver(context.Background(), "s1", envelope("m1", Unicast, "s1")); err != nil {
		t.Fatal(err)
	}
	err := o.Deliver(context.Background(), "s1", envelope("m2", Unicast, "s1"))
	assert.Equal(t, quorum.KindCapacity, quorum.KindOf(err))

	// Draining frees the slot again.
	<-o.Inbox("s1")
	assert.NoError(t, o.Deliver(context.Background(), "s1", envelope("m3", Unicast, "s1")))
}

func TestOutbox_Close(t *testing.T) {
	o := NewOutbox(1)
	inbox := o.Inbox("s1")
	o.Close("s1")

	_, open := <-inbox
	assert.False(t, open)
}
