// Package testutil provides in-memory test doubles for edgepub.
//
// FakeDialer and FakeSession implement the session capability without a network.
// Tests script publish outcomes and drive lifecycle events by hand:
//
//	dialer := testutil.NewFakeDialer()
//	client, _ := publisher.New(dialer, publisher.DefaultConfig())
//	_ = client.Connect(ctx, "nats://edge", "edge-1", session.Options{})
//
//	sess := dialer.Last()
//	sess.FailNext(errors.New("broken pipe")) // next publish fails once
//	sess.Disconnect(nil)                      // transport lost the link
//	sess.Reconnect()                          // and got it back
//
// Sessions connect immediately unless SetAutoConnect(false) is used, in which
// case the test calls Connect itself.
package testutil
