// Package link multiplexes TCP and TLS connections on a single goroutine.
//
// A Link owns every socket it creates. It accepts inbound connections on
// listeners, keeps outbound connectors connected (reconnecting after refusals
// and drops), drives non-blocking TLS handshakes and reports activity to upper
// layers through callbacks keyed by connection ID:
//
//	l, err := link.New(link.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	l.OnConnect.Add(func(id connection.ID) { ... })
//	l.OnRecv.Add(func(id connection.ID, data []byte) { ... })
//
//	if _, err := l.AddListener("127.0.0.1:4000", nil); err != nil {
//	    return err
//	}
//	err = l.Run(ctx, link.RunConfig{})
//
// # Threading
//
// All operations except WakeupPoll and Stop must be called from the goroutine
// running Run, or before Run starts. Other goroutines hand work to the loop by
// queueing it, calling WakeupPoll and draining the queue from OnLoopPass.
//
// # Sending
//
// Send performs one non-blocking write and returns the number of bytes the
// kernel accepted. When it returns fewer bytes than requested, wait for
// OnReadyToSend before sending the rest.
package link
