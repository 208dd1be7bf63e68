// Package event defines the notifications a gateway shard emits to its
// consumer.
//
// Each notification is one concrete type implementing Event. Consumers
// register a single Handler and switch on the concrete type:
//
//	h := event.HandlerFunc(func(e event.Event) {
//	    switch ev := e.(type) {
//	    case event.Dispatch:
//	        // ev.Name, ev.Data
//	    case event.Error:
//	        // ev.Err
//	    }
//	})
//
// Handlers run on the shard's goroutine; per shard, events arrive in the
// order the peer sent the frames.
package event
