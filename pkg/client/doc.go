// Package ragstream provides a Go client for the ragstream chat service.
//
// A client holds one WebSocket connection bound to a session. Ask sends a
// question and returns a channel of typed events for the streamed answer:
//
//	c, _ := ragstream.New(ctx, "ws://localhost:8080", "session-1")
//	defer c.Close()
//
//	events, _ := c.Ask(ctx, "what is reciprocal rank fusion?")
//	for ev := range events {
//	    switch ev.Type {
//	    case ragstream.EventToken:
//	        fmt.Print(ev.Token)
//	    case ragstream.EventSources:
//	        fmt.Printf("\n%d sources\n", len(ev.Sources))
//	    }
//	}
package ragstream
