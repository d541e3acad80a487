package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/sluice/chunk"
	"github.com/justapithecus/sluice/eventloop"
	"github.com/justapithecus/sluice/frame"
	"github.com/justapithecus/sluice/promise"
	"github.com/justapithecus/sluice/transport"
)

// PingpongCommand returns the pingpong command, a loopback self-test
// that exercises the transport and framing path end to end: a server
// and client socket on one event loop exchanging fixed-size messages.
func PingpongCommand() *cli.Command {
	return &cli.Command{
		Name:  "pingpong",
		Usage: "Run a loopback transport self-test",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "rounds",
				Usage: "Number of round trips",
				Value: 3,
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address for the loopback server",
				Value: "127.0.0.1:0",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress per-round output",
			},
		},
		Action: pingpongAction,
	}
}

func pingpongAction(c *cli.Context) error {
	rounds := c.Int("rounds")
	if rounds <= 0 {
		return cli.Exit("--rounds must be positive", 1)
	}
	quiet := c.Bool("quiet")

	l := eventloop.New()

	srv, err := transport.Serve(l, transport.ServerConfig{
		Addr:       c.String("addr"),
		AcceptOnce: true,
	}, func(sock *transport.Socket) {
		reader := frame.NewReader(l, sock.Supplier())
		out := sock.Consumer()
		var serve func()
		serve = func() {
			frame.Parse(reader, frame.AsString(4)).WhenComplete(func(msg string, perr error) {
				if perr != nil {
					// The client hanging up arrives as end-of-stream
					// between messages.
					sock.Close()
					return
				}
				if msg != "PING" {
					sock.Close()
					return
				}
				out.Accept(chunk.OfString("PONG")).WhenComplete(func(_ promise.Void, werr error) {
					if werr != nil {
						sock.Close()
						return
					}
					serve()
				})
			})
		}
		serve()
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("listen failed: %v", err), 1)
	}
	defer srv.Close()

	sock, err := transport.Dial(l, srv.Addr().String(), time.Second)
	if err != nil {
		return cli.Exit(fmt.Sprintf("dial failed: %v", err), 1)
	}
	reader := frame.NewReader(l, sock.Supplier())
	out := sock.Consumer()

	start := time.Now()
	var loopErr error
	trips := 0
	promise.Loop(l, 0,
		func(n int) bool { return n < rounds },
		func(n int) *promise.Promise[int] {
			sent := out.Accept(chunk.OfString("PING"))
			reply := promise.Then(sent, func(promise.Void) *promise.Promise[string] {
				return frame.Parse(reader, frame.AsString(4))
			})
			return promise.Then(reply, func(msg string) *promise.Promise[int] {
				if msg != "PONG" {
					return promise.OfError[int](l, fmt.Errorf("round %d: reply %q, want %q", n+1, msg, "PONG"))
				}
				if !quiet {
					fmt.Printf("round %d: %s\n", n+1, msg)
				}
				return promise.Of(l, n+1)
			})
		},
	).WhenComplete(func(n int, err error) {
		trips = n
		loopErr = err
		sock.Close()
	})

	l.Run()

	if loopErr != nil {
		return cli.Exit(fmt.Sprintf("ping-pong failed after %d round trips: %v", trips, loopErr), 1)
	}
	if !quiet {
		fmt.Printf("%d round trips in %s\n", trips, time.Since(start).Round(time.Microsecond))
	}
	return nil
}
