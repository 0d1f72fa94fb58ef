/*
Package scheduler serializes requests from many concurrent callers onto a single
half-duplex serial link.

A Scheduler owns one port of a transport.Transport. Callers Submit a Request (a
payload frame plus the pattern its reply must match) and get back a Handle they can
await. A single worker takes pending requests from the buffer one at a time, in
FIFO (Queue) or LIFO (Stack) order, and for each one:

 1. transmits the payload,
 2. polls the port until the reply pattern matches or the read timeout expires,
 3. retries immediately on mismatch or timeout, up to MaxAttempts.

At most one request is ever in transit. Every request ends with exactly one Result.

	s, err := scheduler.New(ctx, tr, "/dev/ttyUSB0", scheduler.WithPolicy(queue.FIFO))
	if err != nil {
	    return err
	}
	s.Start()
	defer s.Close()

	res, err := s.Do(ctx, scheduler.Request{
	    Payload: frame.ReadRegisters(checksum.Modbus, 0x01, 0x03, 0x2002, 1),
	    Pattern: frame.MustParsePattern("01 03 02 {value:2} CRC"),
	})

Giving up on a Handle does not cancel the request: it still runs to completion and
its Result stays claimable with Claim until the result TTL expires.
*/
package scheduler
