package reqs

import "github.com/neupims-sim/neupims-sim/config"

// Client is the request-arrival external collaborator spec.md §1 calls out
// as "specified only by the interface it exposes": it turns the parsed
// client dataset (config.ClientRow rows of input_len/channel) into a
// deterministic arrival stream of InferRequests, grounded on the teacher's
// sim/cluster/workload.go trace-replay client.
type Client struct {
	rows []config.ClientRow

	// ArrivalInterval is the fixed cycle gap between successive arrivals
	// (spec.md treats the arrival process itself as opaque/external; a
	// fixed-interval replay is the simplest faithful stand-in for a
	// trace-driven client).
	ArrivalInterval int64
	// OutputSize is the fixed per-request decode length used when the
	// dataset doesn't carry one (client dataset CSV columns are
	// input_len, channel only — spec.md §6).
	OutputSize int

	cursor       int
	nextID       int
	nextArrival  int64
}

// NewClient creates a Client replaying rows at a fixed arrival interval,
// each request requesting outputSize decode tokens.
func NewClient(rows []config.ClientRow, arrivalInterval int64, outputSize int) *Client {
	return &Client{rows: rows, ArrivalInterval: arrivalInterval, OutputSize: outputSize}
}

// Cycle advances the client by one dataset row if due at cycle `now`,
// returning the freshly-arrived request. Per DESIGN.md's "dataset-exhausted
// termination" resolution, running out of rows is clean completion: it
// returns (nil, false) rather than exiting the process.
func (c *Client) Cycle(now int64) (*InferRequest, bool) {
	if c.cursor >= len(c.rows) {
		return nil, false
	}
	if now < c.nextArrival {
		return nil, false
	}
	row := c.rows[c.cursor]
	c.cursor++

	req := &InferRequest{
		ID:              c.nextID,
		ArrivalCycle:    now,
		InputSize:       row.InputLen,
		OutputSize:      c.OutputSize,
		Channel:         row.Channel,
		ChannelAssigned: row.Channel >= 0,
	}
	c.nextID++
	c.nextArrival = now + c.ArrivalInterval
	return req, true
}

// Exhausted reports whether every dataset row has arrived.
func (c *Client) Exhausted() bool {
	return c.cursor >= len(c.rows)
}

// Remaining returns the count of not-yet-arrived dataset rows.
func (c *Client) Remaining() int {
	return len(c.rows) - c.cursor
}
