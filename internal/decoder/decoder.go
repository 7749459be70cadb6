// Package decoder turns raw inbound frames off a transport.Listener's
// queue into decoded wire.Message values ready for dispatch.
//
// Grounded on _examples/original_source/mvrt/rtdecoder.c's
// _decoder_thread/_decoder_decode: PROP_ADD is handled inline (a new
// local property needs no event, no reactor lookup), and every other
// tag is handed onward — there, to reactor dispatch by event name;
// here, to internal/dispatch's Dispatcher over the output queue.
package decoder

import (
	"context"

	"github.com/reactormesh/devrt/internal/logging"
	"github.com/reactormesh/devrt/internal/runtime"
	"github.com/reactormesh/devrt/internal/transport"
	"github.com/reactormesh/devrt/internal/value"
	"github.com/reactormesh/devrt/internal/wire"
)

// keyName and keyValue are the PROP_ADD argument map's field names.
// Naming each key once as its own constant avoids the original's bug
// where the "funarg" and "dev" key constants were assigned to the same
// slot.
const (
	keyName  = "name"
	keyValue = "value"
)

// Decoder drains Input, decodes each frame, and either registers a new
// local property (PROP_ADD) directly or forwards the decoded Message to
// Output for the dispatcher to route.
type Decoder struct {
	Input   *transport.Queue[string]
	Output  *transport.Queue[wire.Message]
	Runtime *runtime.Runtime
	Logger  logging.Logger
}

// New returns a Decoder wired to rt's arena and property table.
func New(input *transport.Queue[string], output *transport.Queue[wire.Message], rt *runtime.Runtime, logger logging.Logger) *Decoder {
	if logger == nil {
		logger = logging.Noop()
	}
	return &Decoder{Input: input, Output: output, Runtime: rt, Logger: logger}
}

// Run decodes frames until ctx is done or Input is closed out from
// under it. A malformed frame is logged and skipped — it never stalls
// the rest of the inbound stream.
func (d *Decoder) Run(ctx context.Context) error {
	for {
		raw, err := d.Input.Pop(ctx)
		if err != nil {
			return err
		}
		msg, err := d.decodeOne(raw)
		if err != nil {
			d.Logger.Warn("decoder: dropping malformed frame", "err", err)
			d.Logger.Debug("decoder: dropped frame contents", "frame", value.Dump(value.String(raw)))
			continue
		}
		if msg.Tag == wire.TagPropAdd {
			d.registerProp(msg)
			continue
		}
		if err := d.Output.Push(ctx, msg); err != nil {
			return err
		}
	}
}

func (d *Decoder) decodeOne(raw string) (wire.Message, error) {
	frame, ok := wire.ParseFrame(raw)
	if !ok {
		return wire.Message{}, &FormatError{Reason: "no destaddr/body separator in frame"}
	}
	return wire.Decode(frame.Body, d.Runtime.Arena)
}

// registerProp implements PROP_ADD: it installs (or overwrites) a local
// property, raising no event — PROP_ADD is bookkeeping, not traffic a
// reactor would ever subscribe to.
func (d *Decoder) registerProp(msg wire.Message) {
	if value.Tag(msg.Arg) != value.KindMap {
		d.Logger.Warn("decoder: PROP_ADD has no argument map")
		return
	}
	name := d.Runtime.Arena.MapLookup(msg.Arg, value.String(keyName))
	if value.Tag(name) != value.KindString {
		d.Logger.Warn("decoder: PROP_ADD missing string name field")
		return
	}
	val := d.Runtime.Arena.MapLookup(msg.Arg, value.String(keyValue))
	d.Runtime.Props.Add(name.StringValue(), val)
}

// FormatError reports a frame that could not be split into a
// destination address and an envelope body.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return "decoder: " + e.Reason }
