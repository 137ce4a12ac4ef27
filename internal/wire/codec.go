package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/igentai/genorch/core"
)

// Encode serializes a message struct (Command, Update, DashboardRequest, or
// DashboardUpdate) to the wire's compact binary payload format.
func Encode(msg interface{}) ([]byte, error) {
	b, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEncodeFailed, err)
	}
	return b, nil
}

// Decode deserializes a payload into out, which must be a pointer to one of
// the message catalog types.
func Decode(payload []byte, out interface{}) error {
	if err := msgpack.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %v", core.ErrDecodeFailed, err)
	}
	return nil
}

// SendCommand encodes and sends a Command to a worker's control address.
func SendCommand(addr string, cmd Command) error {
	payload, err := Encode(cmd)
	if err != nil {
		return err
	}
	return Send(addr, payload)
}

// SendUpdate encodes and sends an Update to the orchestrator's address.
func SendUpdate(addr string, upd Update) error {
	payload, err := Encode(upd)
	if err != nil {
		return err
	}
	return Send(addr, payload)
}

// SendDashboardRequest encodes and sends a DashboardRequest to the
// orchestrator's address.
func SendDashboardRequest(addr string, req DashboardRequest) error {
	payload, err := Encode(req)
	if err != nil {
		return err
	}
	return Send(addr, payload)
}

// SendDashboardUpdate encodes and sends a DashboardUpdate to the dashboard's
// address.
func SendDashboardUpdate(addr string, upd DashboardUpdate) error {
	payload, err := Encode(upd)
	if err != nil {
		return err
	}
	return Send(addr, payload)
}

// CommandMaxFrame is the size limit a worker's command listener should pass
// to Listen: every Command variant is control traffic.
const CommandMaxFrame = MaxControlFrame

// UpdateMaxFrame is the size limit the orchestrator's update listener
// should pass to Listen: AttributeBatch is the one Update variant that
// carries bulk data, so this listener gets the larger allowance.
const UpdateMaxFrame = MaxDataFrame
