package rpc

import "fmt"

// binaryMessage is implemented by every request/response type in this
// package.
type binaryMessage interface {
	MarshalBinary() ([]byte, error)
	UnmarshalBinary([]byte) error
}

// codecName identifies this package's wire format; it never needs to
// travel over the wire itself since both ends force it explicitly
// (server via grpc.ForceServerCodec, client via grpc.ForceCodec), rather
// than negotiating a content-subtype the way protobuf codecs do.
const codecName = "htrace-tlv"

// codec adapts this package's MarshalBinary/UnmarshalBinary messages to
// grpc-go's encoding.Codec interface, used in place of a
// protoc-generated protobuf codec.
type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(binaryMessage)
	if !ok {
		return nil, fmt.Errorf("rpc: %T does not implement binaryMessage", v)
	}
	return m.MarshalBinary()
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(binaryMessage)
	if !ok {
		return fmt.Errorf("rpc: %T does not implement binaryMessage", v)
	}
	return m.UnmarshalBinary(data)
}

func (codec) Name() string { return codecName }

// Codec is the shared codec instance passed to grpc.ForceServerCodec on
// the server and grpc.ForceCodec (as a default call option) on the
// client.
var Codec = codec{}
