package framestream

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gorilla/websocket"
	"github.com/tinylib/msgp/msgp"

	"github.com/normanking/cortexcompanion/internal/avatar3d"
)

// Encoding names accepted in config
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// Encoder turns a frame into one websocket message.
type Encoder interface {
	Encode(f *avatar3d.Frame) ([]byte, error)
	MessageType() int
}

// NewEncoder returns the encoder for a config name.
func NewEncoder(name string) (Encoder, error) {
	switch name {
	case "", EncodingJSON:
		return jsonEncoder{}, nil
	case EncodingMsgpack:
		return msgpackEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown frame encoding %q", name)
	}
}

type jsonEncoder struct{}

func (jsonEncoder) Encode(f *avatar3d.Frame) ([]byte, error) { return json.Marshal(f) }
func (jsonEncoder) MessageType() int                         { return websocket.TextMessage }

type msgpackEncoder struct{}

func (msgpackEncoder) MessageType() int { return websocket.BinaryMessage }

// Encode writes the frame with the same keys as its msg tags.
func (msgpackEncoder) Encode(f *avatar3d.Frame) ([]byte, error) {
	b := make([]byte, 0, 512)

	fields := uint32(8)
	if f.Viseme != "" {
		fields++
	}
	b = msgp.AppendMapHeader(b, fields)

	b = msgp.AppendString(b, "seq")
	b = msgp.AppendUint64(b, f.Seq)

	b = msgp.AppendString(b, "avatar")
	b = msgp.AppendMapHeader(b, 2)
	b = msgp.AppendString(b, "id")
	b = msgp.AppendString(b, f.Avatar.ID)
	b = msgp.AppendString(b, "transform")
	b = msgp.AppendArrayHeader(b, uint32(len(f.Avatar.Transform)))
	for _, v := range f.Avatar.Transform {
		b = msgp.AppendFloat32(b, v)
	}

	b = msgp.AppendString(b, "morphs")
	b = msgp.AppendMapHeader(b, uint32(len(f.Morphs)))
	for _, mesh := range sortedKeys(f.Morphs) {
		channels := f.Morphs[mesh]
		b = msgp.AppendString(b, mesh)
		b = msgp.AppendMapHeader(b, uint32(len(channels)))
		for _, ch := range sortedKeys(channels) {
			b = msgp.AppendString(b, ch)
			b = msgp.AppendFloat32(b, channels[ch])
		}
	}

	b = msgp.AppendString(b, "clips")
	b = msgp.AppendArrayHeader(b, uint32(len(f.Clips)))
	for _, c := range f.Clips {
		b = msgp.AppendMapHeader(b, 4)
		b = msgp.AppendString(b, "clip")
		b = msgp.AppendString(b, string(c.Clip))
		b = msgp.AppendString(b, "weight")
		b = msgp.AppendFloat32(b, c.Weight)
		b = msgp.AppendString(b, "time")
		b = msgp.AppendFloat32(b, c.TimeSec)
		b = msgp.AppendString(b, "loop")
		b = msgp.AppendBool(b, c.Loop)
	}

	b = msgp.AppendString(b, "state")
	b = msgp.AppendString(b, f.State)
	b = msgp.AppendString(b, "emotion")
	b = msgp.AppendString(b, f.Emotion)
	if f.Viseme != "" {
		b = msgp.AppendString(b, "viseme")
		b = msgp.AppendString(b, f.Viseme)
	}
	b = msgp.AppendString(b, "speaking")
	b = msgp.AppendBool(b, f.Speaking)
	b = msgp.AppendString(b, "elapsed_ms")
	b = msgp.AppendFloat64(b, f.ElapsedMs)
	return b, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
