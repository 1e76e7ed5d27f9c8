package visualiser

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/camspeed/internal/speed"
)

// FrameUpdate is one processed frame as seen by a streaming client.
type FrameUpdate struct {
	FrameIndex int64           `json:"frame"`
	Overlays   []speed.Overlay `json:"overlays"`
}

// visible returns a copy of u holding only overlays detected in the frame.
func (u FrameUpdate) visible() FrameUpdate {
	out := FrameUpdate{FrameIndex: u.FrameIndex, Overlays: make([]speed.Overlay, 0, len(u.Overlays))}
	for _, o := range u.Overlays {
		if o.Visible {
			out.Overlays = append(out.Overlays, o)
		}
	}
	return out
}

// EncodeUpdate converts u to its wire form. Field names follow the JSON
// tags of FrameUpdate and speed.Overlay.
func EncodeUpdate(u FrameUpdate) (*structpb.Struct, error) {
	if u.Overlays == nil {
		u.Overlays = []speed.Overlay{}
	}
	b, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame %d: %w", u.FrameIndex, err)
	}
	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(b, msg); err != nil {
		return nil, fmt.Errorf("failed to build frame %d message: %w", u.FrameIndex, err)
	}
	return msg, nil
}

// DecodeUpdate is the inverse of EncodeUpdate.
func DecodeUpdate(msg *structpb.Struct) (FrameUpdate, error) {
	b, err := protojson.Marshal(msg)
	if err != nil {
		return FrameUpdate{}, fmt.Errorf("failed to read frame message: %w", err)
	}
	var u FrameUpdate
	if err := json.Unmarshal(b, &u); err != nil {
		return FrameUpdate{}, fmt.Errorf("failed to decode frame message: %w", err)
	}
	return u, nil
}

// StreamRequest selects what a client receives.
type StreamRequest struct {
	ClientName    string
	IncludeHidden bool // Also stream tracks not detected in the current frame
}

func (r StreamRequest) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"client":         r.ClientName,
		"include_hidden": r.IncludeHidden,
	})
}

func requestFromStruct(msg *structpb.Struct) StreamRequest {
	fields := msg.GetFields()
	return StreamRequest{
		ClientName:    fields["client"].GetStringValue(),
		IncludeHidden: fields["include_hidden"].GetBoolValue(),
	}
}
