package rpc

import "encoding/json"

// queryRequest/queryResponse are the JSON wire shapes for the unary
// query RPC, named after spec.md §6's QueryRequest/QueryResponse.
type queryRequest struct {
	QueryID    string   `json:"query_id"`
	QueryString string  `json:"query_string"`
	Parameters []string `json:"parameters"`
}

type wireEntry struct {
	Key         string `json:"key"`
	StringValue string `json:"string_value,omitempty"`
	IntValue    *int32 `json:"int_value,omitempty"`
	DoubleValue *float64 `json:"double_value,omitempty"`
	BoolValue   *bool  `json:"bool_value,omitempty"`
}

type queryResponse struct {
	QueryID    string      `json:"query_id"`
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Results    []wireEntry `json:"results"`
	TimingData string      `json:"timing_data"`
}

// dataMessage is the fire-and-forget data send payload. MessageID is
// a fresh UUID assigned by the sending adapter on every Send; callers
// do not supply one (spec.md leaves this id unspecified, unlike Query.ID).
type dataMessage struct {
	MessageID   string `json:"message_id"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Data        []byte `json:"data"`
}

// dataChunk is one server-streamed chunk of a streaming query
// response.
type dataChunk struct {
	ChunkID int    `json:"chunk_id"`
	Data    []byte `json:"data"`
	IsLast  bool   `json:"is_last"`
}

func marshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
