// Package grpc provides Connect service implementations for the sheet assistant.
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/assistant"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/memory"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/observability"
)

const (
	// ChatServiceName is the fully-qualified service name.
	ChatServiceName = "sheetassistant.v1.ChatService"

	// AskProcedure answers one chat message.
	AskProcedure = "/" + ChatServiceName + "/Ask"
	// PopularProcedure lists the most asked questions.
	PopularProcedure = "/" + ChatServiceName + "/Popular"
)

// Assistant is the part of assistant.Service the chat service needs.
type Assistant interface {
	HandleQuery(ctx context.Context, raw string) assistant.Result
	Popular(n int) []memory.QueryCount
}

// ChatService implements the Connect chat service.
type ChatService struct {
	logger    *observability.Logger
	assistant Assistant
}

// NewChatService creates a new chat service.
func NewChatService(logger *observability.Logger, a Assistant) *ChatService {
	return &ChatService{
		logger:    observability.OrNop(logger).WithOperation("chat_service"),
		assistant: a,
	}
}

// AskRequest represents the Ask request message.
type AskRequest struct {
	Message string `json:"message"`
}

// AskResponse represents the Ask response message.
type AskResponse struct {
	Response        string  `json:"response"`
	ContextFound    bool    `json:"context_found"`
	Intent          string  `json:"intent"`
	Confidence      float64 `json:"confidence"`
	MatchedRowCount int32   `json:"matched_row_count"`
	InteractionID   string  `json:"interaction_id,omitempty"`
}

// PopularRequest represents the Popular request message.
type PopularRequest struct {
	Limit int32 `json:"limit,omitempty"`
}

// PopularResponse represents the Popular response message.
type PopularResponse struct {
	Queries []*QueryCount `json:"queries"`
}

// QueryCount is one popular question.
type QueryCount struct {
	Query string `json:"query"`
	Count int32  `json:"count"`
}

// Ask handles Connect chat messages.
func (s *ChatService) Ask(ctx context.Context, req *connect.Request[AskRequest]) (*connect.Response[AskResponse], error) {
	if strings.TrimSpace(req.Msg.Message) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("message is required"))
	}

	res := s.assistant.HandleQuery(ctx, req.Msg.Message)
	s.logger.Debug().
		Str("procedure", req.Spec().Procedure).
		Str("intent", string(res.Intent)).
		Bool("context_found", res.ContextFound).
		Msg("Ask handled")
	return connect.NewResponse(&AskResponse{
		Response:        res.ResponseText,
		ContextFound:    res.ContextFound,
		Intent:          string(res.Intent),
		Confidence:      res.Confidence,
		MatchedRowCount: int32(res.MatchedRowCount),
		InteractionID:   res.InteractionID,
	}), nil
}

// Popular handles Connect popular-question queries.
func (s *ChatService) Popular(_ context.Context, req *connect.Request[PopularRequest]) (*connect.Response[PopularResponse], error) {
	limit := int(req.Msg.Limit)
	if limit <= 0 {
		limit = 5
	}

	popular := s.assistant.Popular(limit)
	out := &PopularResponse{Queries: make([]*QueryCount, 0, len(popular))}
	for _, q := range popular {
		out.Queries = append(out.Queries, &QueryCount{Query: q.Query, Count: int32(q.Count)})
	}
	return connect.NewResponse(out), nil
}

// Handler mounts the service. The returned path is the prefix to route.
func (s *ChatService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	ask := connect.NewUnaryHandler(AskProcedure, s.Ask, opts...)
	popular := connect.NewUnaryHandler(PopularProcedure, s.Popular, opts...)

	mux := http.NewServeMux()
	mux.Handle(AskProcedure, ask)
	mux.Handle(PopularProcedure, popular)
	return "/" + ChatServiceName + "/", mux
}

// JSONCodec encodes plain Go structs as JSON. It replaces connect's
// protobuf-only JSON codec so messages need no generated code.
type JSONCodec struct{}

// Name implements connect.Codec.
func (JSONCodec) Name() string { return "json" }

// Marshal implements connect.Codec.
func (JSONCodec) Marshal(msg any) ([]byte, error) { return json.Marshal(msg) }

// Unmarshal implements connect.Codec.
func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}
