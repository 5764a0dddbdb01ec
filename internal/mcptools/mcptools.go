// Package mcptools exposes the session archive to MCP clients.
//
// The [Server] wraps the official MCP Go SDK and registers tools for
// searching archived transcripts (keyword and semantic) and retrieving or
// generating session recaps. It is served over the streamable-HTTP
// transport and mounted on the main listener.
package mcptools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"

	"github.com/0xChin/ricardo/internal/archive"
	"github.com/0xChin/ricardo/internal/observe"
	"github.com/0xChin/ricardo/internal/summary"
	"github.com/0xChin/ricardo/pkg/provider/embeddings"
)

const (
	serverName    = "ricardo-archive"
	serverVersion = "1.0.0"

	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// Option configures a [Server].
type Option func(*Server)

// WithSemanticSearch enables the semantic search mode of search_transcripts.
// Both the index and the embeddings provider must be non-nil.
func WithSemanticSearch(index archive.SemanticIndex, embedder embeddings.Provider) Option {
	return func(s *Server) {
		s.index = index
		s.embedder = embedder
	}
}

// WithSummariser enables recap generation for sessions that have no stored
// summary yet. Without it, session_recap only returns stored recaps.
func WithSummariser(sum *summary.Summariser) Option {
	return func(s *Server) { s.summariser = sum }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. When nil, no metrics are recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server registers archive tools on an MCP server.
type Server struct {
	store      archive.Store
	index      archive.SemanticIndex
	embedder   embeddings.Provider
	summariser *summary.Summariser
	logger     *slog.Logger
	metrics    *observe.Metrics

	mcp *mcp.Server
}

// New creates a Server exposing the given archive. store is required.
func New(store archive.Store, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, errors.New("mcptools: archive store must not be nil")
	}
	s := &Server{
		store:  store,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_transcripts",
		Description: "Search archived voice session transcripts. Keyword mode matches words in what was said; semantic mode (if available) finds turns similar in meaning to the query.",
	}, instrument(s, "search_transcripts", s.searchTranscripts))
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_recap",
		Description: "Return the recap of a recorded voice session, generating one from the transcript if none is stored yet.",
	}, instrument(s, "session_recap", s.sessionRecap))
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List recorded voice sessions, newest first.",
	}, instrument(s, "list_sessions", s.listSessions))

	return s, nil
}

// Handler returns an http.Handler serving the MCP streamable-HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
}

// instrument wraps a tool handler with call counting and latency recording.
func instrument[In, Out any](s *Server, tool string, fn mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		res, out, err := fn(ctx, req, in)
		if s.metrics != nil {
			s.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(observe.Attr("tool", tool)),
			)
			status := "ok"
			if err != nil {
				status = "error"
			}
			s.metrics.RecordToolCall(ctx, tool, status)
		}
		if err != nil {
			s.logger.Warn("tool call failed", "tool", tool, "err", err)
		}
		return res, out, err
	}
}

// searchInput are the arguments of the search_transcripts tool.
type searchInput struct {
	Query     string `json:"query" jsonschema:"the text to search for"`
	SessionID string `json:"session_id,omitempty" jsonschema:"restrict results to one session"`
	SpeakerID string `json:"speaker_id,omitempty" jsonschema:"restrict results to one speaker"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 20"`
	Semantic  bool   `json:"semantic,omitempty" jsonschema:"use semantic similarity instead of keyword matching"`
}

// searchMatch is one result row of search_transcripts.
type searchMatch struct {
	TurnID      string    `json:"turn_id"`
	SessionID   string    `json:"session_id"`
	SpeakerName string    `json:"speaker_name"`
	Text        string    `json:"text"`
	SpokenAt    time.Time `json:"spoken_at"`
	Distance    *float64  `json:"distance,omitempty"`
}

type searchOutput struct {
	Matches []searchMatch `json:"matches"`
}

func (s *Server) searchTranscripts(ctx context.Context, _ *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, searchOutput, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, searchOutput{}, errors.New("query must not be empty")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	opts := archive.SearchOpts{
		SessionID: in.SessionID,
		SpeakerID: in.SpeakerID,
		Limit:     limit,
	}

	if in.Semantic {
		return s.searchSemantic(ctx, query, limit, opts)
	}

	turns, err := s.store.Search(ctx, query, opts)
	if err != nil {
		return nil, searchOutput{}, fmt.Errorf("search transcripts: %w", err)
	}
	out := searchOutput{Matches: make([]searchMatch, 0, len(turns))}
	for _, turn := range turns {
		out.Matches = append(out.Matches, searchMatch{
			TurnID:      turn.ID,
			SessionID:   turn.SessionID,
			SpeakerName: turn.SpeakerName,
			Text:        turn.Text,
			SpokenAt:    turn.StartedAt,
		})
	}
	return nil, out, nil
}

func (s *Server) searchSemantic(ctx context.Context, query string, limit int, opts archive.SearchOpts) (*mcp.CallToolResult, searchOutput, error) {
	if s.index == nil || s.embedder == nil {
		return nil, searchOutput{}, errors.New("semantic search is not configured")
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, searchOutput{}, fmt.Errorf("embed query: %w", err)
	}
	results, err := s.index.SearchSimilar(ctx, vec, limit, opts)
	if err != nil {
		return nil, searchOutput{}, fmt.Errorf("semantic search: %w", err)
	}
	out := searchOutput{Matches: make([]searchMatch, 0, len(results))}
	for _, res := range results {
		d := res.Distance
		out.Matches = append(out.Matches, searchMatch{
			TurnID:      res.Turn.ID,
			SessionID:   res.Turn.SessionID,
			SpeakerName: res.Turn.SpeakerName,
			Text:        res.Turn.Text,
			SpokenAt:    res.Turn.StartedAt,
			Distance:    &d,
		})
	}
	return nil, out, nil
}

// recapInput are the arguments of the session_recap tool.
type recapInput struct {
	SessionID string `json:"session_id" jsonschema:"the session to recap"`
}

type recapOutput struct {
	SessionID string `json:"session_id"`
	Recap     string `json:"recap"`
	Generated bool   `json:"generated"`
}

func (s *Server) sessionRecap(ctx context.Context, _ *mcp.CallToolRequest, in recapInput) (*mcp.CallToolResult, recapOutput, error) {
	if in.SessionID == "" {
		return nil, recapOutput{}, errors.New("session_id must not be empty")
	}
	sess, err := s.store.GetSession(ctx, in.SessionID)
	if err != nil {
		return nil, recapOutput{}, fmt.Errorf("load session: %w", err)
	}
	if sess.Summary != "" {
		return nil, recapOutput{SessionID: sess.ID, Recap: sess.Summary}, nil
	}
	if s.summariser == nil {
		return nil, recapOutput{}, errors.New("session has no stored recap and no summariser is configured")
	}
	recap, err := s.summariser.Recap(ctx, in.SessionID)
	if err != nil {
		return nil, recapOutput{}, fmt.Errorf("generate recap: %w", err)
	}
	if recap == "" {
		return nil, recapOutput{}, errors.New("session has no transcribed turns to recap")
	}
	return nil, recapOutput{SessionID: sess.ID, Recap: recap, Generated: true}, nil
}

// listInput are the arguments of the list_sessions tool.
type listInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of sessions, default 20"`
}

// sessionInfo is one result row of list_sessions.
type sessionInfo struct {
	SessionID   string     `json:"session_id"`
	ChannelName string     `json:"channel_name"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	HasRecap    bool       `json:"has_recap"`
}

type listOutput struct {
	Sessions []sessionInfo `json:"sessions"`
}

func (s *Server) listSessions(ctx context.Context, _ *mcp.CallToolRequest, in listInput) (*mcp.CallToolResult, listOutput, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	sessions, err := s.store.ListSessions(ctx, limit)
	if err != nil {
		return nil, listOutput{}, fmt.Errorf("list sessions: %w", err)
	}
	out := listOutput{Sessions: make([]sessionInfo, 0, len(sessions))}
	for _, sess := range sessions {
		info := sessionInfo{
			SessionID:   sess.ID,
			ChannelName: sess.ChannelName,
			StartedAt:   sess.StartedAt,
			HasRecap:    sess.Summary != "",
		}
		if !sess.EndedAt.IsZero() {
			ended := sess.EndedAt
			info.EndedAt = &ended
		}
		out.Sessions = append(out.Sessions, info)
	}
	return nil, out, nil
}
