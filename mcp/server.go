// Package mcp exposes the vocabulary service as Model Context Protocol tools
// over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperengineering/vocab"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the MCP server with vocabulary tools.
type Server struct {
	svc       *vocab.Service
	mcpServer *server.MCPServer
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server with vocabulary tools registered.
func NewServer(svc *vocab.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcpServer = server.NewMCPServer(
		"vocab",
		version,
		server.WithToolCapabilities(true),
	)
	s.registerTools()

	return s
}

// Run starts the MCP server, reading from stdin and writing to stdout.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message and returns a response.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "vocab_extract", Description: "Extract categorized domain terms from free text without storing them"},
		{Name: "vocab_list", Description: "List learned vocabulary above a confidence threshold"},
		{Name: "vocab_enrich", Description: "Render established vocabulary as a prompt context block"},
		{Name: "vocab_snapshot", Description: "Run extraction over new submissions and record a snapshot"},
		{Name: "vocab_approve", Description: "Approve a term, pinning it at full confidence"},
		{Name: "vocab_reject", Description: "Reject and delete a term"},
		{Name: "vocab_feedback", Description: "Record user feedback on generated output"},
		{Name: "vocab_export", Description: "Export feedback as a training bundle"},
		{Name: "vocab_stats", Description: "Show vocabulary store statistics"},
	}
}

// CallTool executes a tool by name with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	switch name {
	case "vocab_extract":
		return s.handleExtract(ctx, args)
	case "vocab_list":
		return s.handleList(ctx, args)
	case "vocab_enrich":
		return s.handleEnrich(ctx, args)
	case "vocab_snapshot":
		return s.handleSnapshot(ctx, args)
	case "vocab_approve":
		return s.handleApprove(ctx, args)
	case "vocab_reject":
		return s.handleReject(ctx, args)
	case "vocab_feedback":
		return s.handleFeedback(ctx, args)
	case "vocab_export":
		return s.handleExport(ctx, args)
	case "vocab_stats":
		return s.handleStats(ctx, args)
	default:
		return &ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("vocab_extract",
		mcp.WithDescription("Extract categorized domain terms (medical terms, methods, abbreviations, names, funding terms, institutions) from free text. Nothing is stored."),
		mcp.WithString("text",
			mcp.Description("The text to scan"),
			mcp.Required(),
		),
	), s.wrap(s.handleExtract))

	s.mcpServer.AddTool(mcp.NewTool("vocab_list",
		mcp.WithDescription("List learned vocabulary ordered by frequency."),
		mcp.WithString("category",
			mcp.Description("Restrict to one category: domain-term, medical, method, abbreviation, proper-noun, funding-term, institution"),
		),
		mcp.WithNumber("min_confidence",
			mcp.Description("Minimum confidence threshold 0.0-1.0 (default: 0.5)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of terms to return (default and cap: 100)"),
		),
	), s.wrap(s.handleList))

	s.mcpServer.AddTool(mcp.NewTool("vocab_enrich",
		mcp.WithDescription("Render established vocabulary as a short block for prompt augmentation. Returns an empty result when nothing is established."),
		mcp.WithString("context_type",
			mcp.Description("Kind of prompt: meeting, research, clinical, grant, summary"),
			mcp.Required(),
		),
	), s.wrap(s.handleEnrich))

	s.mcpServer.AddTool(mcp.NewTool("vocab_snapshot",
		mcp.WithDescription("Mine submissions received since the last run and record a snapshot. Fails if a run is already in progress."),
	), s.wrap(s.handleSnapshot))

	s.mcpServer.AddTool(mcp.NewTool("vocab_approve",
		mcp.WithDescription("Approve a term. Approved terms are pinned at confidence 1.0 and never pruned."),
		mcp.WithString("term", mcp.Description("The term to approve"), mcp.Required()),
		mcp.WithString("actor_id", mcp.Description("Identifier of the approving administrator"), mcp.Required()),
	), s.wrap(s.handleApprove))

	s.mcpServer.AddTool(mcp.NewTool("vocab_reject",
		mcp.WithDescription("Reject a term, deleting it. The term may be re-learned if observed again."),
		mcp.WithString("term", mcp.Description("The term to reject"), mcp.Required()),
		mcp.WithString("actor_id", mcp.Description("Identifier of the rejecting administrator"), mcp.Required()),
	), s.wrap(s.handleReject))

	s.mcpServer.AddTool(mcp.NewTool("vocab_feedback",
		mcp.WithDescription("Record feedback on generated output. Invalid feedback is reported but never fails the caller."),
		mcp.WithString("submitter_id", mcp.Description("Who is giving feedback"), mcp.Required()),
		mcp.WithString("submitter_role", mcp.Description("Role of the submitter, used to group training data")),
		mcp.WithString("feedback_type", mcp.Description("general, suggestion, correction, bug or praise (default: general)")),
		mcp.WithString("text", mcp.Description("Free-text feedback")),
		mcp.WithNumber("quality", mcp.Description("Quality rating 1-5")),
		mcp.WithNumber("helpfulness", mcp.Description("Helpfulness rating 1-5")),
		mcp.WithNumber("ease", mcp.Description("Ease-of-use rating 1-5")),
		mcp.WithString("submission_id", mcp.Description("Submission this feedback refers to")),
		mcp.WithString("submission_type", mcp.Description("Kind of submission, requires submission_id")),
	), s.wrap(s.handleFeedback))

	s.mcpServer.AddTool(mcp.NewTool("vocab_export",
		mcp.WithDescription("Export feedback grouped by submitter role, with a ratings summary."),
		mcp.WithString("output_path", mcp.Description("Write the bundle to this file as JSON")),
	), s.wrap(s.handleExport))

	s.mcpServer.AddTool(mcp.NewTool("vocab_stats",
		mcp.WithDescription("Show term counts, pending submissions and the last snapshot time."),
	), s.wrap(s.handleStats))
}

type handler func(ctx context.Context, args map[string]any) (*ToolResult, error)

// wrap adapts an internal handler to the mcp-go handler signature.
func (s *Server) wrap(h handler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := h(ctx, req.GetArguments())
		if err != nil {
			return nil, err
		}
		return toMCPResult(result), nil
	}
}

func toMCPResult(r *ToolResult) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: r.Content,
			},
		},
	}
	if r.IsError {
		result.IsError = true
	}
	return result
}

func errorResult(format string, args ...any) *ToolResult {
	return &ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}
}

// Internal handlers

func (s *Server) handleExtract(_ context.Context, args map[string]any) (*ToolResult, error) {
	text, ok := args["text"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return errorResult("text is required"), nil
	}
	return &ToolResult{Content: formatMatches(s.svc.Extract(text))}, nil
}

func (s *Server) handleList(ctx context.Context, args map[string]any) (*ToolResult, error) {
	var q vocab.VocabularyQuery
	if cat, ok := args["category"].(string); ok && cat != "" {
		c := vocab.Category(cat)
		if !c.IsValid() {
			return errorResult("invalid category: %s", cat), nil
		}
		q.Category = c
	}
	if minConf, ok := args["min_confidence"].(float64); ok {
		q.MinConfidence = &minConf
	}
	if limit, ok := args["limit"].(float64); ok {
		q.Limit = int(limit)
	}

	entries, err := s.svc.GetVocabulary(ctx, q)
	if err != nil {
		return errorResult("list failed: %v", err), nil
	}
	return &ToolResult{Content: formatEntries(entries)}, nil
}

func (s *Server) handleEnrich(ctx context.Context, args map[string]any) (*ToolResult, error) {
	contextType, _ := args["context_type"].(string)
	if contextType == "" {
		return errorResult("context_type is required"), nil
	}
	block := s.svc.EnrichedContext(ctx, contextType)
	if block == "" {
		return &ToolResult{Content: "No established vocabulary yet."}, nil
	}
	return &ToolResult{Content: block}, nil
}

func (s *Server) handleSnapshot(ctx context.Context, _ map[string]any) (*ToolResult, error) {
	snap, err := s.svc.Snapshot(ctx)
	if err != nil {
		return errorResult("snapshot failed: %v", err), nil
	}
	return &ToolResult{Content: formatSnapshot(snap)}, nil
}

func (s *Server) handleApprove(ctx context.Context, args map[string]any) (*ToolResult, error) {
	term, actor, res := curationArgs(args)
	if res != nil {
		return res, nil
	}
	entry, err := s.svc.Approve(ctx, term, actor)
	if err != nil {
		return errorResult("approve failed: %v", err), nil
	}
	return &ToolResult{Content: fmt.Sprintf("Approved %q (%s), confidence %.2f", entry.Term, entry.Category, entry.Confidence)}, nil
}

func (s *Server) handleReject(ctx context.Context, args map[string]any) (*ToolResult, error) {
	term, actor, res := curationArgs(args)
	if res != nil {
		return res, nil
	}
	if err := s.svc.Reject(ctx, term, actor); err != nil {
		return errorResult("reject failed: %v", err), nil
	}
	return &ToolResult{Content: fmt.Sprintf("Rejected %q", vocab.NormalizeTerm(term))}, nil
}

func curationArgs(args map[string]any) (term, actor string, res *ToolResult) {
	term, _ = args["term"].(string)
	actor, _ = args["actor_id"].(string)
	if strings.TrimSpace(term) == "" {
		return "", "", errorResult("term is required")
	}
	if strings.TrimSpace(actor) == "" {
		return "", "", errorResult("actor_id is required")
	}
	return term, actor, nil
}

func (s *Server) handleFeedback(ctx context.Context, args map[string]any) (*ToolResult, error) {
	event := vocab.FeedbackEvent{
		SubmitterID:    stringArg(args, "submitter_id"),
		SubmitterRole:  stringArg(args, "submitter_role"),
		FeedbackType:   vocab.FeedbackType(stringArg(args, "feedback_type")),
		Text:           stringArg(args, "text"),
		SubmissionID:   stringArg(args, "submission_id"),
		SubmissionType: stringArg(args, "submission_type"),
		Ratings: vocab.Ratings{
			Quality:     intArg(args, "quality"),
			Helpfulness: intArg(args, "helpfulness"),
			Ease:        intArg(args, "ease"),
		},
	}
	if !s.svc.RecordFeedback(ctx, event) {
		return errorResult("feedback was not recorded"), nil
	}
	return &ToolResult{Content: "Feedback recorded."}, nil
}

func (s *Server) handleExport(ctx context.Context, args map[string]any) (*ToolResult, error) {
	bundle, err := s.svc.ExportTrainingData(ctx, stringArg(args, "output_path"))
	if err != nil {
		return errorResult("export failed: %v", err), nil
	}
	return &ToolResult{Content: formatBundle(bundle)}, nil
}

func (s *Server) handleStats(ctx context.Context, _ map[string]any) (*ToolResult, error) {
	stats, err := s.svc.Stats(ctx)
	if err != nil {
		return errorResult("stats failed: %v", err), nil
	}
	return &ToolResult{Content: formatStats(stats)}, nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string) int {
	v, _ := args[key].(float64)
	return int(v)
}

// Formatting functions

func formatMatches(m vocab.Matches) string {
	if m.Count() == 0 {
		return "No terms found."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d terms:\n", m.Count()))
	for _, cat := range vocab.ValidCategories() {
		if terms := m[cat]; len(terms) > 0 {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", cat.Label(), strings.Join(terms, ", ")))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatEntries(entries []vocab.TerminologyEntry) string {
	if len(entries) == 0 {
		return "No matching terms."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d terms:\n", len(entries)))
	for _, e := range entries {
		mark := ""
		if e.UserApproved {
			mark = " [approved]"
		}
		sb.WriteString(fmt.Sprintf("  %s (%s) freq=%d confidence=%.2f%s\n", e.Term, e.Category, e.Frequency, e.Confidence, mark))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatSnapshot(snap *vocab.Snapshot) string {
	top := "none"
	if len(snap.TopTerms) > 0 {
		top = strings.Join(snap.TopTerms, ", ")
	}
	return fmt.Sprintf("Snapshot %s:\n  Submissions: %d\n  New terms: %d\n  Updated terms: %d\n  Top terms: %s",
		snap.ID, snap.TotalSubmissions, snap.NewTermsFound, snap.UpdatedTerms, top)
}

func formatBundle(b *vocab.TrainingBundle) string {
	return fmt.Sprintf("Exported %d events (%d linked, %d unlinked) across %d roles. Average quality %.2f.",
		b.EventCount, b.Summary.Linked, len(b.Unlinked), len(b.ByRole), b.Summary.AverageQuality)
}

func formatStats(s *vocab.StoreStats) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Terms: %d (%d approved)\n", s.TermCount, s.ApprovedCount))
	sb.WriteString(fmt.Sprintf("Average confidence: %.2f\n", s.AverageConfidence))
	sb.WriteString(fmt.Sprintf("Snapshots: %d\n", s.SnapshotCount))
	sb.WriteString(fmt.Sprintf("Feedback events: %d\n", s.FeedbackCount))
	sb.WriteString(fmt.Sprintf("Pending submissions: %d", s.PendingInbox))
	if !s.LastSnapshot.IsZero() {
		sb.WriteString(fmt.Sprintf("\nLast snapshot: %s", s.LastSnapshot.Format("2006-01-02 15:04:05Z07:00")))
	}
	return sb.String()
}
